// Package migrations is the public API for versioned schema changes.
// Applications define units with Func or Script (or any type implementing
// Migration), collect them into a Registry, and apply them with Migrate.
//
// Example usage:
//
//	reg := migrations.MustNewRegistry(
//		&migrations.Script{
//			ID:      20250115000000,
//			Label:   "create_product",
//			UpSQL:   "CREATE DOCUMENT TYPE Product; CREATE PROPERTY Product.sku STRING;",
//			DownSQL: "DROP TYPE Product;",
//		},
//		&migrations.Func{
//			ID:    20250116000000,
//			Label: "seed_products",
//			UpFn: func(ctx context.Context, tx client.Conn) error {
//				_, err := tx.Command(ctx, "INSERT INTO Product SET sku = 'A-1'", nil)
//				return err
//			},
//			DownFn: func(ctx context.Context, tx client.Conn) error {
//				_, err := tx.Command(ctx, "DELETE FROM Product WHERE sku = 'A-1'", nil)
//				return err
//			},
//		},
//	)
//
//	applied, err := migrations.Migrate(ctx, conn, reg)
//
// Units registered from init functions with Register are collected by Global.
// Each unit runs in its own transaction together with the write that records
// it as applied; a failure stops the run and later units are not attempted.
package migrations

// Package client provides typed access to a document/graph database exposed
// over an HTTP/JSON API (ArcadeDB style: /api/v1/query/{db},
// /api/v1/command/{db}, /api/v1/begin/{db}, ...).
//
// A Conn is an immutable handle. Stateless handles can be shared freely;
// transaction-scoped handles are only ever created by RunTransaction and
// friends, and live for the duration of the work function.
//
// Example usage:
//
//	conn, err := client.Connect(ctx, client.Config{
//		URL:      "http://localhost:2480",
//		Database: "inventory",
//		Username: "root",
//		Password: "secret",
//	})
//	if err != nil {
//		return err
//	}
//
//	err = client.Transaction(ctx, conn, func(ctx context.Context, tx client.Conn) error {
//		_, err := tx.Command(ctx, "INSERT INTO Product SET sku = :sku", map[string]interface{}{"sku": "A-1"})
//		return err
//	})
//
// Every failure is a *client.Error with a Kind; use errors.Is(err,
// client.ErrNotFound) or client.KindOf(err) to branch on it. Each operation
// also has a Must form that panics with the same error.
package client

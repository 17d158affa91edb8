package migrations

import (
	"context"

	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/executor"
)

var defaultEngine = executor.New(nil)

// Migrate applies the pending units of reg in ascending order and returns the
// versions applied in this call. On failure the error is a *MigrationError
// and the versions applied before it are still returned.
func Migrate(ctx context.Context, conn client.Conn, reg *Registry) ([]int64, error) {
	return defaultEngine.Migrate(ctx, conn, reg)
}

// Rollback reverts applied versions greater than target, newest first.
func Rollback(ctx context.Context, conn client.Conn, reg *Registry, target int64) ([]int64, error) {
	return defaultEngine.Rollback(ctx, conn, reg, target)
}

// Pending lists the versions Migrate would apply.
func Pending(ctx context.Context, conn client.Conn, reg *Registry) ([]int64, error) {
	return defaultEngine.Pending(ctx, conn, reg)
}

// Status reports the applied state of every known version.
func Status(ctx context.Context, conn client.Conn, reg *Registry) ([]VersionStatus, error) {
	return defaultEngine.Status(ctx, conn, reg)
}

// MustMigrate is like Migrate but panics with the error.
func MustMigrate(ctx context.Context, conn client.Conn, reg *Registry) []int64 {
	applied, err := Migrate(ctx, conn, reg)
	if err != nil {
		panic(err)
	}
	return applied
}

// MustRollback is like Rollback but panics with the error.
func MustRollback(ctx context.Context, conn client.Conn, reg *Registry, target int64) []int64 {
	reverted, err := Rollback(ctx, conn, reg, target)
	if err != nil {
		panic(err)
	}
	return reverted
}

package migrations

import (
	"github.com/toolsascode/arcade/internal/executor"
	"github.com/toolsascode/arcade/internal/registry"
)

type (
	Migration = registry.Migration
	Named     = registry.Named
	Registry  = registry.Registry
	Func      = registry.Func
	Script    = registry.Script

	// MigrationError names the unit that stopped a run.
	MigrationError = executor.MigrationError
	Options        = executor.Options
	Result         = executor.Result
	VersionStatus  = executor.VersionStatus
)

// ErrInvalidRegistry is returned for nil units and non-positive, duplicate
// or out-of-order versions.
var ErrInvalidRegistry = registry.ErrInvalidRegistry

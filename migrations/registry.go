package migrations

import "github.com/toolsascode/arcade/internal/registry"

// NewRegistry builds a registry from units in ascending version order.
func NewRegistry(units ...Migration) (*Registry, error) {
	return registry.New(units...)
}

// MustNewRegistry is like NewRegistry but panics with the error.
func MustNewRegistry(units ...Migration) *Registry {
	return registry.MustNew(units...)
}

// Register adds m to the global collection, typically from an init function.
func Register(m Migration) {
	registry.Register(m)
}

// Global returns every registered unit as a registry sorted by version.
func Global() (*Registry, error) {
	return registry.Global()
}

// LoadDir builds a registry from {version}_{name}.up.sql / .down.sql files.
func LoadDir(dir string) (*Registry, error) {
	return registry.LoadDir(dir, "")
}

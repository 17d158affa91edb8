package registry

import "sync"

// collector gathers migrations registered from init functions.
type collector struct {
	mu    sync.Mutex
	units []Migration
}

var global = &collector{}

// Register adds m to the global collection. Validation happens when Global
// builds the registry.
func Register(m Migration) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.units = append(global.units, m)
}

// Global returns a registry of every registered migration, sorted by version.
func Global() (*Registry, error) {
	global.mu.Lock()
	units := make([]Migration, len(global.units))
	copy(units, global.units)
	global.mu.Unlock()
	return Sorted(units...)
}

// ResetGlobal clears the global collection. Used by tests.
func ResetGlobal() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.units = nil
}

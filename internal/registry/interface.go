package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/toolsascode/arcade/client"
)

// ErrInvalidRegistry is returned when a set of migrations cannot form a
// registry: nil units, non-positive, duplicate or out-of-order versions.
// It always arrives wrapped in a validation *client.Error.
var ErrInvalidRegistry = errors.New("invalid migration registry")

func invalidRegistry(format string, args ...interface{}) error {
	return &client.Error{
		Kind:    client.KindValidation,
		Op:      "registry",
		Message: fmt.Sprintf(format, args...),
		Err:     ErrInvalidRegistry,
	}
}

// Migration is a versioned change-set. Up and Down always receive a
// transaction-scoped connection.
type Migration interface {
	Version() int64
	Up(ctx context.Context, tx client.Conn) error
	Down(ctx context.Context, tx client.Conn) error
}

// Named is implemented by migrations that carry a display name.
type Named interface {
	Name() string
}

// NameOf returns the migration's name, or "" when it has none.
func NameOf(m Migration) string {
	if n, ok := m.(Named); ok {
		return n.Name()
	}
	return ""
}

// Registry is an immutable set of migrations ordered by ascending version.
type Registry struct {
	units []Migration
	index map[int64]Migration
}

// New builds a registry from units given in ascending version order.
// Versions must be positive and strictly increasing; nothing is reordered.
func New(units ...Migration) (*Registry, error) {
	r := &Registry{
		units: make([]Migration, 0, len(units)),
		index: make(map[int64]Migration, len(units)),
	}

	var prev int64
	for i, m := range units {
		if m == nil {
			return nil, invalidRegistry("migration at position %d is nil", i)
		}
		v := m.Version()
		if v <= 0 {
			return nil, invalidRegistry("version %d at position %d must be positive", v, i)
		}
		if _, dup := r.index[v]; dup {
			return nil, invalidRegistry("duplicate version %d", v)
		}
		if i > 0 && v <= prev {
			return nil, invalidRegistry("version %d follows %d", v, prev)
		}
		prev = v
		r.units = append(r.units, m)
		r.index[v] = m
	}
	return r, nil
}

// MustNew is like New but panics with the error.
func MustNew(units ...Migration) *Registry {
	r, err := New(units...)
	if err != nil {
		panic(err)
	}
	return r
}

// Sorted orders units by version and then builds them with New, so
// duplicates still fail.
func Sorted(units ...Migration) (*Registry, error) {
	owned := make([]Migration, len(units))
	copy(owned, units)
	for i, m := range owned {
		if m == nil {
			return nil, invalidRegistry("migration at position %d is nil", i)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].Version() < owned[j].Version()
	})
	return New(owned...)
}

// All returns the migrations in ascending order. The slice is a copy.
func (r *Registry) All() []Migration {
	if r == nil {
		return nil
	}
	out := make([]Migration, len(r.units))
	copy(out, r.units)
	return out
}

// Versions returns every version in ascending order.
func (r *Registry) Versions() []int64 {
	if r == nil {
		return nil
	}
	out := make([]int64, len(r.units))
	for i, m := range r.units {
		out[i] = m.Version()
	}
	return out
}

// Get returns the migration with the given version.
func (r *Registry) Get(version int64) (Migration, bool) {
	if r == nil {
		return nil, false
	}
	m, ok := r.index[version]
	return m, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.units)
}

// Latest returns the highest version, or 0 for an empty registry.
func (r *Registry) Latest() int64 {
	if r.Len() == 0 {
		return 0
	}
	return r.units[len(r.units)-1].Version()
}

package probetype

import (
	"fmt"
	"sort"
)

// Registry is the set of probe types a process knows about. It is built once
// at startup and read-only afterwards.
type Registry struct {
	types map[string]Type
}

func NewRegistry(types ...Type) (*Registry, error) {
	r := &Registry{types: map[string]Type{}}
	for _, t := range types {
		if _, ok := r.types[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate probe type %q", t.Name())
		}
		r.types[t.Name()] = t
	}
	return r, nil
}

// Default returns a registry with the built-in probe types.
func Default() *Registry {
	r, err := NewRegistry(NewLogScan(), NewMachineUp())
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the named type, or false if the name is not registered.
func (r *Registry) Lookup(name string) (Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

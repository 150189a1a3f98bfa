package source

import (
	"fmt"
	"slices"
)

// Registry indexes loaded sources by name. It is built once at startup and
// only read afterwards.
type Registry struct {
	byName map[string]*Source
	names  []string
}

func NewRegistry(srcs ...*Source) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Source, len(srcs))}
	for _, s := range srcs {
		if _, dup := r.byName[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate source %q", s.Name())
		}
		r.byName[s.Name()] = s
		r.names = append(r.names, s.Name())
	}
	slices.Sort(r.names)
	return r, nil
}

func (r *Registry) Lookup(name string) (*Source, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names returns the source names sorted.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

func (r *Registry) Len() int { return len(r.names) }

// Readiness is ready once at least one source is loaded.
func (r *Registry) Readiness() (bool, []string) {
	return r.Len() > 0, r.Names()
}

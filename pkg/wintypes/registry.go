package wintypes

import (
	"sync"

	"github.com/go-delve/wincore/pkg/winarch"
)

// Registry caches the synthetic types built for each architecture. Types
// are built on first request and the same instance is returned to every
// later caller.
type Registry struct {
	mu       sync.Mutex
	interner Interner
	data     map[winarch.Arch]*archTypes
}

type archTypes struct {
	tibPtr    *PtrType
	exception *StructType
}

// NewRegistry returns an empty registry. If interner is not nil it is
// notified of every composite type built by the registry.
func NewRegistry(interner Interner) *Registry {
	return &Registry{interner: interner, data: make(map[winarch.Arch]*archTypes)}
}

func (r *Registry) get(arch winarch.Arch) *archTypes {
	d := r.data[arch.Key()]
	if d == nil {
		d = &archTypes{}
		r.data[arch.Key()] = d
	}
	return d
}

// ThreadBlockType returns the type of a pointer to the thread information
// block of arch.
func (r *Registry) ThreadBlockType(arch winarch.Arch) *PtrType {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.get(arch)
	if d.tibPtr == nil {
		d.tibPtr = newBuilder(arch, r.interner).threadBlockType()
	}
	return d.tibPtr
}

// ExceptionType returns the EXCEPTION_RECORD type of arch.
func (r *Registry) ExceptionType(arch winarch.Arch) *StructType {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.get(arch)
	if d.exception == nil {
		d.exception = newBuilder(arch, r.interner).exceptionType()
	}
	return d.exception
}

// Lookup returns the composite type called name reachable from the types
// already built for arch.
func (r *Registry) Lookup(arch winarch.Arch, name string) (Type, bool) {
	var found Type
	seen := map[Type]bool{}
	var visit func(t Type)
	visit = func(t Type) {
		if t == nil || found != nil || seen[t] {
			return
		}
		seen[t] = true
		switch t := t.(type) {
		case *PtrType:
			visit(t.Type)
		case *TypedefType:
			visit(t.Type)
		case *ArrayType:
			visit(t.Type)
		case *StructType:
			if t.StructName == name {
				found = t
				return
			}
			for _, f := range t.Field {
				visit(f.Type)
			}
		}
	}
	visit(r.ThreadBlockType(arch))
	visit(r.ExceptionType(arch))
	return found, found != nil
}

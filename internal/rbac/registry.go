package rbac

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Source yields the registry in force for one evaluation.
type Source interface {
	Registry() *Registry
}

// Registry maps each role to its default permissions. It is immutable once
// built; hot reload replaces the whole value through a Holder.
type Registry struct {
	roles    []Role
	defaults map[Role]PermissionSet
}

// NewRegistry validates and freezes a role table. Every key must be a declared
// role and every permission a declared permission.
func NewRegistry(table map[Role][]Permission) (*Registry, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: no roles", ErrInvalidTable)
	}
	reg := &Registry{defaults: make(map[Role]PermissionSet, len(table))}
	for role, perms := range table {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidTable, ErrUnknownRole, role)
		}
		set := make(PermissionSet, len(perms))
		for _, p := range perms {
			if !p.Valid() {
				return nil, fmt.Errorf("%w: role %s: %w: %q", ErrInvalidTable, role, ErrUnknownPermission, p)
			}
			set[p] = struct{}{}
		}
		reg.defaults[role] = set
	}
	for _, role := range AllRoles() {
		if _, ok := reg.defaults[role]; ok {
			reg.roles = append(reg.roles, role)
		}
	}
	return reg, nil
}

// MustRegistry is NewRegistry for tables known to be valid at compile time.
func MustRegistry(table map[Role][]Permission) *Registry {
	reg, err := NewRegistry(table)
	if err != nil {
		panic(err)
	}
	return reg
}

// DefaultRegistry builds the registry from the built-in role table.
func DefaultRegistry() *Registry {
	reg, err := BuiltinTable().Build()
	if err != nil {
		panic(err)
	}
	return reg
}

// Registry lets a plain *Registry act as a Source.
func (r *Registry) Registry() *Registry { return r }

// DefaultPermissions returns a copy of the role's default permissions.
func (r *Registry) DefaultPermissions(role Role) (PermissionSet, error) {
	if r == nil {
		return nil, ErrRegistryUnavailable
	}
	set, ok := r.defaults[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return set.Clone(), nil
}

// Has reports whether the role is present in the registry.
func (r *Registry) Has(role Role) bool {
	if r == nil {
		return false
	}
	_, ok := r.defaults[role]
	return ok
}

// Roles lists the registered roles from least to most privileged.
func (r *Registry) Roles() []Role {
	if r == nil {
		return nil
	}
	out := make([]Role, len(r.roles))
	copy(out, r.roles)
	return out
}

// lookup returns the shared set without copying. Callers must not mutate it.
func (r *Registry) lookup(role Role) (PermissionSet, bool) {
	set, ok := r.defaults[role]
	return set, ok
}

// Holder publishes a registry to concurrent readers and swaps it atomically.
type Holder struct {
	current atomic.Pointer[Registry]
}

// NewHolder returns a Holder serving reg.
func NewHolder(reg *Registry) *Holder {
	h := &Holder{}
	h.current.Store(reg)
	return h
}

// Registry returns the registry currently in force.
func (h *Holder) Registry() *Registry {
	if h == nil {
		return nil
	}
	return h.current.Load()
}

// Swap installs reg and returns the previous registry. A nil reg is ignored so
// a failed reload never leaves readers without a table.
func (h *Holder) Swap(reg *Registry) *Registry {
	if reg == nil {
		return h.current.Load()
	}
	return h.current.Swap(reg)
}

// TableSpec is the declarative form of a role table, used by the built-in
// defaults and by YAML files. Inheritance is flattened when the registry is
// built; the registry itself never walks a hierarchy.
type TableSpec struct {
	Baseline []Permission     `yaml:"baseline"`
	Roles    map[Role]RoleSpec `yaml:"roles"`
}

// RoleSpec declares one role's grants.
type RoleSpec struct {
	Inherits    Role         `yaml:"inherits,omitempty"`
	Permissions []Permission `yaml:"permissions"`
}

// Build flattens the spec into a Registry.
func (t TableSpec) Build() (*Registry, error) {
	flat := make(map[Role][]Permission, len(t.Roles))
	var resolve func(role Role, seen map[Role]bool) ([]Permission, error)
	resolve = func(role Role, seen map[Role]bool) ([]Permission, error) {
		if perms, ok := flat[role]; ok {
			return perms, nil
		}
		spec, ok := t.Roles[role]
		if !ok {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidTable, ErrUnknownRole, role)
		}
		if seen[role] {
			return nil, fmt.Errorf("%w: inheritance cycle at %s", ErrInvalidTable, role)
		}
		seen[role] = true
		set := NewPermissionSet(t.Baseline...)
		if spec.Inherits != "" {
			parent, err := resolve(spec.Inherits, seen)
			if err != nil {
				return nil, err
			}
			set = set.Union(NewPermissionSet(parent...))
		}
		set = set.Union(NewPermissionSet(spec.Permissions...))
		perms := make([]Permission, 0, set.Len())
		for p := range set {
			perms = append(perms, p)
		}
		sortPermissions(perms)
		flat[role] = perms
		return perms, nil
	}
	for role := range t.Roles {
		if _, err := resolve(role, map[Role]bool{}); err != nil {
			return nil, err
		}
	}
	return NewRegistry(flat)
}

// ParseRegistry builds a registry from a YAML role table.
func ParseRegistry(data []byte) (*Registry, error) {
	var spec TableSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	return spec.Build()
}

// LoadRegistryFile reads a YAML role table from disk.
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read role table: %w", err)
	}
	return ParseRegistry(data)
}

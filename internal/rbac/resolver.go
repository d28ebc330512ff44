package rbac

// Resolver computes effective permissions from role defaults and per-user
// overrides. It holds no state besides the registry source.
type Resolver struct {
	source Source
}

// NewResolver returns a Resolver reading role defaults from source.
func NewResolver(source Source) Resolver {
	return Resolver{source: source}
}

// EffectivePermissions returns (defaults(role) ∪ overrides) \ revoked.
// A nil user or a role missing from the registry yields the empty set.
func (r Resolver) EffectivePermissions(user *User) PermissionSet {
	_, effective, _ := r.resolve(user)
	return effective
}

// Defaults returns a copy of the role defaults, or the empty set when role is
// not in the registry.
func (r Resolver) Defaults(role Role) PermissionSet {
	defaults, _, _ := r.resolve(&User{Role: role})
	return defaults.Clone()
}

// Roles lists the roles of the current registry.
func (r Resolver) Roles() []Role {
	if r.source == nil {
		return nil
	}
	reg := r.source.Registry()
	if reg == nil {
		return nil
	}
	return reg.Roles()
}

// resolve returns the role defaults alongside the effective set so the guard
// can attribute a grant. ok is false when the user or role is unusable.
func (r Resolver) resolve(user *User) (defaults, effective PermissionSet, ok bool) {
	if user == nil || r.source == nil {
		return PermissionSet{}, PermissionSet{}, false
	}
	reg := r.source.Registry()
	if reg == nil || !user.Role.Valid() {
		return PermissionSet{}, PermissionSet{}, false
	}
	base, found := reg.lookup(user.Role)
	if !found {
		return PermissionSet{}, PermissionSet{}, false
	}
	effective = base.Clone()
	for p := range user.Overrides {
		if p.Valid() {
			effective[p] = struct{}{}
		}
	}
	for p := range user.Revoked {
		delete(effective, p)
	}
	return base, effective, true
}

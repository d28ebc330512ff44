package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser            Role = "USER"
	RoleEngineer        Role = "ENGINEER"
	RoleServiceProvider Role = "SERVICE_PROVIDER"
	RoleAdmin           Role = "ADMIN"
	RoleSuperAdmin      Role = "SUPER_ADMIN"
)

// AllRoles lists roles from least to most privileged.
func AllRoles() []Role {
	return []Role{RoleUser, RoleEngineer, RoleServiceProvider, RoleAdmin, RoleSuperAdmin}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleEngineer, RoleServiceProvider, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// ParseRole converts a raw value (JWT claim, DB column, form field) into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

// Permission is an atomic capability. No permission implies another.
type Permission string

const (
	PermViewDashboard           Permission = "viewDashboard"
	PermSubmitFeedback          Permission = "submitFeedback"
	PermCreateInquiry           Permission = "createInquiry"
	PermCancelInquiry           Permission = "cancelInquiry"
	PermViewAssignedInquiries   Permission = "viewAssignedInquiries"
	PermUpdateInquiryStatus     Permission = "updateInquiryStatus"
	PermAssignEngineers         Permission = "assignEngineers"
	PermManageEngineers         Permission = "manageEngineers"
	PermManageUsers             Permission = "manageUsers"
	PermViewAllInquiries        Permission = "viewAllInquiries"
	PermManageCategories        Permission = "manageCategories"
	PermViewReports             Permission = "viewReports"
	PermEditInquiryPrice        Permission = "editInquiryPrice"
	PermDeleteInquiries         Permission = "deleteInquiries"
	PermConfigureSystemSettings Permission = "configureSystemSettings"
)

var catalogue = []Permission{
	PermViewDashboard,
	PermSubmitFeedback,
	PermCreateInquiry,
	PermCancelInquiry,
	PermViewAssignedInquiries,
	PermUpdateInquiryStatus,
	PermAssignEngineers,
	PermManageEngineers,
	PermManageUsers,
	PermViewAllInquiries,
	PermManageCategories,
	PermViewReports,
	PermEditInquiryPrice,
	PermDeleteInquiries,
	PermConfigureSystemSettings,
}

var catalogueIndex = func() map[Permission]int {
	idx := make(map[Permission]int, len(catalogue))
	for i, p := range catalogue {
		idx[p] = i
	}
	return idx
}()

// AllPermissions returns every declared permission in catalogue order.
func AllPermissions() []Permission {
	out := make([]Permission, len(catalogue))
	copy(out, catalogue)
	return out
}

// Valid reports whether p is a declared permission.
func (p Permission) Valid() bool {
	_, ok := catalogueIndex[p]
	return ok
}

// ParsePermission accepts the canonical camelCase name. Matching is
// case-insensitive so legacy snake/upper forms stored by older clients
// ("VIEW_ALL_INQUIRIES") still resolve.
func ParsePermission(raw string) (Permission, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""))
	for _, p := range catalogue {
		if strings.ToLower(string(p)) == key {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPermission, raw)
}

// ParsePermissions parses a list, failing on the first unknown name.
func ParsePermissions(raw []string) ([]Permission, error) {
	out := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p, err := ParsePermission(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// PermissionSet is a set of permissions. Values are treated as immutable once
// shared; the set operations always return fresh sets.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAll reports whether every permission is present.
func (s PermissionSet) HasAll(perms ...Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Len returns the number of permissions.
func (s PermissionSet) Len() int { return len(s) }

// Clone returns an independent copy. A nil set clones to an empty set.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Union returns s ∪ other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := s.Clone()
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Minus returns s \ other.
func (s PermissionSet) Minus(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		if !other.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// Intersect returns s ∩ other.
func (s PermissionSet) Intersect(other PermissionSet) PermissionSet {
	out := make(PermissionSet)
	for p := range s {
		if other.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// Equal reports set equality.
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Sorted returns the members in catalogue order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sortPermissions(out)
	return out
}

// Strings returns the member names in catalogue order.
func (s PermissionSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}

func sortPermissions(perms []Permission) {
	sort.SliceStable(perms, func(i, j int) bool {
		ii, iok := catalogueIndex[perms[i]]
		jj, jok := catalogueIndex[perms[j]]
		switch {
		case iok && jok:
			return ii < jj
		case iok != jok:
			return iok
		default:
			return perms[i] < perms[j]
		}
	})
}

// User is the acting identity handed to the guard by the identity boundary.
// Overrides are grants on top of the role defaults; Revoked strips
// permissions (defaults or grants) for this user only.
type User struct {
	ID        string
	Role      Role
	Overrides PermissionSet
	Revoked   PermissionSet
}

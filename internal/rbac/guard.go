package rbac

import (
	"fmt"
	"net/http"
	"strings"
)

// Reason classifies a denial.
type Reason string

const (
	ReasonUnauthenticated   Reason = "Unauthenticated"
	ReasonRoleMismatch      Reason = "RoleMismatch"
	ReasonMissingPermission Reason = "MissingPermission"
	ReasonResourceScope     Reason = "ResourceScope"
	// ReasonInternal marks a fail-closed denial caused by a fault in the
	// guard itself. It never reaches clients; Check reports it as an error.
	ReasonInternal Reason = "Internal"
)

// Rules attribute a decision to the piece of policy that produced it.
const (
	RuleUnauthenticated  = "unauthenticated"
	RuleUnknownRole      = "unknown-role"
	RuleRoleMismatch     = "role-mismatch"
	RuleEmptyRequirement = "empty-requirement"
	RuleMissing          = "missing-permission"
	RuleRevoked          = "revoked"
	RuleScopeNotOwner    = "scope-not-owner"
	RuleScopeOwner       = "scope-owner"
	RuleScopeBypass      = "scope-bypass"
	RuleOverride         = "override"
	RuleRoleDefault      = "role-default"
	RuleInternal         = "internal-error"
)

// Decision is the outcome of one authorization request.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Rule     string
	ActorID  string
	Role     Role
	Required []Permission
	Missing  []Permission
	OwnerID  string
}

// Err returns nil for an allowed decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Decision: d}
}

// String renders the decision for logs.
func (d Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf("allowed(%s)", d.Rule)
	}
	return fmt.Sprintf("denied(%s/%s)", d.Reason, d.Rule)
}

// DeniedError carries a denial through service layers up to the HTTP boundary.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	if len(e.Decision.Missing) > 0 {
		names := make([]string, len(e.Decision.Missing))
		for i, p := range e.Decision.Missing {
			names[i] = string(p)
		}
		return fmt.Sprintf("rbac: denied: %s (%s)", e.Decision.Reason, strings.Join(names, ","))
	}
	return fmt.Sprintf("rbac: denied: %s", e.Decision.Reason)
}

// HTTPStatus maps the denial to 401 or 403.
func (e *DeniedError) HTTPStatus() int {
	if e.Decision.Reason == ReasonUnauthenticated {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

// DenialReason is the reason string exposed to clients.
func (e *DeniedError) DenialReason() string {
	return string(e.Decision.Reason)
}

// Requirement is the permission set an action needs. A single Permission and
// All both satisfy it.
type Requirement interface {
	permissions() []Permission
}

func (p Permission) permissions() []Permission { return []Permission{p} }

// All requires every listed permission.
type All []Permission

func (a All) permissions() []Permission { return a }

// Option refines an authorization request.
type Option func(*request)

type request struct {
	role     Role
	owner    string
	hasOwner bool
	resource Resource
}

// WithRole additionally requires the actor to hold exactly role.
func WithRole(role Role) Option {
	return func(r *request) { r.role = role }
}

// WithOwner scopes the request to a resource owned by/assigned to id.
func WithOwner(id string) Option {
	return func(r *request) {
		r.owner = id
		r.hasOwner = true
	}
}

// WithResource scopes the request to res; the owner is picked per scope rule.
func WithResource(res Resource) Option {
	return func(r *request) { r.resource = res }
}

// Recorder receives every decision. Implementations must not block.
type Recorder interface {
	RecordDecision(Decision)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Decision)

// RecordDecision calls f.
func (f RecorderFunc) RecordDecision(d Decision) { f(d) }

// Recorders fans a decision out to several recorders.
type Recorders []Recorder

// RecordDecision forwards d to every non-nil recorder.
func (rs Recorders) RecordDecision(d Decision) {
	for _, r := range rs {
		if r != nil {
			r.RecordDecision(d)
		}
	}
}

// Guard is the single authorization entry point.
type Guard struct {
	source   Source
	resolver Resolver
	scopes   ScopeTable
	recorder Recorder
}

// NewGuard builds a guard over source using the default scope table.
// recorder may be nil.
func NewGuard(source Source, recorder Recorder) *Guard {
	return &Guard{
		source:   source,
		resolver: NewResolver(source),
		scopes:   DefaultScopes(),
		recorder: recorder,
	}
}

// WithScopes returns a copy of the guard using table for resource scoping.
func (g *Guard) WithScopes(table ScopeTable) *Guard {
	cp := *g
	cp.scopes = table
	return &cp
}

// Resolver exposes the resolver the guard evaluates with.
func (g *Guard) Resolver() Resolver {
	return g.resolver
}

// Authorize evaluates the request and never fails open: an internal fault
// becomes a denial with ReasonInternal.
func (g *Guard) Authorize(user *User, required Requirement, opts ...Option) Decision {
	d, _ := g.Check(user, required, opts...)
	return d
}

// Check is Authorize plus an error for faults the caller should surface as a
// server error rather than a denial.
func (g *Guard) Check(user *User, required Requirement, opts ...Option) (Decision, error) {
	var req request
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	var perms []Permission
	if required != nil {
		perms = append([]Permission(nil), required.permissions()...)
	}
	d := Decision{Required: perms}
	if user != nil {
		d.ActorID = user.ID
		d.Role = user.Role
	}
	var err error
	if g == nil || g.source == nil || g.source.Registry() == nil {
		d.Reason, d.Rule = ReasonInternal, RuleInternal
		err = ErrRegistryUnavailable
	} else {
		g.evaluate(&d, user, perms, req)
	}
	if g != nil && g.recorder != nil {
		g.recorder.RecordDecision(d)
	}
	return d, err
}

func (g *Guard) evaluate(d *Decision, user *User, perms []Permission, req request) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		d.Reason, d.Rule = ReasonUnauthenticated, RuleUnauthenticated
		return
	}
	defaults, effective, ok := g.resolver.resolve(user)
	if !ok {
		d.Reason, d.Rule = ReasonUnauthenticated, RuleUnknownRole
		return
	}
	if req.role != "" && user.Role != req.role {
		d.Reason, d.Rule = ReasonRoleMismatch, RuleRoleMismatch
		return
	}
	if len(perms) == 0 {
		d.Reason, d.Rule = ReasonMissingPermission, RuleEmptyRequirement
		return
	}

	rule := RuleRoleDefault
	var missing []Permission
	revoked := false
	for _, p := range perms {
		if effective.Has(p) {
			if !defaults.Has(p) {
				rule = RuleOverride
			}
			continue
		}
		missing = append(missing, p)
		if user.Revoked.Has(p) {
			revoked = true
		}
	}
	if len(missing) > 0 {
		d.Reason, d.Missing = ReasonMissingPermission, missing
		d.Rule = RuleMissing
		if revoked {
			d.Rule = RuleRevoked
		}
		return
	}

	if req.hasOwner || req.resource != nil {
		for _, p := range perms {
			scope, scoped := g.scopes.Rule(p)
			if !scoped {
				continue
			}
			owner := req.owner
			if !req.hasOwner {
				owner, _ = req.resource.OwnerID(scope.Relation)
			}
			d.OwnerID = owner
			if owner != "" && owner == user.ID {
				if rule != RuleScopeBypass {
					rule = RuleScopeOwner
				}
				continue
			}
			if scope.Bypass != "" && effective.Has(scope.Bypass) {
				rule = RuleScopeBypass
				continue
			}
			d.Reason, d.Rule = ReasonResourceScope, RuleScopeNotOwner
			return
		}
	}

	d.Allowed = true
	d.Rule = rule
}

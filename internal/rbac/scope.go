package rbac

// Relation names the field of a resource that a scoped permission is checked
// against.
type Relation string

const (
	// RelationAssignee is the engineer a resource is assigned to.
	RelationAssignee Relation = "assignee"
	// RelationCreator is the account that raised the resource.
	RelationCreator Relation = "creator"
	// RelationPartner is the service provider an engineer works for.
	RelationPartner Relation = "partner"
)

// ScopeRule restricts a permission to resources the actor is related to,
// unless the actor also holds Bypass.
type ScopeRule struct {
	Relation Relation
	Bypass   Permission
}

// ScopeTable declares which permissions are resource scoped.
type ScopeTable map[Permission]ScopeRule

// DefaultScopes is the scope table used by NewGuard.
func DefaultScopes() ScopeTable {
	return ScopeTable{
		PermViewAssignedInquiries: {Relation: RelationAssignee, Bypass: PermViewAllInquiries},
		PermUpdateInquiryStatus:   {Relation: RelationAssignee, Bypass: PermViewAllInquiries},
		PermCancelInquiry:         {Relation: RelationCreator, Bypass: PermViewAllInquiries},
		PermSubmitFeedback:        {Relation: RelationCreator},
		PermManageEngineers:       {Relation: RelationPartner, Bypass: PermManageUsers},
		PermAssignEngineers:       {Relation: RelationPartner, Bypass: PermManageUsers},
	}
}

// Rule returns the scope rule for p, if any.
func (t ScopeTable) Rule(p Permission) (ScopeRule, bool) {
	rule, ok := t[p]
	return rule, ok
}

// Resource exposes the owners of a protected record per relation.
type Resource interface {
	OwnerID(rel Relation) (string, bool)
}

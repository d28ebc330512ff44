package engineers

import (
	"strconv"
	"time"

	"github.com/fieldops/fieldops/internal/rbac"
)

// Engineer is a field technician account.
type Engineer struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Skills    []string  `json:"skills"`
	PartnerID *int64    `json:"partner_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnerID reports the partner an engineer works for. Staff engineers have none.
func (e Engineer) OwnerID(rel rbac.Relation) (string, bool) {
	if rel != rbac.RelationPartner || e.PartnerID == nil {
		return "", false
	}
	return strconv.FormatInt(*e.PartnerID, 10), true
}

// CreateInput is the body of POST /engineers.
type CreateInput struct {
	Email    string   `json:"email" validate:"required,email"`
	Name     string   `json:"name" validate:"required,max=120"`
	Password string   `json:"password" validate:"required,min=8"`
	Phone    string   `json:"phone" validate:"max=32"`
	Skills   []string `json:"skills" validate:"dive,required,max=40"`
}

// ListFilters narrows the engineer listing.
type ListFilters struct {
	ActiveOnly bool
	PartnerID  int64
}

package inquiries

import (
	"strconv"
	"time"

	"github.com/fieldops/fieldops/internal/rbac"
)

// Status is the lifecycle state of an inquiry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists statuses in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Final reports whether no further transition is possible.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions an assignee may drive through UpdateStatus. Cancellation and
// assignment have their own operations.
var transitions = map[Status][]Status{
	StatusAssigned:   {StatusInProgress},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether an assignee may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Inquiry is a service request raised by a customer.
type Inquiry struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	EngineerID   *int64    `json:"engineer_id,omitempty"`
	CategoryID   *int64    `json:"category_id,omitempty"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	Appliance    string    `json:"appliance"`
	Problem      string    `json:"problem"`
	Status       Status    `json:"status"`
	Price        float64   `json:"price"`
	Rating       *int      `json:"rating,omitempty"`
	Feedback     string    `json:"feedback,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OwnerID implements rbac.Resource.
func (i Inquiry) OwnerID(rel rbac.Relation) (string, bool) {
	switch rel {
	case rbac.RelationCreator:
		return strconv.FormatInt(i.UserID, 10), true
	case rbac.RelationAssignee:
		if i.EngineerID == nil {
			return "", false
		}
		return strconv.FormatInt(*i.EngineerID, 10), true
	}
	return "", false
}

// CreateInput is the body of POST /inquiries.
type CreateInput struct {
	CategoryID   *int64 `json:"category_id" validate:"omitempty,gt=0"`
	CustomerName string `json:"customer_name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"required,max=32"`
	Address      string `json:"address" validate:"required,max=500"`
	Appliance    string `json:"appliance" validate:"required,max=120"`
	Problem      string `json:"problem" validate:"required,max=2000"`
}

// AssignInput is the body of POST /inquiries/{id}/assign.
type AssignInput struct {
	EngineerID int64 `json:"engineer_id" validate:"required,gt=0"`
}

// StatusInput is the body of POST /inquiries/{id}/status.
type StatusInput struct {
	Status Status `json:"status" validate:"required"`
}

// PriceInput is the body of PUT /inquiries/{id}/price.
type PriceInput struct {
	Price float64 `json:"price" validate:"gte=0"`
}

// FeedbackInput is the body of POST /inquiries/{id}/feedback.
type FeedbackInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// Collection is a payment taken on site by the assigned engineer.
type Collection struct {
	ID          int64     `json:"id"`
	InquiryID   int64     `json:"inquiry_id"`
	EngineerID  int64     `json:"engineer_id"`
	Amount      float64   `json:"amount"`
	Method      string    `json:"method"`
	Reference   string    `json:"reference,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// CollectionInput is the body of POST /inquiries/{id}/collections.
type CollectionInput struct {
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Method    string  `json:"method" validate:"required,oneof=cash card transfer"`
	Reference string  `json:"reference" validate:"max=120"`
}

// ListQuery narrows a listing. Zero values are ignored.
type ListQuery struct {
	AssignedTo int64
	CreatedBy  int64
	Status     Status
	Limit      int
	Offset     int
}

// Scope names which inquiries a summary covers.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeAssigned Scope = "assigned"
	ScopeOwn      Scope = "own"
)

// Dashboard is the per-caller status summary.
type Dashboard struct {
	Scope    Scope          `json:"scope"`
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// Report aggregates activity over a period.
type Report struct {
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	ByStatus      map[Status]int `json:"by_status"`
	Revenue       float64        `json:"revenue"`
	Collected     float64        `json:"collected"`
	AverageRating float64        `json:"average_rating"`
	Rated         int            `json:"rated"`
}

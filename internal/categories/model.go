package categories

import "time"

// Category groups inquiries by kind of appliance or service.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateInput is the body of POST /categories.
type CreateInput struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=500"`
}

// ListFilters narrows the category listing.
type ListFilters struct {
	Search  string
	SortDir string
}

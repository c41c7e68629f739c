package domain

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant in the system. Records, schemas, and
// import logs are all scoped to one organization.
type Organization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewOrganization creates a new organization with immutable pattern
func NewOrganization(name, description string) Organization {
	now := time.Now()
	return Organization{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WithDescription returns a new organization with updated description
func (o Organization) WithDescription(description string) Organization {
	out := o
	out.Description = description
	out.UpdatedAt = time.Now()
	return out
}

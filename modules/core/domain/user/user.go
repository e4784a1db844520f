package user

import (
	"github.com/google/uuid"
)

// User is the read model of a person in an organization.
type User struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Title          string    `json:"title,omitempty"`
	Department     string    `json:"department,omitempty"`
	Role           string    `json:"role"`
}

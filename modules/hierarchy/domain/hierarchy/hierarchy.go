// Package hierarchy holds the reporting-line model of an organization.
package hierarchy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Edge is one employee -> manager reporting line. A nil ManagerID marks a root.
type Edge struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	EmployeeID     uuid.UUID  `json:"employee_id"`
	ManagerID      *uuid.UUID `json:"manager_id"`
	IsActive       bool       `json:"is_active"`
	EffectiveDate  time.Time  `json:"effective_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Level          *int       `json:"level,omitempty"`
}

// Node is a derived view of an employee in the reporting graph.
type Node struct {
	EmployeeID    uuid.UUID  `json:"employee_id"`
	EdgeID        *uuid.UUID `json:"edge_id,omitempty"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Title         string     `json:"title,omitempty"`
	Department    string     `json:"department,omitempty"`
	Role          string     `json:"role,omitempty"`
	ManagerID     *uuid.UUID `json:"manager_id"`
	Children      []*Node    `json:"children"`
	EmployeeCount int        `json:"employee_count"`
}

type Stats struct {
	TotalRelationships   int64           `json:"total_relationships"`
	MaxDepth             int             `json:"max_depth"`
	AverageSpanOfControl decimal.Decimal `json:"average_span_of_control"`
	OrphanedEmployees    int64           `json:"orphaned_employees"`
}

type Relationship struct {
	EmployeeID uuid.UUID  `json:"employee_id" validate:"required"`
	ManagerID  *uuid.UUID `json:"manager_id"`
}

type BulkResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Stats    *Stats   `json:"stats"`
}

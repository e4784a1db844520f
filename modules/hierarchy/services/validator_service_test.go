package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
)

func TestValidateHierarchy_Healthy(t *testing.T) {
	repo := newFakeRepo()
	org := uuid.New()
	a := repo.addUser(org, "A")
	b := repo.addUser(org, "B")
	repo.link(org, a, nil)
	repo.link(org, b, &a)
	repo.stats = &hierarchy.Stats{
		TotalRelationships:   2,
		MaxDepth:             1,
		AverageSpanOfControl: decimal.RequireFromString("1.666666"),
	}

	result, err := NewHierarchyValidator(repo, 0).ValidateHierarchy(context.Background(), org)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	require.NotNil(t, result.Stats)
	assert.Equal(t, "1.67", result.Stats.AverageSpanOfControl.String())
}

func TestValidateHierarchy_Warnings(t *testing.T) {
	repo := newFakeRepo()
	org := uuid.New()
	repo.stats = &hierarchy.Stats{
		TotalRelationships:   40,
		MaxDepth:             12,
		AverageSpanOfControl: decimal.NewFromInt(1),
		OrphanedEmployees:    3,
	}

	result, err := NewHierarchyValidator(repo, 10).ValidateHierarchy(context.Background(), org)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], "3 employees")
	assert.Contains(t, result.Warnings[1], "consider flattening")

	repo.stats.MaxDepth = 10
	result, err = NewHierarchyValidator(repo, 10).ValidateHierarchy(context.Background(), org)
	require.NoError(t, err)
	assert.Len(t, result.Warnings, 1)
}

func TestValidateHierarchy_IntegrityErrors(t *testing.T) {
	repo := newFakeRepo()
	org := uuid.New()
	a := repo.addUser(org, "A")
	b := repo.addUser(org, "B")
	c := repo.addUser(org, "C")
	// Rows written around the guards, as a legacy import could have left them.
	repo.link(org, a, &b)
	repo.link(org, b, &a)
	repo.link(org, c, nil)
	repo.link(org, c, &a)

	result, err := NewHierarchyValidator(repo, 10).ValidateHierarchy(context.Background(), org)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], c.String())
	assert.Contains(t, result.Errors[1], "reporting cycle")
	assert.Contains(t, result.Errors[1], a.String())
	assert.Contains(t, result.Errors[1], b.String())
}

func TestValidateHierarchy_RequiresOrganization(t *testing.T) {
	_, err := NewHierarchyValidator(newFakeRepo(), 10).ValidateHierarchy(context.Background(), uuid.Nil)
	requireServiceError(t, err, http.StatusBadRequest, CodeNoOrganization)
}

func TestFindCycles_ReportsEachCycleOnce(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	edges := []hierarchy.Edge{
		{EmployeeID: a, ManagerID: ptr(b)},
		{EmployeeID: b, ManagerID: ptr(c)},
		{EmployeeID: c, ManagerID: ptr(a)},
		{EmployeeID: d, ManagerID: ptr(a)},
	}
	cycles := findCycles(edges)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []uuid.UUID{a, b, c}, cycles[0])
	assert.Empty(t, findCycles(edges[3:]))
}

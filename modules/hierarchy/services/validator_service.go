package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
	"github.com/iota-uz/feedback-hub/pkg/composables"
)

const DefaultDepthWarningThreshold = 10

// HierarchyValidator reports structural problems of an organization's
// reporting graph. It never mutates data.
type HierarchyValidator struct {
	repo           HierarchyRepository
	depthThreshold int
}

func NewHierarchyValidator(repo HierarchyRepository, depthThreshold int) *HierarchyValidator {
	if depthThreshold <= 0 {
		depthThreshold = DefaultDepthWarningThreshold
	}
	return &HierarchyValidator{repo: repo, depthThreshold: depthThreshold}
}

func (v *HierarchyValidator) ValidateHierarchy(ctx context.Context, orgID uuid.UUID) (*hierarchy.ValidationResult, error) {
	if err := requireOrganization(orgID); err != nil {
		return nil, err
	}
	stats, err := v.repo.Stats(ctx, orgID)
	if err != nil {
		return nil, err
	}
	stats.AverageSpanOfControl = stats.AverageSpanOfControl.Round(2)

	edges, err := v.repo.ActiveEdges(ctx, orgID)
	if err != nil {
		return nil, err
	}

	result := &hierarchy.ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
		Stats:    stats,
	}
	if stats.OrphanedEmployees > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d employees are not part of the hierarchy", stats.OrphanedEmployees))
	}
	if stats.MaxDepth > v.depthThreshold {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("hierarchy depth %d exceeds %d levels; consider flattening", stats.MaxDepth, v.depthThreshold))
	}
	for _, employeeID := range duplicateActiveEdges(edges) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("employee %s has more than one active manager", employeeID))
	}
	for _, cycle := range findCycles(edges) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("reporting cycle detected: %s", formatCycle(cycle)))
	}
	result.IsValid = len(result.Errors) == 0

	if !result.IsValid {
		composables.UseLogger(ctx).WithFields(logrus.Fields{
			"organization_id": orgID,
			"errors":          len(result.Errors),
		}).Warn("hierarchy validation found integrity errors")
	}
	return result, nil
}

func duplicateActiveEdges(edges []hierarchy.Edge) []uuid.UUID {
	counts := make(map[uuid.UUID]int, len(edges))
	for _, e := range edges {
		counts[e.EmployeeID]++
	}
	var out []uuid.UUID
	for id, n := range counts {
		if n > 1 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// findCycles follows manager pointers from every employee and returns each
// cycle once, rotated to start at its smallest id.
func findCycles(edges []hierarchy.Edge) [][]uuid.UUID {
	managerOf := make(map[uuid.UUID]uuid.UUID, len(edges))
	for _, e := range edges {
		if e.ManagerID == nil {
			continue
		}
		if _, dup := managerOf[e.EmployeeID]; dup {
			continue
		}
		managerOf[e.EmployeeID] = *e.ManagerID
	}

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[uuid.UUID]int, len(managerOf))
	starts := make([]uuid.UUID, 0, len(managerOf))
	for id := range managerOf {
		starts = append(starts, id)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].String() < starts[j].String() })

	var cycles [][]uuid.UUID
	for _, start := range starts {
		if state[start] != unvisited {
			continue
		}
		var path []uuid.UUID
		cur := start
		for {
			if state[cur] == inProgress {
				idx := 0
				for i, id := range path {
					if id == cur {
						idx = i
						break
					}
				}
				cycles = append(cycles, rotateToMin(path[idx:]))
				break
			}
			if state[cur] == done {
				break
			}
			state[cur] = inProgress
			path = append(path, cur)
			next, ok := managerOf[cur]
			if !ok {
				break
			}
			cur = next
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return cycles
}

func rotateToMin(cycle []uuid.UUID) []uuid.UUID {
	minIdx := 0
	for i, id := range cycle {
		if id.String() < cycle[minIdx].String() {
			minIdx = i
		}
	}
	out := make([]uuid.UUID, 0, len(cycle))
	out = append(out, cycle[minIdx:]...)
	return append(out, cycle[:minIdx]...)
}

func formatCycle(cycle []uuid.UUID) string {
	parts := make([]string, 0, len(cycle)+1)
	for _, id := range cycle {
		parts = append(parts, id.String())
	}
	parts = append(parts, cycle[0].String())
	return strings.Join(parts, " -> ")
}

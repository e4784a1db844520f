package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
)

func node(name string, id uuid.UUID, manager *uuid.UUID) hierarchy.Node {
	return hierarchy.Node{EmployeeID: id, Name: name, ManagerID: manager}
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestBuildForest_Completeness(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	forest := BuildForest([]hierarchy.Node{
		node("D", d, ptr(b)),
		node("C", c, ptr(a)),
		node("B", b, ptr(a)),
		node("A", a, nil),
	})

	require.Len(t, forest, 1)
	root := forest[0]
	assert.Equal(t, a, root.EmployeeID)
	assert.Equal(t, 3, root.EmployeeCount)
	require.Len(t, root.Children, 2)

	nodeB, nodeC := root.Children[0], root.Children[1]
	assert.Equal(t, b, nodeB.EmployeeID)
	assert.Equal(t, c, nodeC.EmployeeID)
	assert.Equal(t, 1, nodeB.EmployeeCount)
	assert.Equal(t, 0, nodeC.EmployeeCount)
	require.Len(t, nodeB.Children, 1)
	assert.Equal(t, d, nodeB.Children[0].EmployeeID)
	assert.Equal(t, 0, nodeB.Children[0].EmployeeCount)
	assert.NotNil(t, nodeC.Children, "leaves carry an empty list, not nil")
}

func TestBuildForest_ReturnsEveryRoot(t *testing.T) {
	a, b, x := uuid.New(), uuid.New(), uuid.New()
	missingManager := uuid.New()

	forest := BuildForest([]hierarchy.Node{
		node("Beta", b, nil),
		node("Alpha", a, nil),
		node("Xavier", x, ptr(missingManager)),
	})

	require.Len(t, forest, 3)
	assert.Equal(t, []string{"Alpha", "Beta", "Xavier"}, []string{forest[0].Name, forest[1].Name, forest[2].Name})
}

func TestBuildForest_PromotesCycleMembers(t *testing.T) {
	root, x, y, z := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	forest := BuildForest([]hierarchy.Node{
		node("Root", root, nil),
		node("X", x, ptr(z)),
		node("Y", y, ptr(x)),
		node("Z", z, ptr(y)),
	})

	require.Len(t, forest, 2)
	assert.Equal(t, "Root", forest[0].Name)
	assert.Equal(t, "X", forest[1].Name)
	assert.Equal(t, 2, forest[1].EmployeeCount)

	seen := map[uuid.UUID]int{}
	Walk(forest, func(n *hierarchy.Node, _ int) { seen[n.EmployeeID]++ })
	assert.Len(t, seen, 4)
	for id, count := range seen {
		assert.Equal(t, 1, count, id.String())
	}
}

func TestBuildForest_Empty(t *testing.T) {
	assert.Empty(t, BuildForest(nil))
}

func TestWalk_Depths(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	forest := BuildForest([]hierarchy.Node{node("A", a, nil), node("B", b, ptr(a)), node("C", c, ptr(b))})

	depths := map[string]int{}
	Walk(forest, func(n *hierarchy.Node, depth int) { depths[n.Name] = depth })
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3}, depths)
}

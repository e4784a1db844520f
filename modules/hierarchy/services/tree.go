package services

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
)

// BuildForest links flat nodes into trees. A node whose manager is absent
// becomes a root; nodes reachable only through a cycle are promoted to roots
// so every employee appears exactly once.
func BuildForest(nodes []hierarchy.Node) []*hierarchy.Node {
	byID := make(map[uuid.UUID]*hierarchy.Node, len(nodes))
	ordered := make([]*hierarchy.Node, 0, len(nodes))
	for i := range nodes {
		if _, dup := byID[nodes[i].EmployeeID]; dup {
			continue
		}
		n := nodes[i]
		n.Children = []*hierarchy.Node{}
		n.EmployeeCount = 0
		byID[n.EmployeeID] = &n
		ordered = append(ordered, &n)
	}
	sortNodes(ordered)

	childrenByManager := make(map[uuid.UUID][]*hierarchy.Node, len(ordered))
	roots := make([]*hierarchy.Node, 0, 4)
	for _, n := range ordered {
		if n.ManagerID == nil || *n.ManagerID == n.EmployeeID {
			roots = append(roots, n)
			continue
		}
		if _, ok := byID[*n.ManagerID]; !ok {
			roots = append(roots, n)
			continue
		}
		childrenByManager[*n.ManagerID] = append(childrenByManager[*n.ManagerID], n)
	}

	visited := make(map[uuid.UUID]struct{}, len(ordered))
	var walk func(n *hierarchy.Node) int
	walk = func(n *hierarchy.Node) int {
		visited[n.EmployeeID] = struct{}{}
		count := 0
		for _, child := range childrenByManager[n.EmployeeID] {
			if _, seen := visited[child.EmployeeID]; seen {
				continue
			}
			n.Children = append(n.Children, child)
			count += 1 + walk(child)
		}
		n.EmployeeCount = count
		return count
	}

	for _, r := range roots {
		walk(r)
	}
	for _, n := range ordered {
		if _, seen := visited[n.EmployeeID]; seen {
			continue
		}
		roots = append(roots, n)
		walk(n)
	}
	return roots
}

func sortNodes(nodes []*hierarchy.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		ni := strings.ToLower(strings.TrimSpace(nodes[i].Name))
		nj := strings.ToLower(strings.TrimSpace(nodes[j].Name))
		if ni != nj {
			return ni < nj
		}
		return nodes[i].EmployeeID.String() < nodes[j].EmployeeID.String()
	})
}

// Walk visits every node of the forest depth-first with its depth, roots at 1.
func Walk(forest []*hierarchy.Node, fn func(n *hierarchy.Node, depth int)) {
	var visit func(n *hierarchy.Node, depth int)
	visit = func(n *hierarchy.Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range forest {
		visit(r, 1)
	}
}

package cluster

import (
	"fmt"
	"slices"

	"github.com/dd0wney/cluso-replset/pkg/validation"
)

// membership is the fixed member set of a replica set, ordered by ID.
// It is immutable after construction; only the nodes' own state changes.
type membership struct {
	nodes []*Node
	byID  map[string]*Node
}

func newMembership(ids []string) (*membership, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyMembership
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	m := &membership{
		nodes: make([]*Node, 0, len(sorted)),
		byID:  make(map[string]*Node, len(sorted)),
	}
	for _, id := range sorted {
		if !validation.ValidMemberID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMemberID, id)
		}
		if _, exists := m.byID[id]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMember, id)
		}
		n := NewNode(id)
		m.nodes = append(m.nodes, n)
		m.byID[id] = n
	}
	return m, nil
}

// get returns the member with the given ID
func (m *membership) get(id string) (*Node, error) {
	n, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return n, nil
}

// size returns N, the configured number of members
func (m *membership) size() int {
	return len(m.nodes)
}

// majority returns ceil((N+1)/2)
func (m *membership) majority() int {
	return len(m.nodes)/2 + 1
}

// reachable returns the reachable members in ID order
func (m *membership) reachable() []*Node {
	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		if n.Reachable() {
			out = append(out, n)
		}
	}
	return out
}

// byRole returns the members currently in role, in ID order
func (m *membership) byRole(role Role) []*Node {
	var out []*Node
	for _, n := range m.nodes {
		if n.Role() == role {
			out = append(out, n)
		}
	}
	return out
}

// hasQuorum reports whether a majority of members is reachable
func (m *membership) hasQuorum() bool {
	return len(m.reachable()) >= m.majority()
}

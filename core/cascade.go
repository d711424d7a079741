package core

import (
	"errors"
)

// An Effect is everything a sanction transition does to the database. The
// coordinator computes it up front; the database layer applies it in one
// transaction with the state transition, so a partial cascade is never
// observable. The node and sanction sets are read before that transaction
// begins, so a row created in between is not cascaded: a subject tree must
// not grow while its sanctions are in flight.
type Effect struct {
	SanctionID string
	FromState  State // guard, the transition fails if the sanction has left this state
	ToState    State

	Retract     []int       // node ids to mark retracted
	Register    []int       // node ids to mark registered
	Publish     []int       // node ids to make public
	Unpublish   []int       // node ids to make private again
	Delete      []int       // node ids to remove entirely
	SetGovernor map[int]int // node id -> new governor node id, zero clears

	ForceReject   []string // still-active sanctions cancelled by this transition
	ForceComplete []string // sanctions fulfilled by this transition, like an embargo being lifted

	Records []RecordEntry
}

const maxSubtreeNodes = 16384

// Subtree collects the ids of the node and all its descendants. It uses a
// worklist with a visited set, not recursion, so deep trees are fine.
func (c *CoreDB) Subtree(rootID int) ([]int, error) {

	var result []int
	var visited = make(map[int]interface{})
	var worklist = []int{rootID}

	for len(worklist) > 0 {

		id := worklist[0]
		worklist = worklist[1:]

		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		result = append(result, id)
		if len(result) > maxSubtreeNodes {
			return nil, errors.New("subtree too large")
		}

		children, err := c.NodeDB.GetChildren(id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			worklist = append(worklist, child.ID())
		}
	}

	return result, nil
}

func setGovernors(nodeIDs []int, governorID int) map[int]int {
	var m = make(map[int]int, len(nodeIDs))
	for _, id := range nodeIDs {
		m[id] = governorID
	}
	return m
}

func clearedGovernors(nodeIDs []int) map[int]int {
	return setGovernors(nodeIDs, 0)
}

// activeSanctionsUnder returns all still-active sanctions on the given nodes,
// except the one with the given id.
func (c *CoreDB) activeSanctionsUnder(nodeIDs []int, exceptID string) ([]DBSanction, error) {
	var result []DBSanction
	for _, id := range nodeIDs {
		sanctions, err := c.SanctionDB.GetActiveSanctionsByNode(id)
		if err != nil {
			return nil, err
		}
		for _, s := range sanctions {
			if s.ID() != exceptID {
				result = append(result, s)
			}
		}
	}
	return result, nil
}

// nextGovernor determines which node governs the subject after the sanction
// with the given id has gone: the subject itself if another sanction is still
// active on it, else the subject's own governor if that is a different node,
// else nothing.
func (c *CoreDB) nextGovernor(n *Node, goneID string) (int, error) {

	sanctions, err := c.SanctionDB.GetActiveSanctionsByNode(n.ID())
	if err != nil {
		return 0, err
	}
	for _, s := range sanctions {
		if s.ID() != goneID {
			return n.ID(), nil
		}
	}

	if gov := n.GovernorID(); gov != 0 && gov != n.ID() {
		return gov, nil
	}
	return 0, nil
}

package core

import (
	"sort"
)

// ResolveAdmins returns the ids of all confirmed users who have admin
// permission somewhere on the subject tree: through rules on the node itself,
// inherited from its ancestors, or assigned to a descendant. The result is
// sorted and free of duplicates. It is computed once, at initiation, and then
// frozen into the approver ledger.
func (c *CoreDB) ResolveAdmins(n *Node) ([]int, error) {

	var groupIDs = make(map[int]interface{})

	// inherited from the node and its ancestors
	for m := n; m != nil; m = m.Parent {
		if err := collectAdminGroups(c, m.ID(), groupIDs); err != nil {
			return nil, err
		}
	}

	// assigned to descendants
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	for _, id := range subtree {
		if id == n.ID() {
			continue
		}
		if err := collectAdminGroups(c, id, groupIDs); err != nil {
			return nil, err
		}
	}

	var userIDs = make(map[int]interface{})
	for groupID := range groupIDs {
		if groupID == 0 {
			continue // AllUsers has no enumerable members
		}
		group, err := c.GetGroup(groupID)
		if err != nil {
			return nil, err
		}
		members, err := group.Members()
		if err != nil {
			return nil, err
		}
		for userID := range members {
			userIDs[userID] = struct{}{}
		}
	}

	var result = make([]int, 0, len(userIDs))
	for userID := range userIDs {
		user, err := c.UserDB.GetUser(userID)
		if err != nil {
			return nil, err
		}
		if !user.Confirmed() {
			continue
		}
		result = append(result, userID)
	}

	sort.Ints(result)
	return result, nil
}

// requireLedgerAdmin checks that the user currently holds admin permission
// somewhere on the subject tree, with the same scope as ResolveAdmins: the
// node itself, an ancestor, or a descendant. The frozen ledger decides who
// may vote; this check only catches admins who lost their permission after
// their tokens were issued.
func (c *CoreDB) requireLedgerAdmin(n *Node, u DBUser) error {

	if u == nil {
		return ErrUnauthorized
	}

	// inherited from the node and its ancestors
	if err := n.RequirePermission(Admin, u); err == nil {
		return nil
	}

	// assigned to descendants
	var groupIDs = make(map[int]interface{})
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return err
	}
	for _, id := range subtree {
		if id == n.ID() {
			continue
		}
		if err := collectAdminGroups(c, id, groupIDs); err != nil {
			return err
		}
	}

	for groupID := range groupIDs {
		group, err := c.GetGroup(groupID)
		if err != nil {
			return err
		}
		isMember, err := group.HasMember(u)
		if err != nil {
			return err
		}
		if isMember {
			return nil
		}
	}

	return ErrUnauthorized
}

func collectAdminGroups(c *CoreDB, nodeID int, into map[int]interface{}) error {
	rules, err := c.GetAccessRules(nodeID)
	if err != nil {
		return err
	}
	for groupID, permInt := range rules {
		if Permission(permInt) >= Admin {
			into[groupID] = struct{}{}
		}
	}
	return nil
}

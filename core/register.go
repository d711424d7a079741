package core

import (
	"fmt"
)

// CreateRegistration copies the node and all its descendants into a frozen
// registration tree next to the originating project. Each copy points back to
// its origin and starts private; publication requires a completed
// registration approval.
func (c *CoreDB) CreateRegistration(n *Node, user DBUser) (*Node, error) {

	if err := n.RequirePermission(Admin, user); err != nil {
		return nil, fmt.Errorf("%w: registering requires admin permission", ErrPermission)
	}
	if n.IsRegistered() {
		return nil, fmt.Errorf("%w: already a registration", ErrNodeState)
	}
	if n.Parent == nil {
		return nil, fmt.Errorf("%w: can't register the root node", ErrNodeState)
	}

	slug, err := c.freeSlug(n.ParentID(), n.Slug()+"-registration")
	if err != nil {
		return nil, err
	}

	copyRoot, err := c.copyAsRegistration(n.DBNode, n.ParentID(), slug)
	if err != nil {
		return nil, err
	}

	// worklist over the source subtree, copying each node under its copied parent
	type pair struct {
		srcID       int
		dstParentID int
	}
	var worklist = []pair{{n.ID(), copyRoot.ID()}}
	var copied = 1

	for len(worklist) > 0 {

		p := worklist[0]
		worklist = worklist[1:]

		children, err := c.NodeDB.GetChildren(p.srcID)
		if err != nil {
			return nil, err
		}

		for _, child := range children {
			if child.IsRegistered() {
				continue // don't copy registrations of components
			}
			childCopy, err := c.copyAsRegistration(child, p.dstParentID, child.Slug())
			if err != nil {
				return nil, err
			}
			copied++
			if copied > maxSubtreeNodes {
				return nil, fmt.Errorf("%w: project too large to register", ErrNodeState)
			}
			worklist = append(worklist, pair{child.ID(), childCopy.ID()})
		}
	}

	if err := c.AppendRecord(RecordEntry{
		NodeID: n.ID(),
		UserID: user.ID(),
		Action: fmt.Sprintf("created registration %q", slug),
		Ts:     copyRoot.Created(),
	}); err != nil {
		return nil, err
	}

	return c.NodeByID(copyRoot.ID())
}

func (c *CoreDB) copyAsRegistration(src DBNode, parentID int, slug string) (DBNode, error) {
	dst, err := c.NodeDB.InsertNode(parentID, slug, src.Title())
	if err != nil {
		return nil, err
	}
	if err := c.NodeDB.SetDescription(dst, src.Description()); err != nil {
		return nil, err
	}
	if err := c.NodeDB.SetRegistered(dst, src.ID()); err != nil {
		return nil, err
	}
	return dst, nil
}

// freeSlug appends a counter until the slug is unused below the parent.
func (c *CoreDB) freeSlug(parentID int, slug string) (string, error) {
	var candidate = slug
	for i := 2; ; i++ {
		_, err := c.NodeDB.GetNodeBySlug(parentID, candidate)
		if err != nil {
			if c.NodeDB.IsNotFound(err) {
				return candidate, nil
			}
			return "", err
		}
		if i > 100 {
			return "", fmt.Errorf("no free slug for %s", slug)
		}
		candidate = fmt.Sprintf("%s-%d", slug, i)
	}
}

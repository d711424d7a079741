package core

import (
	"fmt"
	"strings"
	"time"
)

const RootSlug = "home"

type DBNode interface {
	ID() int
	ParentID() int
	Slug() string
	Title() string
	Description() string // HTML
	OriginID() int       // originating (non-registered) project, zero for projects
	IsRegistered() bool
	IsPublic() bool
	IsRetracted() bool
	GovernorID() int // nearest node (can be this one) whose sanction governs this node, zero if none
	Created() int64
}

type NodeDB interface {
	CountChildren(id int) (int, error)
	DeleteNode(n DBNode) error
	GetChildren(id int) ([]DBNode, error)
	GetNodeByID(id int) (DBNode, error)
	GetNodeBySlug(parentID int, slug string) (DBNode, error)
	InsertNode(parentID int, slug string, title string) (DBNode, error)
	IsNotFound(err error) bool
	SetDescription(n DBNode, description string) error
	SetPublic(n DBNode, public bool) error
	SetRegistered(n DBNode, originID int) error
	SetTitle(n DBNode, title string) error
}

type Node struct {
	DBNode
	Parent *Node // parent in node hierarchy, required for permission checking, nil if node is root
	db     *CoreDB
}

// NewNode creates a Node. The caller must provide the parent.
func (c *CoreDB) NewNode(parent *Node, dbNode DBNode) *Node {
	return &Node{
		DBNode: dbNode,
		Parent: parent,
		db:     c,
	}
}

// ID shadows DBNode.ID. If the receiver is nil, it returns zero.
func (n *Node) ID() int {
	if n != nil {
		return n.DBNode.ID()
	}
	return 0
}

func (n *Node) CountChildren() (int, error) {
	return n.db.CountChildren(n.ID())
}

func (n *Node) GetChildren() ([]*Node, error) {
	children, err := n.db.NodeDB.GetChildren(n.ID())
	if err != nil {
		return nil, err
	}
	var result = make([]*Node, 0, len(children))
	for _, c := range children {
		result = append(result, n.db.NewNode(n, c))
	}
	return result, nil
}

// Location returns the path of the node below the root node, like "/foo/bar".
func (n *Node) Location() string {
	var slugs = []string{}
	for m := n; m != nil && m.Parent != nil; m = m.Parent {
		slugs = append([]string{m.Slug()}, slugs...)
	}
	return "/" + strings.Join(slugs, "/")
}

func (n *Node) String() string {
	return n.Slug()
}

// MailTitle returns the node title, falling back to the first heading of the description.
func (n *Node) MailTitle() string {
	if title := strings.TrimSpace(n.Title()); title != "" {
		return title
	}
	if heading := headingOf(n.Description()); heading != "" {
		return heading
	}
	return n.Slug()
}

// RequirePermission returns an error if the given user does not have the given permission on the node.
func (n *Node) RequirePermission(perm Permission, u DBUser) error {
	return n.requirePermissionRecursive(perm, u)
}

func (n *Node) requirePermissionRecursive(perm Permission, u DBUser) error {

	if n == nil {
		return ErrUnauthorized
	}

	if err := n.db.requireRule(perm, n.DBNode.ID(), u); err == nil {
		return nil
	}

	// recursion
	if n.Parent != nil {
		if err := n.Parent.requirePermissionRecursive(perm, u); err == nil {
			return nil
		}
	}

	return ErrUnauthorized
}

// GetAssignedRules returns all access rules which are assigned with the receiver node.
func (n *Node) GetAssignedRules() (map[DBGroup]Permission, error) {
	var rawRules, err = n.db.GetAccessRules(n.ID())
	if err != nil {
		return nil, err
	}
	var rules = make(map[DBGroup]Permission)
	for groupID, permInt := range rawRules {
		var group, err = n.db.GetGroup(groupID)
		if err != nil {
			return nil, err
		}
		var perm = Permission(permInt)
		if !perm.Valid() {
			return nil, fmt.Errorf("invalid permission value %d", permInt)
		}
		rules[group] = perm
	}
	return rules, nil
}

// Governor returns the active sanctions of the node which governs the receiver,
// which can be the receiver itself. The result is empty if no sanction applies.
//
// This is the denormalized O(1) read path. The governor pointer is maintained
// by the same transactions which create and resolve sanctions.
func (n *Node) Governor() ([]DBSanction, error) {
	if n.GovernorID() == 0 {
		return nil, nil
	}
	return n.db.SanctionDB.GetActiveSanctionsByNode(n.GovernorID())
}

// IsPendingRegistration tells whether the node awaits registration approval.
func (n *Node) IsPendingRegistration() (bool, error) {
	sanctions, err := n.Governor()
	if err != nil {
		return false, err
	}
	for _, s := range sanctions {
		if s.Kind() == KindRegistrationApproval || s.Kind() == KindDraftApproval {
			if s.State() == Unapproved || s.State() == PendingModeration {
				return true, nil
			}
		}
	}
	return false, nil
}

// IsEmbargoed tells whether the node is under an active embargo.
func (n *Node) IsEmbargoed(now time.Time) (bool, error) {
	sanctions, err := n.Governor()
	if err != nil {
		return false, err
	}
	for _, s := range sanctions {
		if s.Kind() == KindEmbargo && s.State() == Approved && s.EndDate() > now.Unix() {
			return true, nil
		}
	}
	return false, nil
}

// EmbargoEnd returns the end date of the active embargo, or zero.
func (n *Node) EmbargoEnd() (int64, error) {
	sanctions, err := n.Governor()
	if err != nil {
		return 0, err
	}
	for _, s := range sanctions {
		if s.Kind() == KindEmbargo && s.State() == Approved {
			return s.EndDate(), nil
		}
	}
	return 0, nil
}

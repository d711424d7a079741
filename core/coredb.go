package core

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/wansing/curator/util"
)

type CoreDB struct {
	AccessDB
	GroupDB
	NodeDB
	RecordDB
	SanctionDB
	UserDB
	SessionManager *scs.SessionManager
	Tokens         *TokenCodec
	Mailer         Mailer

	HMACSecret     string // exported because main sets it
	LinkBase       string // absolute URL prefix for token links, like "https://example.com"
	ModerateDrafts bool   // whether draft registrations wait for a moderator before voting starts
}

func (c *CoreDB) Init(sessionStore scs.Store, cookiePath string) error {

	if c.HMACSecret == "" {
		var err error
		c.HMACSecret, err = util.RandomString32()
		if err == nil {
			log.Println("generating random HMAC secret, tokens won't survive a restart")
		} else {
			return fmt.Errorf("error generating random HMAC secret: %v", err)
		}
	}

	c.Tokens = NewTokenCodec([]byte(c.HMACSecret))

	c.SessionManager = scs.New()
	c.SessionManager.Store = sessionStore
	c.SessionManager.Cookie.Path = cookiePath + "/"         // 'The default value is "/". Passing the empty string "" will result in it being set to the path that the cookie was issued from.'
	c.SessionManager.Cookie.Persist = false                 // Don't store cookie across browser sessions. Required for GDPR cookie consent exemption criterion B.
	c.SessionManager.Cookie.SameSite = http.SameSiteLaxMode // the approve/reject links do modify state on GET, but forging those cross-site requires the unguessable token
	c.SessionManager.Cookie.Secure = false                  // else running on localhost or behind a http proxy fails
	c.SessionManager.IdleTimeout = 12 * time.Hour
	c.SessionManager.Lifetime = 720 * time.Hour

	if c.Mailer == nil {
		c.Mailer = LogMailer{}
	}

	return nil
}

// AddAccessRule shadows AccessDB.InsertAccessRule.
func (c *CoreDB) AddAccessRule(n *Node, groupID int, perm Permission) error {
	var group, err = c.GroupDB.GetGroup(groupID)
	if err != nil {
		return err
	}
	return c.AccessDB.InsertAccessRule(n.ID(), group.ID(), int(perm))
}

// RemoveAccessRule shadows AccessDB.RemoveAccessRule.
func (c *CoreDB) RemoveAccessRule(n *Node, groupID int) error {
	// not checking if the group exists because not a lot can go wrong
	return c.AccessDB.RemoveAccessRule(n.ID(), groupID)
}

func (c *CoreDB) GetNodeBySlug(parent *Node, slug string) (*Node, error) {
	dbNode, err := c.NodeDB.GetNodeBySlug(parent.ID(), slug)
	if err != nil {
		return nil, err
	}
	return c.NewNode(parent, dbNode), nil
}

// Open resolves a path like "/foo/bar" to a node, assembling the Parent chain
// along the way. It requires Read permission on the leaf.
func (c *CoreDB) Open(user DBUser, path string) (*Node, error) {

	slugs := strings.FieldsFunc(path, func(c rune) bool {
		return c == '/'
	})
	if len(slugs) > 16 {
		return nil, errors.New("path too deep")
	}

	rootNode, err := c.NodeDB.GetNodeBySlug(0, RootSlug)
	if err != nil {
		return nil, fmt.Errorf("open root: %w", err)
	}

	var n = c.NewNode(nil, rootNode)
	for _, slug := range slugs {
		n, err = c.GetNodeBySlug(n, slug)
		if err != nil {
			return nil, fmt.Errorf("open (%d, %s): %w", n.ID(), slug, err)
		}
	}

	if err := n.RequirePermission(Read, user); err != nil {
		// unpublished nodes are visible to their admins only
		if !n.IsPublic() {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	return n, nil
}

// NodeByID loads a node and its ancestor chain.
func (c *CoreDB) NodeByID(id int) (*Node, error) {

	var chain []DBNode
	var maxDepth = 16
	for id != 0 {
		if maxDepth--; maxDepth < 0 {
			return nil, errors.New("too deep")
		}
		dbNode, err := c.NodeDB.GetNodeByID(id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, dbNode)
		id = dbNode.ParentID()
	}

	var n *Node
	for i := len(chain) - 1; i >= 0; i-- {
		n = c.NewNode(n, chain[i])
	}
	return n, nil
}

// InternalPathByNodeID determines the internal path of the node with the given id.
func (c *CoreDB) InternalPathByNodeID(id int) (string, error) {
	n, err := c.NodeByID(id)
	if err != nil {
		return "", err
	}
	return n.Location(), nil
}

// requireRule checks if a node with a given id has a rule which gives permission to the user.
func (c *CoreDB) requireRule(required Permission, nodeID int, u DBUser) error {

	if u == nil && required > Read {
		return ErrUnauthorized
	}

	var err error
	var groups []DBGroup
	if u != nil {
		groups, err = c.GroupDB.GetGroupsOf(u)
		if err != nil {
			return err
		}
	}
	groups = append(groups, AllUsers{})

	nodeRules, err := c.GetAccessRules(nodeID)
	if err != nil {
		return err
	}

	for _, group := range groups {
		if myPermission, ok := nodeRules[group.ID()]; ok {
			var myPerm = Permission(myPermission)
			if !myPerm.Valid() {
				return errors.New("invalid permission")
			}
			if myPerm >= required {
				return nil
			}
		}
	}

	return ErrUnauthorized
}

func (c *CoreDB) requirePermissionByID(perm Permission, nodeID int, u DBUser) error {
	n, err := c.NodeByID(nodeID)
	if err != nil {
		return err
	}
	return n.RequirePermission(perm, u)
}

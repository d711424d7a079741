package core_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wansing/curator/core"
	"github.com/wansing/curator/sqldb"
)

// newTestDB wires a CoreDB against an in-memory SQLite database. One
// connection only, because each sqlite :memory: connection is its own
// database. The root node gets id 1.
func newTestDB(t *testing.T) *core.CoreDB {

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})

	var db = &core.CoreDB{
		AccessDB: sqldb.NewAccessDB(sqlDB),
		GroupDB:  sqldb.NewGroupDB(sqlDB),
		NodeDB:   sqldb.NewNodeDB(sqlDB),
		RecordDB: sqldb.NewRecordDB(sqlDB),
		UserDB:   sqldb.NewUserDB(sqlDB),
	}
	db.SanctionDB = sqldb.NewSanctionDB(sqlDB) // element and record tables exist now
	db.HMACSecret = "test-secret"
	require.NoError(t, db.Init(memstore.New(), ""))

	_, err = db.NodeDB.InsertNode(0, core.RootSlug, "")
	require.NoError(t, err)

	return db
}

func newUser(t *testing.T, db *core.CoreDB, name string, confirmed bool) core.DBUser {
	user, err := db.InsertUser(name)
	require.NoError(t, err)
	if confirmed {
		require.NoError(t, db.Confirm(user))
	}
	return user
}

// makeAdmins creates a group with the given users and grants it admin
// permission on the node.
func makeAdmins(t *testing.T, db *core.CoreDB, nodeID int, groupName string, users ...core.DBUser) core.DBGroup {
	require.NoError(t, db.InsertGroup(groupName))
	group, err := db.GetGroupByName(groupName)
	require.NoError(t, err)
	for _, user := range users {
		require.NoError(t, db.Join(group, user))
	}
	require.NoError(t, db.InsertAccessRule(nodeID, group.ID(), int(core.Admin)))
	return group
}

func insertNode(t *testing.T, db *core.CoreDB, parentID int, slug string) core.DBNode {
	dbNode, err := db.NodeDB.InsertNode(parentID, slug, slug)
	require.NoError(t, err)
	return dbNode
}

func insertRegistration(t *testing.T, db *core.CoreDB, parentID int, slug string, public bool) core.DBNode {
	dbNode := insertNode(t, db, parentID, slug)
	require.NoError(t, db.NodeDB.SetRegistered(dbNode, 0))
	if public {
		require.NoError(t, db.NodeDB.SetPublic(dbNode, true))
	}
	return dbNode
}

func reload(t *testing.T, db *core.CoreDB, id int) *core.Node {
	n, err := db.NodeByID(id)
	require.NoError(t, err)
	return n
}

func ledgerEntry(t *testing.T, s *core.Sanction, user core.DBUser) core.DBApprover {
	approvers, err := s.Approvers()
	require.NoError(t, err)
	for _, a := range approvers {
		if a.UserID() == user.ID() {
			return a
		}
	}
	t.Fatalf("user %d not in ledger of sanction %s", user.ID(), s.ID())
	return nil
}

func approvalToken(t *testing.T, s *core.Sanction, user core.DBUser) string {
	return ledgerEntry(t, s, user).ApprovalToken()
}

func rejectionToken(t *testing.T, s *core.Sanction, user core.DBUser) string {
	return ledgerEntry(t, s, user).RejectionToken()
}

func TestRetraction(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	// public registration with two descendants
	reg := insertRegistration(t, db, 1, "study", true)
	child := insertRegistration(t, db, reg.ID(), "data", true)
	grandchild := insertRegistration(t, db, child.ID(), "raw", true)
	makeAdmins(t, db, reg.ID(), "study-admins", alice)

	s, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, "irreparable measurement error")
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())
	assert.Equal(t, "irreparable measurement error", s.Justification())

	// initiation sets the governor pointer on the whole subtree
	assert.Equal(t, reg.ID(), reload(t, db, grandchild.ID()).GovernorID())

	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Completed, s.State())

	// the whole tree is retracted but stays public as a tombstone
	for _, id := range []int{reg.ID(), child.ID(), grandchild.ID()} {
		n := reload(t, db, id)
		assert.True(t, n.IsRetracted(), "node %d", id)
		assert.True(t, n.IsPublic(), "node %d", id)
		assert.Equal(t, reg.ID(), n.GovernorID(), "node %d", id)
	}

	records, err := db.GetRecords(reg.ID(), 10, 0)
	require.NoError(t, err)
	var actions []string
	for _, r := range records {
		actions = append(actions, r.Action())
	}
	assert.Contains(t, actions, "requested retraction")
	assert.Contains(t, actions, "approved the retraction")
	assert.Contains(t, actions, "retracted")
}

func TestRetractionRequiresQuorum(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)

	reg := insertRegistration(t, db, 1, "study", true)
	makeAdmins(t, db, reg.ID(), "study-admins", alice, bob)

	s, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, "")
	require.NoError(t, err)

	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())
	assert.False(t, reload(t, db, reg.ID()).IsRetracted())

	approved, total, err := s.ApprovalCount()
	require.NoError(t, err)
	assert.Equal(t, 1, approved)
	assert.Equal(t, 2, total)

	s, err = db.ApproveSanction(bob, approvalToken(t, s, bob))
	require.NoError(t, err)
	assert.Equal(t, core.Completed, s.State())
	assert.True(t, reload(t, db, reg.ID()).IsRetracted())
}

func TestRegistrationApproval(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)

	reg := insertRegistration(t, db, 1, "study", false)
	child := insertRegistration(t, db, reg.ID(), "data", false)
	makeAdmins(t, db, reg.ID(), "study-admins", alice, bob)

	s, err := db.InitiateRegistrationApproval(reload(t, db, reg.ID()), alice)
	require.NoError(t, err)

	pending, err := reload(t, db, child.ID()).IsPendingRegistration()
	require.NoError(t, err)
	assert.True(t, pending)

	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())
	assert.False(t, reload(t, db, reg.ID()).IsPublic())

	s, err = db.ApproveSanction(bob, approvalToken(t, s, bob))
	require.NoError(t, err)
	assert.Equal(t, core.Completed, s.State())

	for _, id := range []int{reg.ID(), child.ID()} {
		n := reload(t, db, id)
		assert.True(t, n.IsPublic(), "node %d", id)
		assert.Zero(t, n.GovernorID(), "node %d", id)
	}
}

func TestRegistrationApprovalVeto(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)

	origin := insertNode(t, db, 1, "project")
	reg := insertRegistration(t, db, 1, "study", false)
	child := insertRegistration(t, db, reg.ID(), "data", false)
	require.NoError(t, db.NodeDB.SetRegistered(reg, origin.ID()))
	makeAdmins(t, db, reg.ID(), "study-admins", alice, bob)

	s, err := db.InitiateRegistrationApproval(reload(t, db, reg.ID()), alice)
	require.NoError(t, err)

	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())

	// a single veto rejects the sanction and deletes the registration copies
	s, err = db.RejectSanction(bob, rejectionToken(t, s, bob))
	require.NoError(t, err)
	assert.Equal(t, core.Rejected, s.State())

	for _, id := range []int{reg.ID(), child.ID()} {
		_, err := db.NodeDB.GetNodeByID(id)
		assert.True(t, db.NodeDB.IsNotFound(err), "node %d should be gone", id)
	}

	// the originating project survives, the log lives there
	_, err = db.NodeDB.GetNodeByID(origin.ID())
	require.NoError(t, err)
	records, err := db.GetRecords(origin.ID(), 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, records)

	// terminal states accept no further votes
	_, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	assert.ErrorIs(t, err, core.ErrApprovalToken)
	assert.Equal(t, core.Rejected, mustGetSanction(t, db, s.ID()).State())
}

func TestIdempotentApproval(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)

	reg := insertRegistration(t, db, 1, "study", true)
	makeAdmins(t, db, reg.ID(), "study-admins", alice, bob)

	s, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, "")
	require.NoError(t, err)

	token := approvalToken(t, s, alice)
	s, err = db.ApproveSanction(alice, token)
	require.NoError(t, err)

	// replaying the same token is a no-op, not an error
	s, err = db.ApproveSanction(alice, token)
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())

	approved, total, err := s.ApprovalCount()
	require.NoError(t, err)
	assert.Equal(t, 1, approved)
	assert.Equal(t, 2, total)
}

func TestVoteTokenValidation(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)

	reg := insertRegistration(t, db, 1, "study", true)
	makeAdmins(t, db, reg.ID(), "study-admins", alice, bob)

	s, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, "")
	require.NoError(t, err)

	_, err = db.ApproveSanction(alice, "")
	assert.ErrorIs(t, err, core.ErrApprovalToken)

	_, err = db.ApproveSanction(alice, "not.a.token")
	assert.ErrorIs(t, err, core.ErrApprovalToken)

	// tokens are personal
	_, err = db.ApproveSanction(bob, approvalToken(t, s, alice))
	assert.ErrorIs(t, err, core.ErrApprovalToken)

	// an approval token never rejects
	_, err = db.RejectSanction(alice, approvalToken(t, s, alice))
	assert.ErrorIs(t, err, core.ErrRejectionToken)

	// nothing changed
	approved, _, err := mustGetSanction(t, db, s.ID()).ApprovalCount()
	require.NoError(t, err)
	assert.Zero(t, approved)
}

func TestFrozenLedger(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)
	carol := newUser(t, db, "carol@example.com", true)

	reg := insertRegistration(t, db, 1, "study", true)
	group := makeAdmins(t, db, reg.ID(), "study-admins", alice, bob)

	s, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, "")
	require.NoError(t, err)

	// an admin added after initiation gains no vote
	require.NoError(t, db.Join(group, carol))
	approvers, err := mustGetSanction(t, db, s.ID()).Approvers()
	require.NoError(t, err)
	assert.Len(t, approvers, 2)

	// admin revocation after token issuance is honored
	require.NoError(t, db.Leave(group, bob))
	_, err = db.ApproveSanction(bob, approvalToken(t, s, bob))
	assert.ErrorIs(t, err, core.ErrPermission)

	// the ledger still counts the revoked admin, so the quorum stays open
	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())
	assert.False(t, reload(t, db, reg.ID()).IsRetracted())
}

func TestEmbargo(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	reg := insertRegistration(t, db, 1, "study", false)
	child := insertRegistration(t, db, reg.ID(), "data", false)
	makeAdmins(t, db, reg.ID(), "study-admins", alice)

	end := time.Now().Add(30 * 24 * time.Hour)
	s, err := db.InitiateEmbargo(reload(t, db, reg.ID()), alice, end)
	require.NoError(t, err)

	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)

	// quorum fulfillment makes the embargo active, not completed
	assert.Equal(t, core.Approved, s.State())

	n := reload(t, db, reg.ID())
	embargoed, err := n.IsEmbargoed(time.Now())
	require.NoError(t, err)
	assert.True(t, embargoed)
	assert.False(t, n.IsPublic())

	embargoEnd, err := n.EmbargoEnd()
	require.NoError(t, err)
	assert.Equal(t, end.Unix(), embargoEnd)

	// the child is governed by the embargoed root
	embargoed, err = reload(t, db, child.ID()).IsEmbargoed(time.Now())
	require.NoError(t, err)
	assert.True(t, embargoed)
}

func TestEmbargoBounds(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	reg := insertRegistration(t, db, 1, "study", false)
	makeAdmins(t, db, reg.ID(), "study-admins", alice)
	n := reload(t, db, reg.ID())

	_, err := db.InitiateEmbargo(n, alice, time.Now().Add(24*time.Hour))
	assert.ErrorIs(t, err, core.ErrNodeState)

	_, err = db.InitiateEmbargo(n, alice, time.Now().Add(5*365*24*time.Hour))
	assert.ErrorIs(t, err, core.ErrNodeState)
}

func TestEmbargoVeto(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)

	reg := insertRegistration(t, db, 1, "study", false)
	makeAdmins(t, db, reg.ID(), "study-admins", alice, bob)

	s, err := db.InitiateEmbargo(reload(t, db, reg.ID()), alice, time.Now().Add(30*24*time.Hour))
	require.NoError(t, err)

	s, err = db.RejectSanction(bob, rejectionToken(t, s, bob))
	require.NoError(t, err)
	assert.Equal(t, core.Rejected, s.State())

	// back to the pre-sanction state, nothing is deleted
	n := reload(t, db, reg.ID())
	assert.Zero(t, n.GovernorID())
	assert.False(t, n.IsPublic())
	assert.True(t, n.IsRegistered())
}

func TestEmbargoExpiration(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	reg := insertRegistration(t, db, 1, "study", false)
	child := insertRegistration(t, db, reg.ID(), "data", false)
	makeAdmins(t, db, reg.ID(), "study-admins", alice)

	s, err := db.InitiateEmbargo(reload(t, db, reg.ID()), alice, time.Now().Add(72*time.Hour))
	require.NoError(t, err)
	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	require.Equal(t, core.Approved, s.State())

	// nothing expires yet
	count, err := db.CheckEmbargoExpirations(time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = db.CheckEmbargoExpirations(time.Now().Add(96 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, core.Completed, mustGetSanction(t, db, s.ID()).State())
	for _, id := range []int{reg.ID(), child.ID()} {
		n := reload(t, db, id)
		assert.True(t, n.IsPublic(), "node %d", id)
		assert.Zero(t, n.GovernorID(), "node %d", id)
	}

	// a second run finds nothing
	count, err = db.CheckEmbargoExpirations(time.Now().Add(96 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEmbargoTermination(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	reg := insertRegistration(t, db, 1, "study", false)
	makeAdmins(t, db, reg.ID(), "study-admins", alice)

	embargo, err := db.InitiateEmbargo(reload(t, db, reg.ID()), alice, time.Now().Add(30*24*time.Hour))
	require.NoError(t, err)
	embargo, err = db.ApproveSanction(alice, approvalToken(t, embargo, alice))
	require.NoError(t, err)
	require.Equal(t, core.Approved, embargo.State())

	termination, err := db.InitiateEmbargoTermination(reload(t, db, reg.ID()), alice)
	require.NoError(t, err)
	termination, err = db.ApproveSanction(alice, approvalToken(t, termination, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Completed, termination.State())

	// lifting the embargo fulfills it
	assert.Equal(t, core.Completed, mustGetSanction(t, db, embargo.ID()).State())

	n := reload(t, db, reg.ID())
	assert.True(t, n.IsPublic())
	assert.Zero(t, n.GovernorID())
}

// A retraction of an embargoed registration cancels the embargo and leaves a
// public tombstone.
func TestRetractionCancelsEmbargo(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	reg := insertRegistration(t, db, 1, "study", false)
	makeAdmins(t, db, reg.ID(), "study-admins", alice)

	embargo, err := db.InitiateEmbargo(reload(t, db, reg.ID()), alice, time.Now().Add(30*24*time.Hour))
	require.NoError(t, err)
	embargo, err = db.ApproveSanction(alice, approvalToken(t, embargo, alice))
	require.NoError(t, err)
	require.Equal(t, core.Approved, embargo.State())

	// the subject is private but embargoed, so retraction is allowed
	retraction, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, "fabricated data")
	require.NoError(t, err)
	retraction, err = db.ApproveSanction(alice, approvalToken(t, retraction, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Completed, retraction.State())

	// the embargo never runs its course
	assert.Equal(t, core.Rejected, mustGetSanction(t, db, embargo.ID()).State())

	n := reload(t, db, reg.ID())
	assert.True(t, n.IsRetracted())
	assert.True(t, n.IsPublic())
	embargoed, err := n.IsEmbargoed(time.Now())
	require.NoError(t, err)
	assert.False(t, embargoed)
}

func TestDraftApproval(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	draft := insertNode(t, db, 1, "draft")
	child := insertNode(t, db, draft.ID(), "data")
	makeAdmins(t, db, draft.ID(), "draft-admins", alice)

	s, err := db.InitiateDraftApproval(reload(t, db, draft.ID()), alice, false)
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())

	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Completed, s.State())

	for _, id := range []int{draft.ID(), child.ID()} {
		n := reload(t, db, id)
		assert.True(t, n.IsRegistered(), "node %d", id)
		assert.False(t, n.IsPublic(), "node %d", id)
		assert.Zero(t, n.GovernorID(), "node %d", id)
	}
}

func TestModeration(t *testing.T) {

	db := newTestDB(t)
	moderator := newUser(t, db, "moderator@example.com", true)
	alice := newUser(t, db, "alice@example.com", true)

	makeAdmins(t, db, 1, "root-admins", moderator)
	draft := insertNode(t, db, 1, "draft")
	makeAdmins(t, db, draft.ID(), "draft-admins", alice)

	s, err := db.InitiateDraftApproval(reload(t, db, draft.ID()), alice, true)
	require.NoError(t, err)
	assert.Equal(t, core.PendingModeration, s.State())

	// no votes before moderation
	_, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	assert.ErrorIs(t, err, core.ErrNodeState)

	// moderation requires root admin permission
	err = db.AcceptModeration(s, alice)
	assert.ErrorIs(t, err, core.ErrPermission)

	require.NoError(t, db.AcceptModeration(s, moderator))
	s = mustGetSanction(t, db, s.ID())
	assert.Equal(t, core.Unapproved, s.State())

	// the root admin inherited admin permission, so both must approve
	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())

	s, err = db.ApproveSanction(moderator, approvalToken(t, s, moderator))
	require.NoError(t, err)
	assert.Equal(t, core.Completed, s.State())
	assert.True(t, reload(t, db, draft.ID()).IsRegistered())
}

func TestModerationRejected(t *testing.T) {

	db := newTestDB(t)
	moderator := newUser(t, db, "moderator@example.com", true)
	alice := newUser(t, db, "alice@example.com", true)

	makeAdmins(t, db, 1, "root-admins", moderator)
	draft := insertNode(t, db, 1, "draft")
	makeAdmins(t, db, draft.ID(), "draft-admins", alice)

	s, err := db.InitiateDraftApproval(reload(t, db, draft.ID()), alice, true)
	require.NoError(t, err)

	require.NoError(t, db.RejectModeration(s, moderator))
	s = mustGetSanction(t, db, s.ID())
	assert.Equal(t, core.Rejected, s.State())

	// the draft survives, unregistered and ungoverned
	n := reload(t, db, draft.ID())
	assert.False(t, n.IsRegistered())
	assert.Zero(t, n.GovernorID())

	// votes after moderation rejection bounce off the terminal state
	_, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	assert.ErrorIs(t, err, core.ErrApprovalToken)
}

func TestOnePendingPerKind(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	reg := insertRegistration(t, db, 1, "study", false)
	makeAdmins(t, db, reg.ID(), "study-admins", alice)
	n := reload(t, db, reg.ID())

	_, err := db.InitiateEmbargo(n, alice, time.Now().Add(30*24*time.Hour))
	require.NoError(t, err)

	_, err = db.InitiateEmbargo(n, alice, time.Now().Add(60*24*time.Hour))
	assert.ErrorIs(t, err, core.ErrNodeState)

	// a different kind can run concurrently
	_, err = db.InitiateRegistrationApproval(n, alice)
	require.NoError(t, err)
}

func TestInitiationChecks(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	mallory := newUser(t, db, "mallory@example.com", true)

	reg := insertRegistration(t, db, 1, "study", true)
	private := insertRegistration(t, db, 1, "private", false)
	makeAdmins(t, db, 1, "admins", alice)

	// initiation requires admin permission
	_, err := db.InitiateRetraction(reload(t, db, reg.ID()), mallory, "")
	assert.ErrorIs(t, err, core.ErrPermission)

	// a private registration without an embargo can't be retracted
	_, err = db.InitiateRetraction(reload(t, db, private.ID()), alice, "")
	assert.ErrorIs(t, err, core.ErrNodeState)

	// a public registration can't be embargoed or approved again
	_, err = db.InitiateEmbargo(reload(t, db, reg.ID()), alice, time.Now().Add(30*24*time.Hour))
	assert.ErrorIs(t, err, core.ErrNodeState)
	_, err = db.InitiateRegistrationApproval(reload(t, db, reg.ID()), alice)
	assert.ErrorIs(t, err, core.ErrNodeState)

	// drafts are not registrations
	draft := insertNode(t, db, 1, "draft")
	_, err = db.InitiateRetraction(reload(t, db, draft.ID()), alice, "")
	assert.ErrorIs(t, err, core.ErrNodeState)
	_, err = db.InitiateDraftApproval(reload(t, db, reg.ID()), alice, false)
	assert.ErrorIs(t, err, core.ErrNodeState)
}

func TestApproverResolution(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)
	unconfirmed := newUser(t, db, "unconfirmed@example.com", false)

	reg := insertRegistration(t, db, 1, "study", true)
	child := insertRegistration(t, db, reg.ID(), "data", true)

	// alice and the unconfirmed user on the root of the registration,
	// bob on a descendant only
	makeAdmins(t, db, reg.ID(), "study-admins", alice, unconfirmed)
	makeAdmins(t, db, child.ID(), "data-admins", bob)

	s, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, "")
	require.NoError(t, err)

	approvers, err := s.Approvers()
	require.NoError(t, err)
	require.Len(t, approvers, 2)
	assert.Equal(t, alice.ID(), approvers[0].UserID())
	assert.Equal(t, bob.ID(), approvers[1].UserID())
}

// An admin whose only rule sits on a descendant of the subject is a full
// member of the frozen ledger, so their vote must be accepted.
func TestDescendantAdminVotes(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	bob := newUser(t, db, "bob@example.com", true)

	reg := insertRegistration(t, db, 1, "study", true)
	child := insertRegistration(t, db, reg.ID(), "data", true)
	studyAdmins := makeAdmins(t, db, reg.ID(), "study-admins", alice)
	dataAdmins := makeAdmins(t, db, child.ID(), "data-admins", bob)

	s, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, "")
	require.NoError(t, err)

	approvers, err := s.Approvers()
	require.NoError(t, err)
	require.Len(t, approvers, 2)

	s, err = db.ApproveSanction(alice, approvalToken(t, s, alice))
	require.NoError(t, err)
	assert.Equal(t, core.Unapproved, s.State())

	s, err = db.ApproveSanction(bob, approvalToken(t, s, bob))
	require.NoError(t, err)
	assert.Equal(t, core.Completed, s.State())
	assert.True(t, reload(t, db, reg.ID()).IsRetracted())

	// losing the descendant rule still voids the vote
	reg2 := insertRegistration(t, db, 1, "study-two", true)
	child2 := insertRegistration(t, db, reg2.ID(), "data", true)
	require.NoError(t, db.InsertAccessRule(reg2.ID(), studyAdmins.ID(), int(core.Admin)))
	require.NoError(t, db.InsertAccessRule(child2.ID(), dataAdmins.ID(), int(core.Admin)))

	s2, err := db.InitiateRetraction(reload(t, db, reg2.ID()), alice, "")
	require.NoError(t, err)

	require.NoError(t, db.Leave(dataAdmins, bob))
	_, err = db.ApproveSanction(bob, approvalToken(t, s2, bob))
	assert.ErrorIs(t, err, core.ErrPermission)
}

func TestNoEligibleApprovers(t *testing.T) {

	db := newTestDB(t)
	unconfirmed := newUser(t, db, "unconfirmed@example.com", false)

	reg := insertRegistration(t, db, 1, "study", true)
	makeAdmins(t, db, reg.ID(), "study-admins", unconfirmed)

	// the unconfirmed admin can initiate but nobody could vote
	_, err := db.InitiateRetraction(reload(t, db, reg.ID()), unconfirmed, "")
	assert.ErrorIs(t, err, core.ErrNodeState)
}

func TestJustificationBounds(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)

	reg := insertRegistration(t, db, 1, "study", true)
	makeAdmins(t, db, reg.ID(), "study-admins", alice)

	var long = make([]rune, 2049)
	for i := range long {
		long[i] = 'x'
	}
	_, err := db.InitiateRetraction(reload(t, db, reg.ID()), alice, string(long))
	assert.ErrorIs(t, err, core.ErrNodeState)
}

func mustGetSanction(t *testing.T, db *core.CoreDB, id string) *core.Sanction {
	s, err := db.GetSanction(id)
	require.NoError(t, err)
	return s
}

package core

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// A sanction is an approval-gated irreversible action on a registered node.
// Every admin across the node and its descendants holds a personal approval
// and rejection token; the sanction completes when all of them have approved,
// and is rejected as soon as any single one rejects.

type Kind string

const (
	KindRegistrationApproval Kind = "registration_approval"
	KindEmbargo              Kind = "embargo"
	KindEmbargoTermination   Kind = "embargo_termination"
	KindRetraction           Kind = "retraction"
	KindDraftApproval        Kind = "draft_registration_approval"
)

func (k Kind) Label() string {
	switch k {
	case KindRegistrationApproval:
		return "registration approval"
	case KindEmbargo:
		return "embargo"
	case KindEmbargoTermination:
		return "embargo termination"
	case KindRetraction:
		return "retraction"
	case KindDraftApproval:
		return "draft registration approval"
	}
	return string(k)
}

type State string

const (
	Unapproved        State = "unapproved"
	PendingModeration State = "pending_moderation"
	Approved          State = "approved"
	Rejected          State = "rejected"
	Completed         State = "completed"
)

// Terminal tells whether the state accepts no further votes.
func (s State) Terminal() bool {
	return s == Approved || s == Rejected || s == Completed
}

const maxJustificationRunes = 2048

// Embargo end dates must be between two days and four years ahead.
const (
	minEmbargoLead    = 48 * time.Hour
	maxEmbargoHorizon = 4 * 365 * 24 * time.Hour
)

type DBSanction interface {
	ID() string
	NodeID() int
	Kind() Kind
	State() State
	InitiatedBy() int
	Initiated() int64
	EndDate() int64        // embargoes only
	Justification() string // retractions only
	Approvers() ([]DBApprover, error)
}

type DBApprover interface {
	UserID() int
	ApprovalToken() string
	RejectionToken() string
	HasApproved() bool
	HasRejected() bool
}

type SanctionDB interface {
	// ApplyEffect performs the guarded state transition and all side effects
	// of the given effect in a single transaction. It fails without any
	// change if the sanction is not in effect.FromState any more.
	ApplyEffect(effect *Effect) error
	GetActiveSanctionsByNode(nodeID int) ([]DBSanction, error) // unapproved, pending moderation or approved
	GetExpiredEmbargoes(now int64) ([]DBSanction, error)       // approved embargoes whose end date has passed
	GetSanction(id string) (DBSanction, error)
	// InsertSanction stores the sanction with its frozen approver ledger and
	// applies the initiation effect, all in one transaction.
	InsertSanction(draft *SanctionDraft, effect *Effect) error
	IsNotFound(err error) bool
	// RecordApproval durably records the vote. If it was the last outstanding
	// approval, exactly one caller observes completed == true and the effect
	// is applied in the same transaction as the vote.
	RecordApproval(s DBSanction, userID int, record RecordEntry, effect *Effect) (completed bool, err error)
	// RecordRejection durably records the veto. The first rejection transitions
	// the sanction and applies the effect atomically.
	RecordRejection(s DBSanction, userID int, record RecordEntry, effect *Effect) (rejected bool, err error)
}

// SanctionDraft is a sanction about to be created, with its frozen ledger.
type SanctionDraft struct {
	ID            string
	NodeID        int
	Kind          Kind
	State         State
	InitiatedBy   int
	Initiated     int64
	EndDate       int64
	Justification string
	Approvers     []DraftApprover
}

type DraftApprover struct {
	UserID         int
	ApprovalToken  string
	RejectionToken string
}

// Sanction wraps DBSanction with the CoreDB.
type Sanction struct {
	DBSanction
	db *CoreDB
}

func (c *CoreDB) newSanction(dbSanction DBSanction) *Sanction {
	return &Sanction{
		DBSanction: dbSanction,
		db:         c,
	}
}

// Node loads the sanction's subject with its ancestor chain.
func (s *Sanction) Node() (*Node, error) {
	return s.db.NodeByID(s.NodeID())
}

func (s *Sanction) String() string {
	return fmt.Sprintf("%s %s", s.Kind().Label(), s.ID())
}

// GetSanction shadows CoreDB.SanctionDB.GetSanction.
func (c *CoreDB) GetSanction(id string) (*Sanction, error) {
	dbSanction, err := c.SanctionDB.GetSanction(id)
	if err != nil {
		return nil, err
	}
	return c.newSanction(dbSanction), nil
}

// getActiveSanction returns the pending or approved sanction of the given
// kind on the node, or nil.
func (c *CoreDB) getActiveSanction(nodeID int, kind Kind) (DBSanction, error) {
	sanctions, err := c.SanctionDB.GetActiveSanctionsByNode(nodeID)
	if err != nil {
		return nil, err
	}
	for _, s := range sanctions {
		if s.Kind() == kind {
			return s, nil
		}
	}
	return nil, nil
}

// initiate creates a sanction on the node: it resolves the approver set,
// freezes the ledger with one approval and one rejection token per approver,
// stores everything atomically with the initiation effect, and notifies
// every approver.
func (c *CoreDB) initiate(n *Node, initiator DBUser, kind Kind, state State, endDate int64, justification string) (*Sanction, error) {

	if err := n.RequirePermission(Admin, initiator); err != nil {
		return nil, fmt.Errorf("%w: initiating a %s requires admin permission", ErrPermission, kind.Label())
	}

	if active, err := c.getActiveSanction(n.ID(), kind); err != nil {
		return nil, err
	} else if active != nil {
		return nil, fmt.Errorf("%w: a %s is already pending", ErrNodeState, kind.Label())
	}

	approverIDs, err := c.ResolveAdmins(n)
	if err != nil {
		return nil, err
	}

	var draft = &SanctionDraft{
		ID:            uuid.NewString(),
		NodeID:        n.ID(),
		Kind:          kind,
		State:         state,
		InitiatedBy:   initiator.ID(),
		Initiated:     time.Now().Unix(),
		EndDate:       endDate,
		Justification: justification,
	}

	draft.Approvers, err = c.freezeLedger(draft.ID, approverIDs)
	if err != nil {
		return nil, err
	}

	effect, err := actionFor(kind).OnInitiate(c, draft, n)
	if err != nil {
		return nil, err
	}

	if err := c.SanctionDB.InsertSanction(draft, effect); err != nil {
		return nil, err
	}

	s, err := c.GetSanction(draft.ID)
	if err != nil {
		return nil, err
	}

	c.notifyApprovers(s, n, initiator)

	return s, nil
}

// InitiateRetraction starts the retraction of a public registration.
// The justification is bounded and shown on the status page.
func (c *CoreDB) InitiateRetraction(n *Node, initiator DBUser, justification string) (*Sanction, error) {

	if !n.IsRegistered() {
		return nil, fmt.Errorf("%w: only registrations can be retracted", ErrNodeState)
	}
	if !n.IsPublic() {
		// embargoed registrations are private but can still be retracted
		embargoed, err := n.IsEmbargoed(time.Now())
		if err != nil {
			return nil, err
		}
		if !embargoed {
			return nil, fmt.Errorf("%w: can't retract a private registration", ErrNodeState)
		}
	}
	if n.IsRetracted() {
		return nil, fmt.Errorf("%w: already retracted", ErrNodeState)
	}

	if runes := len([]rune(justification)); runes > maxJustificationRunes {
		return nil, fmt.Errorf("%w: justification too long (%d runes, max %d)", ErrNodeState, runes, maxJustificationRunes)
	}

	return c.initiate(n, initiator, KindRetraction, Unapproved, 0, justification)
}

// InitiateEmbargo starts an embargo on an unpublished registration.
func (c *CoreDB) InitiateEmbargo(n *Node, initiator DBUser, end time.Time) (*Sanction, error) {

	if !n.IsRegistered() {
		return nil, fmt.Errorf("%w: only registrations can be embargoed", ErrNodeState)
	}
	if n.IsPublic() {
		return nil, fmt.Errorf("%w: can't embargo a public registration", ErrNodeState)
	}
	if n.IsRetracted() {
		return nil, fmt.Errorf("%w: retracted", ErrNodeState)
	}

	var now = time.Now()
	if end.Before(now.Add(minEmbargoLead)) {
		return nil, fmt.Errorf("%w: embargo end date must be at least two days ahead", ErrNodeState)
	}
	if end.After(now.Add(maxEmbargoHorizon)) {
		return nil, fmt.Errorf("%w: embargo end date must be at most four years ahead", ErrNodeState)
	}

	return c.initiate(n, initiator, KindEmbargo, Unapproved, end.Unix(), "")
}

// InitiateRegistrationApproval starts the approval of an unpublished registration.
func (c *CoreDB) InitiateRegistrationApproval(n *Node, initiator DBUser) (*Sanction, error) {

	if !n.IsRegistered() {
		return nil, fmt.Errorf("%w: approval can only be requested for a registration", ErrNodeState)
	}
	if n.IsPublic() {
		return nil, fmt.Errorf("%w: already public", ErrNodeState)
	}

	return c.initiate(n, initiator, KindRegistrationApproval, Unapproved, 0, "")
}

// InitiateEmbargoTermination asks to lift an active embargo early.
func (c *CoreDB) InitiateEmbargoTermination(n *Node, initiator DBUser) (*Sanction, error) {

	embargoed, err := n.IsEmbargoed(time.Now())
	if err != nil {
		return nil, err
	}
	if !embargoed {
		return nil, fmt.Errorf("%w: not embargoed", ErrNodeState)
	}

	return c.initiate(n, initiator, KindEmbargoTermination, Unapproved, 0, "")
}

// InitiateDraftApproval starts the approval of a draft registration. With
// moderation, the sanction waits for a moderator before votes are accepted.
func (c *CoreDB) InitiateDraftApproval(n *Node, initiator DBUser, moderated bool) (*Sanction, error) {

	if n.IsRegistered() {
		return nil, fmt.Errorf("%w: already registered", ErrNodeState)
	}

	var state = Unapproved
	if moderated {
		state = PendingModeration
	}
	return c.initiate(n, initiator, KindDraftApproval, state, 0, "")
}

// ApproveSanction records the vote behind an approval token. If the token
// completes the quorum, the sanction's terminal action and its cascade run
// before ApproveSanction returns.
func (c *CoreDB) ApproveSanction(user DBUser, tokenString string) (*Sanction, error) {
	return c.vote(user, tokenString, PurposeApproval)
}

// RejectSanction records the veto behind a rejection token. A single
// rejection cancels the sanction for everyone.
func (c *CoreDB) RejectSanction(user DBUser, tokenString string) (*Sanction, error) {
	return c.vote(user, tokenString, PurposeRejection)
}

func (c *CoreDB) vote(user DBUser, tokenString string, purpose TokenPurpose) (*Sanction, error) {

	var tokenErr = ErrApprovalToken
	if purpose == PurposeRejection {
		tokenErr = ErrRejectionToken
	}

	action, err := c.Tokens.Decode(tokenString)
	if err != nil {
		log.Printf("malformed sanction token: %v", err)
		return nil, fmt.Errorf("%w: malformed", tokenErr)
	}

	if action.Purpose != purpose {
		log.Printf("sanction token with wrong purpose %s presented for %s", action.Purpose, purpose)
		return nil, fmt.Errorf("%w: wrong purpose", tokenErr)
	}

	if user == nil || action.ActorID != user.ID() {
		log.Printf("sanction token for actor %d presented by someone else", action.ActorID)
		return nil, fmt.Errorf("%w: issued to someone else", tokenErr)
	}

	s, err := c.GetSanction(action.SanctionID)
	if err != nil {
		if c.SanctionDB.IsNotFound(err) {
			log.Printf("sanction token for unknown sanction %s", action.SanctionID)
			return nil, fmt.Errorf("%w: unknown sanction", tokenErr)
		}
		return nil, err
	}

	if s.State() == PendingModeration {
		return nil, fmt.Errorf("%w: awaiting moderation", ErrNodeState)
	}
	if s.State().Terminal() {
		return nil, fmt.Errorf("%w: the %s has already been resolved", tokenErr, s.Kind().Label())
	}

	entry, err := c.ledgerEntry(s, user.ID())
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: not an approver of this %s", ErrPermission, s.Kind().Label())
	}

	// single-purpose tokens: the stored token must match, byte for byte
	var want = entry.ApprovalToken()
	if purpose == PurposeRejection {
		want = entry.RejectionToken()
	}
	if want != tokenString {
		log.Printf("sanction token mismatch for sanction %s, user %d", s.ID(), user.ID())
		return nil, fmt.Errorf("%w: does not belong to this sanction", tokenErr)
	}

	n, err := s.Node()
	if err != nil {
		return nil, err
	}

	// admin revocation after token issuance is honored
	if err := c.requireLedgerAdmin(n, user); err != nil {
		return nil, fmt.Errorf("%w: admin permission required", ErrPermission)
	}

	switch purpose {
	case PurposeApproval:
		if entry.HasRejected() {
			return nil, fmt.Errorf("%w: already rejected", tokenErr)
		}
		if entry.HasApproved() {
			return s, nil // no-op, not an error
		}
		return c.recordApproval(s, n, user)
	default:
		if entry.HasApproved() {
			return nil, fmt.Errorf("%w: already approved", tokenErr)
		}
		if entry.HasRejected() {
			return s, nil // no-op, not an error
		}
		return c.recordRejection(s, n, user)
	}
}

func (c *CoreDB) recordApproval(s *Sanction, n *Node, user DBUser) (*Sanction, error) {

	effect, err := actionFor(s.Kind()).OnComplete(c, s, n)
	if err != nil {
		return nil, err
	}

	var record = RecordEntry{
		NodeID: recordNodeID(n),
		UserID: user.ID(),
		Action: fmt.Sprintf("approved the %s", s.Kind().Label()),
		Ts:     time.Now().Unix(),
	}

	completed, err := c.SanctionDB.RecordApproval(s.DBSanction, user.ID(), record, effect)
	if err != nil {
		return nil, err
	}

	if completed {
		log.Printf("%s completed on node %d", s.Kind().Label(), s.NodeID())
	}

	return c.GetSanction(s.ID())
}

func (c *CoreDB) recordRejection(s *Sanction, n *Node, user DBUser) (*Sanction, error) {

	effect, err := actionFor(s.Kind()).OnReject(c, s, n)
	if err != nil {
		return nil, err
	}

	var record = RecordEntry{
		NodeID: recordNodeID(n),
		UserID: user.ID(),
		Action: fmt.Sprintf("rejected the %s", s.Kind().Label()),
		Ts:     time.Now().Unix(),
	}

	rejected, err := c.SanctionDB.RecordRejection(s.DBSanction, user.ID(), record, effect)
	if err != nil {
		return nil, err
	}

	if rejected {
		log.Printf("%s rejected on node %d", s.Kind().Label(), s.NodeID())
	}

	// the reject effect of a registration approval deletes the subject
	reloaded, err := c.GetSanction(s.ID())
	if err != nil && c.SanctionDB.IsNotFound(err) {
		return s, nil
	}
	return reloaded, err
}

// AcceptModeration moves a moderated sanction into the voting phase.
// Moderators are root admins.
func (c *CoreDB) AcceptModeration(s *Sanction, moderator DBUser) error {

	if err := c.requireRootAdmin(moderator); err != nil {
		return fmt.Errorf("%w: moderation requires root admin permission", ErrPermission)
	}
	if s.State() != PendingModeration {
		return fmt.Errorf("%w: not awaiting moderation", ErrNodeState)
	}

	n, err := s.Node()
	if err != nil {
		return err
	}

	return c.SanctionDB.ApplyEffect(&Effect{
		SanctionID: s.ID(),
		FromState:  PendingModeration,
		ToState:    Unapproved,
		Records: []RecordEntry{{
			NodeID: recordNodeID(n),
			UserID: moderator.ID(),
			Action: fmt.Sprintf("accepted the %s for review", s.Kind().Label()),
			Ts:     time.Now().Unix(),
		}},
	})
}

// RejectModeration terminates a moderated sanction before any votes.
func (c *CoreDB) RejectModeration(s *Sanction, moderator DBUser) error {

	if err := c.requireRootAdmin(moderator); err != nil {
		return fmt.Errorf("%w: moderation requires root admin permission", ErrPermission)
	}
	if s.State() != PendingModeration {
		return fmt.Errorf("%w: not awaiting moderation", ErrNodeState)
	}

	n, err := s.Node()
	if err != nil {
		return err
	}

	effect, err := actionFor(s.Kind()).OnReject(c, s, n)
	if err != nil {
		return err
	}
	effect.FromState = PendingModeration

	effect.Records = append(effect.Records, RecordEntry{
		NodeID: recordNodeID(n),
		UserID: moderator.ID(),
		Action: fmt.Sprintf("rejected the %s in moderation", s.Kind().Label()),
		Ts:     time.Now().Unix(),
	})

	return c.SanctionDB.ApplyEffect(effect)
}

// CheckEmbargoExpirations completes every approved embargo whose end date has
// passed, making each subject tree public. A scheduled job calls this at a
// coarse interval.
func (c *CoreDB) CheckEmbargoExpirations(now time.Time) (int, error) {

	expired, err := c.SanctionDB.GetExpiredEmbargoes(now.Unix())
	if err != nil {
		return 0, err
	}

	var count int
	for _, dbSanction := range expired {

		n, err := c.NodeByID(dbSanction.NodeID())
		if err != nil {
			return count, err
		}

		subtree, err := c.Subtree(n.ID())
		if err != nil {
			return count, err
		}

		var effect = &Effect{
			SanctionID:  dbSanction.ID(),
			FromState:   Approved,
			ToState:     Completed,
			Publish:     subtree,
			SetGovernor: clearedGovernors(subtree),
			Records: []RecordEntry{{
				NodeID: recordNodeID(n),
				UserID: dbSanction.InitiatedBy(),
				Action: "embargo ended",
				Ts:     now.Unix(),
			}},
		}

		if err := c.SanctionDB.ApplyEffect(effect); err != nil {
			return count, err
		}
		count++

		log.Printf("embargo %s on node %d ended", dbSanction.ID(), dbSanction.NodeID())
	}

	return count, nil
}

func (c *CoreDB) requireRootAdmin(u DBUser) error {
	// node id 1 is more robust than Node.Parent.Parent..., which relies on the consistency of the Parent field
	return c.requireRule(Admin, 1, u)
}

// recordNodeID prefers the originating project over the registration copy,
// so the log survives deletion of the copy.
func recordNodeID(n *Node) int {
	if n.OriginID() != 0 {
		return n.OriginID()
	}
	return n.ID()
}

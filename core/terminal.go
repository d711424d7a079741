package core

import (
	"fmt"
	"time"
)

// Each sanction kind implements terminalAction. OnInitiate computes the
// effect stored atomically with the new sanction, OnComplete the effect of a
// fulfilled quorum, OnReject the effect of a single veto. The shared quorum
// logic lives in CoreDB.vote and SanctionDB; only the outcomes differ by kind.
type terminalAction interface {
	OnInitiate(c *CoreDB, draft *SanctionDraft, n *Node) (*Effect, error)
	OnComplete(c *CoreDB, s *Sanction, n *Node) (*Effect, error)
	OnReject(c *CoreDB, s *Sanction, n *Node) (*Effect, error)
}

func actionFor(kind Kind) terminalAction {
	switch kind {
	case KindEmbargo:
		return embargoAction{}
	case KindEmbargoTermination:
		return embargoTerminationAction{}
	case KindRetraction:
		return retractionAction{}
	case KindDraftApproval:
		return draftApprovalAction{}
	default:
		return registrationApprovalAction{}
	}
}

func initiationRecord(draft *SanctionDraft, n *Node, action string) []RecordEntry {
	return []RecordEntry{{
		NodeID: recordNodeID(n),
		UserID: draft.InitiatedBy,
		Action: action,
		Ts:     draft.Initiated,
	}}
}

func terminalRecord(s *Sanction, n *Node, action string) []RecordEntry {
	return []RecordEntry{{
		NodeID: recordNodeID(n),
		UserID: s.InitiatedBy(),
		Action: action,
		Ts:     time.Now().Unix(),
	}}
}

// registrationApprovalAction publishes the registration tree on completion.
// Rejection deletes the whole tree of registration copies, leaving the
// originating project untouched.
type registrationApprovalAction struct{}

func (registrationApprovalAction) OnInitiate(c *CoreDB, draft *SanctionDraft, n *Node) (*Effect, error) {
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	return &Effect{
		SanctionID:  draft.ID,
		SetGovernor: setGovernors(subtree, n.ID()),
		Records:     initiationRecord(draft, n, "requested registration approval"),
	}, nil
}

func (registrationApprovalAction) OnComplete(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {

	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}

	var effect = &Effect{
		SanctionID: s.ID(),
		FromState:  Unapproved,
		ToState:    Completed,
	}

	// with an embargo layered underneath, approval does not publish
	embargo, err := c.getActiveSanction(n.ID(), KindEmbargo)
	if err != nil {
		return nil, err
	}
	if embargo != nil {
		effect.SetGovernor = setGovernors(subtree, n.ID())
		effect.Records = terminalRecord(s, n, "registration approved, embargoed")
	} else {
		effect.Publish = subtree
		effect.SetGovernor = clearedGovernors(subtree)
		effect.Records = terminalRecord(s, n, "registration approved and made public")
	}

	return effect, nil
}

func (registrationApprovalAction) OnReject(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	return &Effect{
		SanctionID: s.ID(),
		FromState:  Unapproved,
		ToState:    Rejected,
		Delete:     subtree,
		Records:    terminalRecord(s, n, "registration approval rejected, registration deleted"),
	}, nil
}

// embargoAction keeps the tree private. Quorum fulfillment makes the embargo
// active (Approved); it completes later, when its end date passes or an
// embargo termination lifts it.
type embargoAction struct{}

func (embargoAction) OnInitiate(c *CoreDB, draft *SanctionDraft, n *Node) (*Effect, error) {
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	return &Effect{
		SanctionID:  draft.ID,
		SetGovernor: setGovernors(subtree, n.ID()),
		Records:     initiationRecord(draft, n, fmt.Sprintf("requested an embargo until %s", formatDate(draft.EndDate))),
	}, nil
}

func (embargoAction) OnComplete(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	return &Effect{
		SanctionID:  s.ID(),
		FromState:   Unapproved,
		ToState:     Approved,
		SetGovernor: setGovernors(subtree, n.ID()),
		Records:     terminalRecord(s, n, fmt.Sprintf("embargo approved until %s", formatDate(s.EndDate()))),
	}, nil
}

func (embargoAction) OnReject(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {

	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}

	// back to the pre-sanction visibility, nothing is deleted
	governor, err := c.nextGovernor(n, s.ID())
	if err != nil {
		return nil, err
	}

	return &Effect{
		SanctionID:  s.ID(),
		FromState:   Unapproved,
		ToState:     Rejected,
		SetGovernor: setGovernors(subtree, governor),
		Records:     terminalRecord(s, n, "embargo rejected"),
	}, nil
}

// embargoTerminationAction lifts an active embargo early.
type embargoTerminationAction struct{}

func (embargoTerminationAction) OnInitiate(c *CoreDB, draft *SanctionDraft, n *Node) (*Effect, error) {
	// the embargo remains the governor while the termination is voted on
	return &Effect{
		SanctionID: draft.ID,
		Records:    initiationRecord(draft, n, "requested to end the embargo early"),
	}, nil
}

func (embargoTerminationAction) OnComplete(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {

	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}

	var effect = &Effect{
		SanctionID:  s.ID(),
		FromState:   Unapproved,
		ToState:     Completed,
		Publish:     subtree,
		SetGovernor: clearedGovernors(subtree),
		Records:     terminalRecord(s, n, "embargo ended early, registration made public"),
	}

	embargo, err := c.getActiveSanction(n.ID(), KindEmbargo)
	if err != nil {
		return nil, err
	}
	if embargo != nil {
		effect.ForceComplete = []string{embargo.ID()}
	}

	return effect, nil
}

func (embargoTerminationAction) OnReject(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {
	return &Effect{
		SanctionID: s.ID(),
		FromState:  Unapproved,
		ToState:    Rejected,
		Records:    terminalRecord(s, n, "early embargo end rejected"),
	}, nil
}

// retractionAction marks the whole tree retracted. Retracted registrations
// stay public as tombstones. Sanctions still active anywhere in the tree are
// force-rejected, so a stale approval can't revive them later.
type retractionAction struct{}

func (retractionAction) OnInitiate(c *CoreDB, draft *SanctionDraft, n *Node) (*Effect, error) {
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	return &Effect{
		SanctionID:  draft.ID,
		SetGovernor: setGovernors(subtree, n.ID()),
		Records:     initiationRecord(draft, n, "requested retraction"),
	}, nil
}

func (retractionAction) OnComplete(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {

	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}

	siblings, err := c.activeSanctionsUnder(subtree, s.ID())
	if err != nil {
		return nil, err
	}
	var forceReject = make([]string, 0, len(siblings))
	for _, sibling := range siblings {
		forceReject = append(forceReject, sibling.ID())
	}

	return &Effect{
		SanctionID:  s.ID(),
		FromState:   Unapproved,
		ToState:     Completed,
		Retract:     subtree,
		Publish:     subtree,
		SetGovernor: setGovernors(subtree, n.ID()),
		ForceReject: forceReject,
		Records:     terminalRecord(s, n, "retracted"),
	}, nil
}

func (retractionAction) OnReject(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {

	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}

	governor, err := c.nextGovernor(n, s.ID())
	if err != nil {
		return nil, err
	}

	return &Effect{
		SanctionID:  s.ID(),
		FromState:   Unapproved,
		ToState:     Rejected,
		SetGovernor: setGovernors(subtree, governor),
		Records:     terminalRecord(s, n, "retraction rejected"),
	}, nil
}

// draftApprovalAction turns a draft into a registration on completion.
type draftApprovalAction struct{}

func (draftApprovalAction) OnInitiate(c *CoreDB, draft *SanctionDraft, n *Node) (*Effect, error) {
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	return &Effect{
		SanctionID:  draft.ID,
		SetGovernor: setGovernors(subtree, n.ID()),
		Records:     initiationRecord(draft, n, "submitted draft for registration"),
	}, nil
}

func (draftApprovalAction) OnComplete(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	return &Effect{
		SanctionID:  s.ID(),
		FromState:   Unapproved,
		ToState:     Completed,
		Register:    subtree,
		SetGovernor: clearedGovernors(subtree),
		Records:     terminalRecord(s, n, "draft approved and registered"),
	}, nil
}

func (draftApprovalAction) OnReject(c *CoreDB, s *Sanction, n *Node) (*Effect, error) {
	subtree, err := c.Subtree(n.ID())
	if err != nil {
		return nil, err
	}
	return &Effect{
		SanctionID:  s.ID(),
		FromState:   Unapproved,
		ToState:     Rejected,
		SetGovernor: clearedGovernors(subtree),
		Records:     terminalRecord(s, n, "draft registration rejected"),
	}, nil
}

func formatDate(ts int64) string {
	return time.Unix(ts, 0).Format("2006-01-02")
}

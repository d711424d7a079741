package core

import (
	"fmt"
)

// freezeLedger creates the approver ledger of a new sanction: one approval
// token and one rejection token per approver. The approver set is frozen
// here; admins added later do not gain a vote.
func (c *CoreDB) freezeLedger(sanctionID string, approverIDs []int) ([]DraftApprover, error) {

	// a sanction without approvers would never resolve
	if len(approverIDs) == 0 {
		return nil, fmt.Errorf("%w: no eligible approvers", ErrNodeState)
	}

	var approvers = make([]DraftApprover, 0, len(approverIDs))
	for _, userID := range approverIDs {

		approvalToken, err := c.Tokens.Encode(PurposeApproval, sanctionID, userID)
		if err != nil {
			return nil, err
		}

		rejectionToken, err := c.Tokens.Encode(PurposeRejection, sanctionID, userID)
		if err != nil {
			return nil, err
		}

		approvers = append(approvers, DraftApprover{
			UserID:         userID,
			ApprovalToken:  approvalToken,
			RejectionToken: rejectionToken,
		})
	}

	return approvers, nil
}

// ledgerEntry returns the approver entry of the given user, or nil.
func (c *CoreDB) ledgerEntry(s *Sanction, userID int) (DBApprover, error) {
	approvers, err := s.Approvers()
	if err != nil {
		return nil, err
	}
	for _, a := range approvers {
		if a.UserID() == userID {
			return a, nil
		}
	}
	return nil, nil
}

// ApprovalCount returns how many approvers have approved, and the ledger size.
func (s *Sanction) ApprovalCount() (approved int, total int, err error) {
	approvers, err := s.Approvers()
	if err != nil {
		return 0, 0, err
	}
	for _, a := range approvers {
		if a.HasApproved() {
			approved++
		}
	}
	return approved, len(approvers), nil
}

package core

import (
	"errors"
)

var ErrUnauthorized = errors.New("unauthorized")

// Sanction errors. Handlers map them to HTTP status codes with errors.Is.
var (
	// ErrApprovalToken covers malformed approval tokens, tokens of a
	// resolved sanction and tokens which do not belong to the sanction
	// being acted on.
	ErrApprovalToken = errors.New("invalid approval token")

	// ErrRejectionToken is the rejection-side counterpart of ErrApprovalToken.
	ErrRejectionToken = errors.New("invalid rejection token")

	// ErrPermission means the actor does not hold admin permission,
	// whether they never held it or lost it after their token was issued.
	ErrPermission = errors.New("permission denied")

	// ErrNodeState means the action does not fit the current state of the
	// node, like retracting a private node or initiating a sanction while
	// one of the same kind is still pending.
	ErrNodeState = errors.New("incompatible node state")
)

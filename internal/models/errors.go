package models

import "errors"

// Sentinel errors for approval lifecycle operations. Services wrap these
// with fmt.Errorf("%w: ...") so callers can match with errors.Is.
var (
	ErrApprovalNotFound        = errors.New("approval request not found")
	ErrApprovalNotPending      = errors.New("approval request already decided")
	ErrApprovalNotApproved     = errors.New("approval request is not approved")
	ErrApprovalExpired         = errors.New("approval request has expired")
	ErrApprovalAlreadyConsumed = errors.New("approval request already consumed")
	ErrInvalidDecision         = errors.New("decision must be approved or rejected")
)

// Sentinel errors for policy rule-set operations
var (
	ErrInvalidRuleSet   = errors.New("invalid policy rule set")
	ErrNoActiveSnapshot = errors.New("no active policy snapshot")
)

// ErrRunNotFound is returned when an audit record lookup misses
var ErrRunNotFound = errors.New("run not found")

// ErrorResponse is the JSON error envelope returned by all handlers
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

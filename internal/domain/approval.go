package domain

import "time"

// ApprovalState is the lifecycle state of an L3 approval request.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
	ApprovalExpired  ApprovalState = "expired"
)

// L3ApprovalDeadline is the fixed human-review window (spec §5).
const L3ApprovalDeadline = 24 * time.Hour

// ApprovalRequest is a human-in-the-loop gate for L3 artifacts, used
// both for ordinary L3 review and as the TIER3_UNAVAILABLE fallback.
type ApprovalRequest struct {
	ID           string
	ArtifactHash string
	Reason       string
	Requester    string
	CreatedAt    time.Time
	Deadline     time.Time
	State        ApprovalState
	Resolver     string
	ResolvedAt   time.Time
	Notes        string
}

// IsExpired reports whether the deadline has passed without resolution.
func (r *ApprovalRequest) IsExpired(now time.Time) bool {
	return r.State == ApprovalPending && now.After(r.Deadline)
}

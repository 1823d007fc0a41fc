package domain

import "time"

// DeferralCategory determines the maximum disclosure deferral window.
type DeferralCategory string

const (
	CategorySafety        DeferralCategory = "safety"
	CategoryMedical       DeferralCategory = "medical"
	CategoryLegal         DeferralCategory = "legal"
	CategoryFinancial     DeferralCategory = "financial"
	CategoryReputational  DeferralCategory = "reputational"
	CategoryLow           DeferralCategory = "low"
)

// MaxWindow returns the hard deferral ceiling for a category.
func MaxWindow(c DeferralCategory) time.Duration {
	switch c {
	case CategorySafety:
		return 4 * time.Hour
	case CategoryMedical, CategoryLegal, CategoryFinancial:
		return 24 * time.Hour
	case CategoryReputational:
		return 72 * time.Hour
	default:
		return 0
	}
}

// DeferralState is the lifecycle state of a deferral record.
type DeferralState string

const (
	DeferralActive   DeferralState = "active"
	DeferralResolved DeferralState = "resolved"
	DeferralForced   DeferralState = "forced_disclosure"
)

// DeferralRecord delays disclosure of a verified-but-harmful fact.
type DeferralRecord struct {
	ID           string
	ArtifactHash string
	Category     DeferralCategory
	Reason       string
	CreatedAt    time.Time
	Deadline     time.Time
	State        DeferralState
}

// NewDeferralRecord builds a record whose deadline is capped at the
// category's maximum window.
func NewDeferralRecord(artifactHash string, category DeferralCategory, reason string, now time.Time) *DeferralRecord {
	return &DeferralRecord{
		ArtifactHash: artifactHash,
		Category:     category,
		Reason:       reason,
		CreatedAt:    now,
		Deadline:     now.Add(MaxWindow(category)),
		State:        DeferralActive,
	}
}

// Expired reports whether the deadline has passed, forcing disclosure.
func (d *DeferralRecord) Expired(now time.Time) bool {
	return d.State == DeferralActive && !now.Before(d.Deadline)
}

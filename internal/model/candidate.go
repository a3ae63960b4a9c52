package model

import "time"

// CandidateStatus tracks the review lifecycle of a rule candidate.
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateAccepted CandidateStatus = "accepted"
	CandidateRejected CandidateStatus = "rejected"
)

// RuleCandidate is a vendor→account pair whose evidence has cleared the
// promotion thresholds and is awaiting reviewer action.
type RuleCandidate struct {
	ID               string          `json:"id"`
	VendorKey        string          `json:"vendor_key"`
	SuggestedAccount string          `json:"suggested_account"`
	Evidence         EvidenceRecord  `json:"evidence"`
	Status           CandidateStatus `json:"status"`
	DecidedBy        string          `json:"decided_by,omitempty"`
	DecidedAt        *time.Time      `json:"decided_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

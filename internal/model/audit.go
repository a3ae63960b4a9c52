package model

import "time"

// AuditAction names an attempted mutation of engine state.
type AuditAction string

const (
	AuditPromote       AuditAction = "promote"
	AuditReject        AuditAction = "reject"
	AuditRollback      AuditAction = "rollback"
	AuditImport        AuditAction = "import"
	AuditCandidate     AuditAction = "candidate_created"
	AuditConflict      AuditAction = "evidence_conflict"
	AuditCalibration   AuditAction = "calibration_refit"
	AuditRetrainNotify AuditAction = "retrain_trigger"
)

// AuditEntry records an attempted mutation, successful or not. Failure
// paths write entries too so the trail is never silent.
type AuditEntry struct {
	ID        string         `json:"id"`
	Action    AuditAction    `json:"action"`
	Author    string         `json:"author"`
	Succeeded bool           `json:"succeeded"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

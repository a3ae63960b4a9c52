package model

import "time"

// TraceTerm is one literal weight×score term of the blend arithmetic.
type TraceTerm struct {
	Source  SignalSource `json:"source"`
	Weight  float64      `json:"weight"`
	Score   float64      `json:"score"`
	Product float64      `json:"product"`
	Missing bool         `json:"missing"`
}

// ExplanationTrace reconstructs why a historical decision was made. It is
// derived purely from persisted records; nothing is recomputed live, so a
// trace is stable even after rules or weights change.
type ExplanationTrace struct {
	TxnID         string        `json:"txn_id"`
	VendorKey     string        `json:"vendor_key"`
	Signals       []SignalScore `json:"signals"`
	Terms         []TraceTerm   `json:"terms"`
	BlendScore    float64       `json:"blend_score"`
	Route         Route         `json:"route"`
	FinalAccount  string        `json:"final_account"`
	RuleVersionID int64         `json:"rule_version_id"`
	Thresholds    RouteBands    `json:"thresholds"`
	Timestamp     time.Time     `json:"timestamp"`
}

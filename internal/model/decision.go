package model

import "time"

// Transaction is the slice of an inbound transaction the engine needs:
// identity, the raw vendor string, and the external classifier's output.
type Transaction struct {
	ID         string             `json:"id"`
	RawVendor  string             `json:"raw_vendor"`
	MLProb     float64            `json:"ml_prob"`
	MLAccount  string             `json:"ml_account"`
	MLFeatures map[string]float64 `json:"ml_features,omitempty"`
}

// BlendedDecision is the immutable outcome of one evaluation. A
// re-evaluation after a rollback produces a new row, never a patch.
type BlendedDecision struct {
	TxnID           string        `json:"txn_id"`
	VendorKey       string        `json:"vendor_key"`
	FinalAccount    string        `json:"final_account"`
	BlendScore      float64       `json:"blend_score"`
	Route           Route         `json:"route"`
	RuleVersionID   int64         `json:"rule_version_id"`
	SignalBreakdown []SignalScore `json:"signal_breakdown"`
	Weights         BlendWeights  `json:"weights"`
	Thresholds      RouteBands    `json:"thresholds"`
	Timestamp       time.Time     `json:"timestamp"`
}

// BlendWeights are the per-source blend coefficients in force at
// evaluation time. They are persisted with the decision so historical
// explanations survive later configuration changes.
type BlendWeights struct {
	Rules float64 `json:"rules"`
	ML    float64 `json:"ml"`
	LLM   float64 `json:"llm"`
}

// RouteBands are the routing thresholds in force at evaluation time.
type RouteBands struct {
	AutoPostMin float64 `json:"auto_post_min"`
	ReviewMin   float64 `json:"review_min"`
	LLMMin      float64 `json:"llm_min"`
}

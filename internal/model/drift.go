package model

import "time"

// AlertLevel classifies a drift snapshot.
type AlertLevel string

const (
	AlertNone  AlertLevel = "none"
	AlertWarn  AlertLevel = "warn"
	AlertAlert AlertLevel = "alert"
)

// FeatureDrift holds the per-feature shift statistics.
type FeatureDrift struct {
	Feature string  `json:"feature"`
	PSI     float64 `json:"psi"`
	KS      float64 `json:"ks"`
}

// DriftSnapshot is one append-only point in the drift time series.
// NewFeatures lists features seen in the current window that the baseline
// never recorded; no PSI can be computed for them, but their appearance is
// itself a shift worth surfacing.
type DriftSnapshot struct {
	ID               string         `json:"id"`
	Features         []FeatureDrift `json:"features"`
	NewFeatures      []string       `json:"new_features,omitempty"`
	OverallPSI       float64        `json:"overall_psi"`
	AccuracyDropPct  float64        `json:"accuracy_drop_pct"`
	NewRecords       int            `json:"new_records"`
	AlertLevel       AlertLevel     `json:"alert_level"`
	RetrainTriggered bool           `json:"retrain_triggered"`
	EvaluatedAt      time.Time      `json:"evaluated_at"`
}

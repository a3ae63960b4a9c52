package model

import "time"

// ImpactReport summarizes what a proposed rule change would have done to a
// sample of recent decisions. It is advisory output for the review UI; the
// simulation that produces it never writes.
type ImpactReport struct {
	CandidateIDs         []string      `json:"candidate_ids"`
	SampleSize           int           `json:"sample_size"`
	AffectedCount        int           `json:"affected_count"`
	AutomationRateBefore float64       `json:"automation_rate_before"`
	AutomationRateAfter  float64       `json:"automation_rate_after"`
	Delta                float64       `json:"delta"`
	RouteDeltas          map[Route]int `json:"route_deltas"`
	// LowConfidence is set when the sample is too small to trust the rates.
	LowConfidence bool      `json:"low_confidence"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// VersionDiff lists the rule-level differences between two versions.
type VersionDiff struct {
	FromVersionID int64  `json:"from_version_id"`
	ToVersionID   int64  `json:"to_version_id"`
	Added         []Rule `json:"added"`
	Removed       []Rule `json:"removed"`
	Changed       []Rule `json:"changed"`
}

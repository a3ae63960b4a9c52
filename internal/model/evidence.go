package model

import "time"

// EvidenceRecord accumulates running statistics for one (vendor, account)
// pair. Count/Mean/M2 are the Welford state; Variance is derived at read
// time and never stored back.
type EvidenceRecord struct {
	VendorKey   string    `json:"vendor_key"`
	Account     string    `json:"account"`
	Count       int64     `json:"count"`
	Mean        float64   `json:"mean"`
	M2          float64   `json:"m2"`
	Conflicting bool      `json:"conflicting"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Variance returns the population variance of the observed confidences.
func (e *EvidenceRecord) Variance() float64 {
	if e.Count < 2 {
		return 0
	}
	return e.M2 / float64(e.Count)
}

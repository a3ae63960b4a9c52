package model

import "time"

// CalibrationMethod identifies how raw probabilities are mapped.
type CalibrationMethod string

const (
	MethodIsotonic    CalibrationMethod = "isotonic"
	MethodTemperature CalibrationMethod = "temperature"
)

// CalibrationModel maps raw classifier probabilities onto calibrated ones.
// Replaced wholesale on refit, never patched.
type CalibrationModel struct {
	ID     string            `json:"id"`
	Method CalibrationMethod `json:"method"`
	// Isotonic: step function over Thresholds/Values pairs. Temperature:
	// Values holds the single temperature parameter.
	Thresholds     []float64 `json:"thresholds,omitempty"`
	Values         []float64 `json:"values"`
	ECEBins        []ECEBin  `json:"ece_bins"`
	ECE            float64   `json:"ece"`
	ModelVersionID string    `json:"model_version_id"`
	FittedAt       time.Time `json:"fitted_at"`
}

// ECEBin is one reliability bin of the fitted model. Lo/Hi may span more
// than one raw bin when adjacent under-populated bins were merged.
type ECEBin struct {
	Lo      float64 `json:"lo"`
	Hi      float64 `json:"hi"`
	PredAvg float64 `json:"pred_avg"`
	ObsAvg  float64 `json:"obs_avg"`
	Count   int     `json:"count"`
	Merged  bool    `json:"merged"`
}

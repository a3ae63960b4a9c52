package signal

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-engine/internal/model"
)

// Calibrate remaps a raw classifier probability onto the observed accuracy
// scale. The identity function is a valid calibrator.
type Calibrate func(float64) float64

// ML scores transactions from the external classifier's output, passed
// through the latest fitted calibration.
type ML struct {
	calibrate Calibrate
}

// NewML creates an ML signal source. A nil calibrate means raw
// probabilities are used as-is.
func NewML(calibrate Calibrate) *ML {
	if calibrate == nil {
		calibrate = func(p float64) float64 { return p }
	}
	return &ML{calibrate: calibrate}
}

// topFeatures is how many classifier features the explanation keeps.
const topFeatures = 3

func (m *ML) Score(ctx context.Context, txn *model.Transaction, vendorKey string) (*model.SignalScore, error) {
	if txn.MLAccount == "" {
		return nil, nil
	}
	if txn.MLProb < 0 || txn.MLProb > 1 {
		return nil, eris.Errorf("signal: ml probability %f out of [0,1]", txn.MLProb)
	}

	calibrated := m.calibrate(txn.MLProb)
	expl := map[string]any{
		"account":         txn.MLAccount,
		"raw_prob":        txn.MLProb,
		"calibrated_prob": calibrated,
	}
	if feats := dominantFeatures(txn.MLFeatures); len(feats) > 0 {
		expl["top_features"] = feats
	}

	return &model.SignalScore{
		Source:      model.SourceML,
		Score:       calibrated,
		Explanation: expl,
	}, nil
}

type featureWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

func dominantFeatures(features map[string]float64) []featureWeight {
	if len(features) == 0 {
		return nil
	}
	out := make([]featureWeight, 0, len(features))
	for name, w := range features {
		out = append(out, featureWeight{Name: name, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := abs(out[i].Weight), abs(out[j].Weight)
		if wi != wj {
			return wi > wj
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topFeatures {
		out = out[:topFeatures]
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Package calibrate fits probability calibrations for the ML signal and
// measures their quality with expected calibration error.
package calibrate

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

// ErrFitFailure marks a refit that could not produce a usable model. The
// previous calibration stays in force; match with eris.Is.
var ErrFitFailure = eris.New("calibrate: fit failure")

// Sample is one labeled prediction: the raw classifier probability and
// whether the classifier's account turned out to be correct.
type Sample struct {
	Pred    float64 `json:"pred"`
	Correct bool    `json:"correct"`
}

// Apply maps a raw probability through a fitted model. A nil model is the
// identity.
func Apply(m *model.CalibrationModel, p float64) float64 {
	if m == nil {
		return p
	}
	switch m.Method {
	case model.MethodIsotonic:
		return applyIsotonic(m, p)
	case model.MethodTemperature:
		return applyTemperature(m, p)
	default:
		return p
	}
}

func applyIsotonic(m *model.CalibrationModel, p float64) float64 {
	if len(m.Thresholds) == 0 {
		return p
	}
	for i, hi := range m.Thresholds {
		if p <= hi {
			return m.Values[i]
		}
	}
	return m.Values[len(m.Values)-1]
}

func applyTemperature(m *model.CalibrationModel, p float64) float64 {
	if len(m.Values) == 0 {
		return p
	}
	return sigmoid(logit(p) / m.Values[0])
}

const logitClamp = 1e-6

func logit(p float64) float64 {
	if p < logitClamp {
		p = logitClamp
	}
	if p > 1-logitClamp {
		p = 1 - logitClamp
	}
	return math.Log(p / (1 - p))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// FitIsotonic fits a monotone step function with the pool-adjacent-violators
// algorithm. The returned thresholds are block upper bounds; values are the
// pooled observed accuracies, nondecreasing by construction.
func FitIsotonic(samples []Sample) (thresholds, values []float64, err error) {
	if len(samples) == 0 {
		return nil, nil, eris.Wrap(ErrFitFailure, "isotonic: no samples")
	}
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pred < sorted[j].Pred })

	type block struct {
		sum   float64
		count int
		hi    float64
	}
	blocks := make([]block, 0, len(sorted))
	for _, s := range sorted {
		y := 0.0
		if s.Correct {
			y = 1.0
		}
		blocks = append(blocks, block{sum: y, count: 1, hi: s.Pred})
		// Pool while the monotonicity constraint is violated.
		for len(blocks) > 1 {
			last := len(blocks) - 1
			prev, curr := blocks[last-1], blocks[last]
			if prev.sum/float64(prev.count) <= curr.sum/float64(curr.count) {
				break
			}
			blocks[last-1] = block{
				sum:   prev.sum + curr.sum,
				count: prev.count + curr.count,
				hi:    curr.hi,
			}
			blocks = blocks[:last]
		}
	}

	thresholds = make([]float64, len(blocks))
	values = make([]float64, len(blocks))
	for i, b := range blocks {
		thresholds[i] = b.hi
		values[i] = b.sum / float64(b.count)
	}
	return thresholds, values, nil
}

// FitTemperature fits a single temperature parameter by grid search over
// the negative log likelihood. Coarse but deterministic, and one parameter
// cannot overfit.
func FitTemperature(samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, eris.Wrap(ErrFitFailure, "temperature: no samples")
	}
	bestT, bestNLL := 1.0, math.Inf(1)
	for t := 0.25; t <= 4.0+1e-12; t += 0.05 {
		var nll float64
		for _, s := range samples {
			p := sigmoid(logit(s.Pred) / t)
			if p < logitClamp {
				p = logitClamp
			}
			if p > 1-logitClamp {
				p = 1 - logitClamp
			}
			if s.Correct {
				nll -= math.Log(p)
			} else {
				nll -= math.Log(1 - p)
			}
		}
		if nll < bestNLL {
			bestNLL, bestT = nll, t
		}
	}
	return bestT, nil
}

// ECE computes expected calibration error over equal-width bins of the
// calibrated predictions. Bins holding fewer than minBinCount samples are
// merged into their right neighbor so no reported bin rests on a sliver of
// data; merged spans are marked.
func ECE(samples []Sample, apply func(float64) float64, bins, minBinCount int) (float64, []model.ECEBin) {
	if bins <= 0 {
		bins = 10
	}
	type acc struct {
		lo, hi  float64
		sumPred float64
		sumObs  float64
		count   int
		merged  bool
	}
	raw := make([]acc, bins)
	for i := range raw {
		raw[i].lo = float64(i) / float64(bins)
		raw[i].hi = float64(i+1) / float64(bins)
	}
	for _, s := range samples {
		p := apply(s.Pred)
		idx := int(p * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		raw[idx].sumPred += p
		if s.Correct {
			raw[idx].sumObs++
		}
		raw[idx].count++
	}

	// Merge under-populated bins rightward.
	var packed []acc
	for _, b := range raw {
		if len(packed) > 0 {
			prev := &packed[len(packed)-1]
			if prev.count < minBinCount {
				prev.hi = b.hi
				prev.sumPred += b.sumPred
				prev.sumObs += b.sumObs
				prev.count += b.count
				prev.merged = true
				zap.L().Debug("merged calibration bin",
					zap.Float64("lo", prev.lo),
					zap.Float64("hi", prev.hi),
					zap.Int("count", prev.count),
				)
				continue
			}
		}
		packed = append(packed, b)
	}
	// The rightward pass can leave a sparse final bin with no neighbor to
	// absorb it; fold it back into the previous one.
	if n := len(packed); n > 1 && packed[n-1].count < minBinCount {
		last := packed[n-1]
		prev := &packed[n-2]
		prev.hi = last.hi
		prev.sumPred += last.sumPred
		prev.sumObs += last.sumObs
		prev.count += last.count
		prev.merged = true
		zap.L().Debug("merged calibration bin",
			zap.Float64("lo", prev.lo),
			zap.Float64("hi", prev.hi),
			zap.Int("count", prev.count),
		)
		packed = packed[:n-1]
	}

	var ece float64
	out := make([]model.ECEBin, 0, len(packed))
	total := len(samples)
	for _, b := range packed {
		if b.count == 0 {
			continue
		}
		bin := model.ECEBin{
			Lo:      b.lo,
			Hi:      b.hi,
			PredAvg: b.sumPred / float64(b.count),
			ObsAvg:  b.sumObs / float64(b.count),
			Count:   b.count,
			Merged:  b.merged,
		}
		ece += float64(b.count) / float64(total) * math.Abs(bin.PredAvg-bin.ObsAvg)
		out = append(out, bin)
	}
	return ece, out
}

// Fitter refits the engine's calibration from labeled outcomes.
type Fitter struct {
	store store.Store
	cfg   config.CalibrationConfig
}

// NewFitter creates a calibration fitter.
func NewFitter(st store.Store, cfg config.CalibrationConfig) *Fitter {
	return &Fitter{store: st, cfg: cfg}
}

// Refit fits isotonic and temperature calibrations on a training split,
// picks whichever scores the lower ECE on the holdout, and persists it.
// On any failure the previous model remains the latest and the error wraps
// ErrFitFailure; the attempt is audited either way.
func (f *Fitter) Refit(ctx context.Context, samples []Sample, modelVersionID string) (*model.CalibrationModel, error) {
	m, err := f.refit(ctx, samples, modelVersionID)
	if err != nil {
		if auditErr := f.store.AppendAudit(ctx, &model.AuditEntry{
			Action:    model.AuditCalibration,
			Author:    "system",
			Succeeded: false,
			Reason:    eris.Cause(err).Error(),
			Details:   map[string]any{"samples": len(samples), "model_version_id": modelVersionID},
		}); auditErr != nil {
			zap.L().Error("audit write failed", zap.Error(auditErr))
		}
		return nil, err
	}
	if err := f.store.SaveCalibrationModel(ctx, m); err != nil {
		return nil, eris.Wrap(err, "calibrate: save model")
	}
	zap.L().Info("calibration refit",
		zap.String("method", string(m.Method)),
		zap.Float64("ece", m.ECE),
		zap.Int("bins", len(m.ECEBins)),
		zap.Int("samples", len(samples)),
	)
	return m, eris.Wrap(f.store.AppendAudit(ctx, &model.AuditEntry{
		Action:    model.AuditCalibration,
		Author:    "system",
		Succeeded: true,
		Details: map[string]any{
			"method":           string(m.Method),
			"ece":              m.ECE,
			"samples":          len(samples),
			"model_version_id": modelVersionID,
		},
	}), "calibrate: audit refit")
}

func (f *Fitter) refit(ctx context.Context, samples []Sample, modelVersionID string) (*model.CalibrationModel, error) {
	if len(samples) < f.cfg.MinBinCount {
		return nil, eris.Wrapf(ErrFitFailure, "%d samples, need at least %d", len(samples), f.cfg.MinBinCount)
	}

	train, holdout := split(samples, f.cfg.HoldoutFrac)
	if len(train) == 0 || len(holdout) == 0 {
		return nil, eris.Wrap(ErrFitFailure, "empty train or holdout split")
	}

	thresholds, values, err := FitIsotonic(train)
	if err != nil {
		return nil, err
	}
	isoModel := &model.CalibrationModel{
		Method:     model.MethodIsotonic,
		Thresholds: thresholds,
		Values:     values,
	}
	isoECE, isoBins := ECE(holdout, func(p float64) float64 { return applyIsotonic(isoModel, p) }, f.cfg.Bins, f.cfg.MinBinCount)

	temp, err := FitTemperature(train)
	if err != nil {
		return nil, err
	}
	tempModel := &model.CalibrationModel{
		Method: model.MethodTemperature,
		Values: []float64{temp},
	}
	tempECE, tempBins := ECE(holdout, func(p float64) float64 { return applyTemperature(tempModel, p) }, f.cfg.Bins, f.cfg.MinBinCount)

	chosen, chosenECE, chosenBins := isoModel, isoECE, isoBins
	if tempECE < isoECE {
		chosen, chosenECE, chosenBins = tempModel, tempECE, tempBins
	}
	chosen.ECE = chosenECE
	chosen.ECEBins = chosenBins
	chosen.ModelVersionID = modelVersionID
	chosen.FittedAt = time.Now().UTC()
	return chosen, nil
}

// split carves off every k-th sample as holdout, deterministically, so
// repeated refits over the same data choose the same method.
func split(samples []Sample, holdoutFrac float64) (train, holdout []Sample) {
	if holdoutFrac <= 0 || holdoutFrac >= 1 {
		holdoutFrac = 0.2
	}
	stride := int(math.Round(1 / holdoutFrac))
	if stride < 2 {
		stride = 2
	}
	for i, s := range samples {
		if i%stride == 0 {
			holdout = append(holdout, s)
		} else {
			train = append(train, s)
		}
	}
	return train, holdout
}

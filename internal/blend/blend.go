// Package blend combines signal scores into a single routed decision.
package blend

import (
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-engine/internal/model"
)

// ValidateWeights rejects weight sets that are negative or do not sum to 1.
func ValidateWeights(w model.BlendWeights) error {
	if w.Rules < 0 || w.ML < 0 || w.LLM < 0 {
		return eris.New("blend: weights must be non-negative")
	}
	if sum := w.Rules + w.ML + w.LLM; math.Abs(sum-1.0) > 1e-9 {
		return eris.Errorf("blend: weights sum to %f, want 1.0", sum)
	}
	return nil
}

// Score computes the weighted blend of the consulted signals. A signal that
// was not consulted simply contributes nothing; its weight is NOT
// redistributed to the remaining sources. Fewer consulted sources therefore
// lower the achievable ceiling instead of inflating confidence.
func Score(signals []model.SignalScore, w model.BlendWeights) float64 {
	var total float64
	for _, s := range signals {
		total += weightFor(s.Source, w) * s.Score
	}
	return total
}

func weightFor(src model.SignalSource, w model.BlendWeights) float64 {
	switch src {
	case model.SourceRules:
		return w.Rules
	case model.SourceML:
		return w.ML
	case model.SourceLLM:
		return w.LLM
	default:
		return 0
	}
}

// Consulted reports whether a signal from src is present.
func Consulted(signals []model.SignalScore, src model.SignalSource) bool {
	for _, s := range signals {
		if s.Source == src {
			return true
		}
	}
	return false
}

// RouteFor maps a blend score onto a route. Bands are checked top down,
// first match wins. The llm_validation band only fires when the LLM has not
// been consulted yet; once it has, the same score falls through to
// human_review.
func RouteFor(score float64, b model.RouteBands, llmConsulted bool) model.Route {
	switch {
	case score >= b.AutoPostMin:
		return model.RouteAutoPost
	case score >= b.ReviewMin:
		return model.RouteNeedsReview
	case score >= b.LLMMin && !llmConsulted:
		return model.RouteLLMValidation
	default:
		return model.RouteHumanReview
	}
}

// Decide assembles an immutable BlendedDecision from the consulted signals.
// The weights, thresholds, and active rule version are captured on the
// decision itself so it can be explained verbatim after any later
// configuration change or rollback.
func Decide(txnID, vendorKey, finalAccount string, signals []model.SignalScore,
	w model.BlendWeights, bands model.RouteBands, ruleVersionID int64) *model.BlendedDecision {

	score := Score(signals, w)
	breakdown := make([]model.SignalScore, len(signals))
	copy(breakdown, signals)

	return &model.BlendedDecision{
		TxnID:           txnID,
		VendorKey:       vendorKey,
		FinalAccount:    finalAccount,
		BlendScore:      score,
		Route:           RouteFor(score, bands, Consulted(signals, model.SourceLLM)),
		RuleVersionID:   ruleVersionID,
		SignalBreakdown: breakdown,
		Weights:         w,
		Thresholds:      bands,
		Timestamp:       time.Now().UTC(),
	}
}

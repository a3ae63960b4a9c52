// Package explain reconstructs the reasoning behind historical decisions
// from persisted records alone.
package explain

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

// Explainer answers "why did this transaction route the way it did".
type Explainer struct {
	store store.Store
}

// NewExplainer creates an Explainer backed by the decision store.
func NewExplainer(st store.Store) *Explainer {
	return &Explainer{store: st}
}

// Explain rebuilds the blend arithmetic for a persisted decision. The trace
// is computed only from the decision row itself — the weights, thresholds,
// and signal breakdown captured at evaluation time — so a later rollback,
// reweighting, or evidence change never alters the story of a past
// decision. Signals absent from the breakdown appear as explicit missing
// terms with a zero product.
func (e *Explainer) Explain(ctx context.Context, txnID string) (*model.ExplanationTrace, error) {
	d, err := e.store.GetDecision(ctx, txnID)
	if err != nil {
		return nil, eris.Wrapf(err, "explain: load decision %s", txnID)
	}

	bySource := make(map[model.SignalSource]*model.SignalScore, len(d.SignalBreakdown))
	for i := range d.SignalBreakdown {
		bySource[d.SignalBreakdown[i].Source] = &d.SignalBreakdown[i]
	}

	order := []struct {
		src    model.SignalSource
		weight float64
	}{
		{model.SourceRules, d.Weights.Rules},
		{model.SourceML, d.Weights.ML},
		{model.SourceLLM, d.Weights.LLM},
	}
	terms := make([]model.TraceTerm, 0, len(order))
	for _, o := range order {
		term := model.TraceTerm{Source: o.src, Weight: o.weight, Missing: true}
		if sig, ok := bySource[o.src]; ok {
			term.Score = sig.Score
			term.Product = o.weight * sig.Score
			term.Missing = false
		}
		terms = append(terms, term)
	}

	return &model.ExplanationTrace{
		TxnID:         d.TxnID,
		VendorKey:     d.VendorKey,
		Signals:       d.SignalBreakdown,
		Terms:         terms,
		BlendScore:    d.BlendScore,
		Route:         d.Route,
		FinalAccount:  d.FinalAccount,
		RuleVersionID: d.RuleVersionID,
		Thresholds:    d.Thresholds,
		Timestamp:     d.Timestamp,
	}, nil
}

package explain

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

func newExplainer(t *testing.T) (*Explainer, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "explain.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return NewExplainer(st), st
}

func seedDecision(t *testing.T, st store.Store) *model.BlendedDecision {
	t.Helper()
	d := &model.BlendedDecision{
		TxnID:        "txn-1",
		VendorKey:    "starbucks",
		FinalAccount: "6100",
		BlendScore:   0.685,
		Route:        model.RouteHumanReview,
		RuleVersionID: 3,
		SignalBreakdown: []model.SignalScore{
			{Source: model.SourceRules, Score: 0.80, Explanation: map[string]any{"rule_id": "r1"}},
			{Source: model.SourceML, Score: 0.70},
		},
		Weights:    model.BlendWeights{Rules: 0.55, ML: 0.35, LLM: 0.10},
		Thresholds: model.RouteBands{AutoPostMin: 0.90, ReviewMin: 0.75, LLMMin: 0.70},
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, st.CreateDecision(context.Background(), d))
	return d
}

func TestExplain_ReconstructsBlendArithmetic(t *testing.T) {
	e, st := newExplainer(t)
	seedDecision(t, st)

	trace, err := e.Explain(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "starbucks", trace.VendorKey)
	assert.InDelta(t, 0.685, trace.BlendScore, 1e-9)
	assert.Equal(t, model.RouteHumanReview, trace.Route)
	assert.EqualValues(t, 3, trace.RuleVersionID)

	require.Len(t, trace.Terms, 3)
	assert.Equal(t, model.SourceRules, trace.Terms[0].Source)
	assert.InDelta(t, 0.44, trace.Terms[0].Product, 1e-9)
	assert.False(t, trace.Terms[0].Missing)

	assert.InDelta(t, 0.245, trace.Terms[1].Product, 1e-9)

	// The LLM was never consulted: explicit missing term, zero product.
	llmTerm := trace.Terms[2]
	assert.Equal(t, model.SourceLLM, llmTerm.Source)
	assert.True(t, llmTerm.Missing)
	assert.Zero(t, llmTerm.Product)
	assert.InDelta(t, 0.10, llmTerm.Weight, 1e-9)

	// The term sum reproduces the persisted score.
	var sum float64
	for _, term := range trace.Terms {
		sum += term.Product
	}
	assert.InDelta(t, trace.BlendScore, sum, 1e-9)
}

func TestExplain_StableAfterRollback(t *testing.T) {
	e, st := newExplainer(t)
	ctx := context.Background()
	seedDecision(t, st)

	before, err := e.Explain(ctx, "txn-1")
	require.NoError(t, err)

	// Rule set churn after the fact: new versions, different rules.
	_, err = st.InsertVersion(ctx, &model.RuleVersion{
		Rules:  []model.Rule{{ID: "r9", Pattern: "starbucks", Account: "9999"}},
		Author: "blake",
	})
	require.NoError(t, err)

	after, err := e.Explain(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "past decisions explain identically after rule churn")
	assert.EqualValues(t, 3, after.RuleVersionID)
}

func TestExplain_UnknownTxn(t *testing.T) {
	e, _ := newExplainer(t)
	_, err := e.Explain(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

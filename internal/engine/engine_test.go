package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/evidence"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/rules"
	"github.com/sells-group/decision-engine/internal/signal"
	"github.com/sells-group/decision-engine/internal/store"
)

func blendConfig() config.BlendConfig {
	return config.BlendConfig{
		RuleWeight: 0.55, MLWeight: 0.35, LLMWeight: 0.10,
		AutoPostMin: 0.90, ReviewMin: 0.75, LLMMin: 0.70,
	}
}

func newEngine(t *testing.T, llm signal.Source) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	evCfg := config.EvidenceConfig{MinObs: 3, MinConf: 0.85, MaxVar: 0.08, ConflictShare: 0.25}
	agg := evidence.NewAggregator(st, evCfg)
	rulesvc := rules.NewService(st, config.DryRunConfig{SampleSize: 500, MinSample: 50})

	eng, err := New(st, rulesvc, agg, llm, blendConfig())
	require.NoError(t, err)
	return eng, st
}

// seedRule installs an active version with one rule and optional evidence
// behind it.
func seedRule(t *testing.T, st store.Store, vendorKey, account string, evidenceMean float64) {
	t.Helper()
	ctx := context.Background()
	_, err := st.InsertVersion(ctx, &model.RuleVersion{
		Rules:  []model.Rule{{ID: "r1", Pattern: vendorKey, Account: account}},
		Author: "seed",
	})
	require.NoError(t, err)
	if evidenceMean > 0 {
		require.NoError(t, st.UpsertEvidence(ctx, &model.EvidenceRecord{
			VendorKey: vendorKey, Account: account,
			Count: 5, Mean: evidenceMean,
		}))
	}
}

// scriptedLLM returns a fixed verdict without touching the network.
type scriptedLLM struct {
	score float64
	err   error
	calls int
}

func (s *scriptedLLM) Score(ctx context.Context, txn *model.Transaction, vendorKey string) (*model.SignalScore, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &model.SignalScore{
		Source:      model.SourceLLM,
		Score:       s.score,
		Explanation: map[string]any{"account": "6100", "rationale": "scripted"},
	}, nil
}

func TestEvaluate_RuleAndMLNeedsReview(t *testing.T) {
	eng, _ := newEngine(t, nil)
	seedRule(t, eng.store, "starbucks", "6100", 0.98)

	d, err := eng.Evaluate(context.Background(), &model.Transaction{
		ID: "txn-1", RawVendor: "STARBUCKS #9041", MLProb: 0.91, MLAccount: "6100",
	})
	require.NoError(t, err)
	assert.Equal(t, "starbucks", d.VendorKey)
	// 0.55·0.98 + 0.35·0.91, no LLM term.
	assert.InDelta(t, 0.8575, d.BlendScore, 1e-9)
	assert.Equal(t, model.RouteNeedsReview, d.Route)
	assert.Equal(t, "6100", d.FinalAccount)
	assert.EqualValues(t, 1, d.RuleVersionID)
	assert.Len(t, d.SignalBreakdown, 2)
}

func TestEvaluate_MissingLLMIsNotBoosted(t *testing.T) {
	eng, st := newEngine(t, nil)
	seedRule(t, eng.store, "starbucks", "6100", 0.80)

	d, err := eng.Evaluate(context.Background(), &model.Transaction{
		ID: "txn-1", RawVendor: "Starbucks", MLProb: 0.70, MLAccount: "6100",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.685, d.BlendScore, 1e-9)
	assert.Equal(t, model.RouteHumanReview, d.Route)

	persisted, err := st.GetDecision(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.RouteHumanReview, persisted.Route)
}

func TestEvaluate_SecondPassConsultsLLM(t *testing.T) {
	llm := &scriptedLLM{score: 0.90}
	eng, _ := newEngine(t, llm)
	seedRule(t, eng.store, "starbucks", "6100", 0.80)

	d, err := eng.Evaluate(context.Background(), &model.Transaction{
		ID: "txn-1", RawVendor: "Starbucks", MLProb: 0.78, MLAccount: "6100",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, llm.calls)
	// First pass 0.713 lands in llm_validation; the LLM adds 0.10·0.90.
	assert.InDelta(t, 0.803, d.BlendScore, 1e-9)
	assert.Equal(t, model.RouteNeedsReview, d.Route)
	assert.Len(t, d.SignalBreakdown, 3)
}

func TestEvaluate_LLMTimeoutProceedsWithoutSignal(t *testing.T) {
	llm := &scriptedLLM{err: signal.ErrSignalTimeout}
	eng, _ := newEngine(t, llm)
	seedRule(t, eng.store, "starbucks", "6100", 0.80)

	d, err := eng.Evaluate(context.Background(), &model.Transaction{
		ID: "txn-1", RawVendor: "Starbucks", MLProb: 0.78, MLAccount: "6100",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, llm.calls)
	assert.InDelta(t, 0.713, d.BlendScore, 1e-9)
	// Score unchanged but the band must not fire twice.
	assert.Equal(t, model.RouteHumanReview, d.Route)
	assert.Len(t, d.SignalBreakdown, 2)
}

func TestEvaluate_NoLLMConfiguredSkipsBand(t *testing.T) {
	eng, _ := newEngine(t, nil)
	seedRule(t, eng.store, "starbucks", "6100", 0.80)

	d, err := eng.Evaluate(context.Background(), &model.Transaction{
		ID: "txn-1", RawVendor: "Starbucks", MLProb: 0.78, MLAccount: "6100",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.713, d.BlendScore, 1e-9)
	assert.Equal(t, model.RouteHumanReview, d.Route)
}

func TestEvaluate_NoSignals(t *testing.T) {
	eng, _ := newEngine(t, nil)

	d, err := eng.Evaluate(context.Background(), &model.Transaction{
		ID: "txn-1", RawVendor: "Mystery Vendor LLC",
	})
	require.NoError(t, err)
	assert.Zero(t, d.BlendScore)
	assert.Equal(t, model.RouteHumanReview, d.Route)
	assert.Empty(t, d.SignalBreakdown)
	assert.Empty(t, d.FinalAccount)
}

func TestEvaluate_RequiresUsableVendor(t *testing.T) {
	eng, _ := newEngine(t, nil)
	_, err := eng.Evaluate(context.Background(), &model.Transaction{ID: "txn-1", RawVendor: "###"})
	assert.Error(t, err)

	_, err = eng.Evaluate(context.Background(), &model.Transaction{RawVendor: "Starbucks"})
	assert.Error(t, err)
}

func TestEvaluateBatch(t *testing.T) {
	eng, st := newEngine(t, nil)
	seedRule(t, eng.store, "starbucks", "6100", 0.95)

	txns := make([]model.Transaction, 8)
	for i := range txns {
		txns[i] = model.Transaction{
			ID:        fmt.Sprintf("txn-%d", i),
			RawVendor: "Starbucks",
			MLProb:    0.9,
			MLAccount: "6100",
		}
	}
	decisions, err := eng.EvaluateBatch(context.Background(), txns, 4)
	require.NoError(t, err)
	require.Len(t, decisions, 8)
	for i, d := range decisions {
		require.NotNil(t, d, "decision %d", i)
		assert.Equal(t, txns[i].ID, d.TxnID)
	}

	recent, err := st.ListRecentDecisions(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, recent, 8)
}

func TestObserveApproval_NormalizesAndRecords(t *testing.T) {
	eng, st := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, eng.ObserveApproval(ctx, "STARBUCKS STORE 123", "6100", 0.95))
	rec, err := st.GetEvidence(ctx, "starbucks", "6100")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.EqualValues(t, 1, rec.Count)
}

func TestObserveApproval_ConflictIsNotFatal(t *testing.T) {
	eng, _ := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, eng.ObserveApproval(ctx, "Costco", "6100", 0.9))
	require.NoError(t, eng.ObserveApproval(ctx, "Costco", "6100", 0.9))
	require.NoError(t, eng.ObserveApproval(ctx, "Costco", "6500", 0.9))
	// This one flips the vendor to conflicting; the engine logs and moves on.
	require.NoError(t, eng.ObserveApproval(ctx, "Costco", "6500", 0.9))
}

package evidence

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

func testConfig() config.EvidenceConfig {
	return config.EvidenceConfig{
		MinObs:        3,
		MinConf:       0.85,
		MaxVar:        0.08,
		ConflictShare: 0.25,
	}
}

func newAggregator(t *testing.T) (*Aggregator, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "evidence.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return NewAggregator(st, testConfig()), st
}

func TestObserve_AccumulatesMoments(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()

	obs := []float64{0.9, 0.8, 0.95, 0.85}
	for _, x := range obs {
		require.NoError(t, agg.Observe(ctx, "starbucks", "6100", x))
	}

	rec, err := st.GetEvidence(ctx, "starbucks", "6100")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.EqualValues(t, 4, rec.Count)
	assert.InDelta(t, 0.875, rec.Mean, 1e-9)
	// Batch variance of the same series.
	assert.InDelta(t, 0.003125, rec.Variance(), 1e-9)
	assert.False(t, rec.FirstSeen.IsZero())
	assert.False(t, rec.LastSeen.Before(rec.FirstSeen))
}

func TestObserve_RejectsBadInput(t *testing.T) {
	agg, _ := newAggregator(t)
	ctx := context.Background()

	assert.Error(t, agg.Observe(ctx, "", "6100", 0.9))
	assert.Error(t, agg.Observe(ctx, "starbucks", "", 0.9))
	assert.Error(t, agg.Observe(ctx, "starbucks", "6100", 1.5))
	assert.Error(t, agg.Observe(ctx, "starbucks", "6100", -0.1))
}

func TestObserve_PromotesAtThresholds(t *testing.T) {
	agg, _ := newAggregator(t)
	ctx := context.Background()

	// Two observations: below MIN_OBS, no candidate yet.
	require.NoError(t, agg.Observe(ctx, "acme plumbing", "6400", 0.92))
	require.NoError(t, agg.Observe(ctx, "acme plumbing", "6400", 0.90))
	cands, err := agg.Candidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	assert.Empty(t, cands)

	// Third observation clears count, mean, and variance thresholds.
	require.NoError(t, agg.Observe(ctx, "acme plumbing", "6400", 0.94))
	cands, err = agg.Candidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "acme plumbing", cands[0].VendorKey)
	assert.Equal(t, "6400", cands[0].SuggestedAccount)
	assert.EqualValues(t, 3, cands[0].Evidence.Count)
}

func TestObserve_NoPromotionBelowConfidence(t *testing.T) {
	agg, _ := newAggregator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, agg.Observe(ctx, "mystery shop", "6100", 0.60))
	}
	cands, err := agg.Candidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestObserve_NoPromotionHighVariance(t *testing.T) {
	agg, _ := newAggregator(t)
	ctx := context.Background()

	// Mean clears 0.85 but the spread pushes variance over 0.08.
	for _, x := range []float64{1.0, 0.55, 1.0, 0.9, 1.0} {
		require.NoError(t, agg.Observe(ctx, "jumpy vendor", "6100", x))
	}
	cands, err := agg.Candidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestObserve_PromotionIdempotent(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, agg.Observe(ctx, "starbucks", "6100", 0.95))
	}

	cands, err := agg.Candidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	// Candidate evidence tracks the latest state.
	assert.EqualValues(t, 6, cands[0].Evidence.Count)

	n, err := st.CountCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestObserve_RejectedStaysRejected(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, agg.Observe(ctx, "starbucks", "6100", 0.95))
	}
	cands, err := agg.Candidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.NoError(t, st.UpdateCandidateStatus(ctx, cands[0].ID, model.CandidateRejected, "blake"))

	require.NoError(t, agg.Observe(ctx, "starbucks", "6100", 0.97))

	got, err := st.GetCandidate(ctx, cands[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.CandidateRejected, got.Status)
	n, err := st.CountCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestObserve_ConflictingVendorExcluded(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()

	// Vendor splits between two accounts.
	require.NoError(t, agg.Observe(ctx, "costco", "6100", 0.9))
	require.NoError(t, agg.Observe(ctx, "costco", "6100", 0.92))
	err := agg.Observe(ctx, "costco", "6500", 0.9)
	require.NoError(t, err) // one observation of a second account is not yet a conflict

	err = agg.Observe(ctx, "costco", "6500", 0.91)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrConflictingEvidence))

	recs, err := st.ListVendorEvidence(ctx, "costco")
	require.NoError(t, err)
	for _, r := range recs {
		assert.True(t, r.Conflicting)
	}

	// No promotion while conflicting, even past thresholds.
	require.Error(t, agg.Observe(ctx, "costco", "6100", 0.95))
	cands, err := agg.Candidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestObserve_ConflictSubsides(t *testing.T) {
	agg, _ := newAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.Observe(ctx, "costco", "6100", 0.9))
	require.NoError(t, agg.Observe(ctx, "costco", "6100", 0.9))
	require.NoError(t, agg.Observe(ctx, "costco", "6500", 0.9))
	require.Error(t, agg.Observe(ctx, "costco", "6500", 0.9)) // conflict

	// The dominant account keeps accumulating until the runner-up share
	// drops below the conflict threshold.
	var lastErr error
	for i := 0; i < 8; i++ {
		lastErr = agg.Observe(ctx, "costco", "6100", 0.95)
	}
	require.NoError(t, lastErr)

	cands, err := agg.Candidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "6100", cands[0].SuggestedAccount)
}

func TestObserve_ConcurrentSameVendor(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = agg.Observe(ctx, "starbucks", "6100", 0.9)
			}
		}()
	}
	wg.Wait()

	rec, err := st.GetEvidence(ctx, "starbucks", "6100")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.EqualValues(t, writers*perWriter, rec.Count)
	assert.InDelta(t, 0.9, rec.Mean, 1e-9)
}

func TestObserve_ConcurrentDistinctVendors(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()

	vendors := []string{"alpha", "bravo", "charlie", "delta"}
	var wg sync.WaitGroup
	for _, v := range vendors {
		wg.Add(1)
		go func(vendor string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = agg.Observe(ctx, vendor, "6100", 0.9)
			}
		}(v)
	}
	wg.Wait()

	for _, v := range vendors {
		rec, err := st.GetEvidence(ctx, v, "6100")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.EqualValues(t, 20, rec.Count, "vendor %s", v)
	}
}

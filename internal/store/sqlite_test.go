package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-engine/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_EvidenceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetEvidence(ctx, "starbucks", "6100")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC().Truncate(time.Second)
	rec := &model.EvidenceRecord{
		VendorKey: "starbucks",
		Account:   "6100",
		Count:     3,
		Mean:      0.91,
		M2:        0.002,
		FirstSeen: now,
		LastSeen:  now,
	}
	require.NoError(t, s.UpsertEvidence(ctx, rec))

	got, err = s.GetEvidence(ctx, "starbucks", "6100")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 3, got.Count)
	assert.InDelta(t, 0.91, got.Mean, 1e-12)
	assert.False(t, got.Conflicting)

	// Upsert overwrites in place.
	rec.Count = 4
	rec.Mean = 0.92
	require.NoError(t, s.UpsertEvidence(ctx, rec))
	got, err = s.GetEvidence(ctx, "starbucks", "6100")
	require.NoError(t, err)
	assert.EqualValues(t, 4, got.Count)

	// Second account for the same vendor.
	rec2 := *rec
	rec2.Account = "6200"
	rec2.Count = 2
	require.NoError(t, s.UpsertEvidence(ctx, &rec2))

	recs, err := s.ListVendorEvidence(ctx, "starbucks")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "6100", recs[0].Account) // ordered by count desc

	require.NoError(t, s.SetVendorConflicting(ctx, "starbucks", true))
	recs, err = s.ListVendorEvidence(ctx, "starbucks")
	require.NoError(t, err)
	for _, r := range recs {
		assert.True(t, r.Conflicting)
	}
}

func TestSQLite_CandidateLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &model.RuleCandidate{
		VendorKey:        "acme plumbing",
		SuggestedAccount: "6400",
		Evidence:         model.EvidenceRecord{VendorKey: "acme plumbing", Account: "6400", Count: 3, Mean: 0.9},
		Status:           model.CandidatePending,
	}
	require.NoError(t, s.CreateCandidate(ctx, c))
	require.NotEmpty(t, c.ID)

	found, err := s.FindCandidate(ctx, "acme plumbing", "6400")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, c.ID, found.ID)
	assert.EqualValues(t, 3, found.Evidence.Count)

	missing, err := s.FindCandidate(ctx, "acme plumbing", "9999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	pending, err := s.ListCandidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, s.UpdateCandidateStatus(ctx, c.ID, model.CandidateAccepted, "blake"))
	got, err := s.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CandidateAccepted, got.Status)
	assert.Equal(t, "blake", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)

	pending, err = s.ListCandidates(ctx, model.CandidatePending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Evidence refresh does not touch status.
	ev := got.Evidence
	ev.Count = 5
	require.NoError(t, s.UpdateCandidateEvidence(ctx, c.ID, ev))
	got, err = s.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, got.Evidence.Count)
	assert.Equal(t, model.CandidateAccepted, got.Status)

	n, err := s.CountCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_CandidateStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateCandidateStatus(context.Background(), "nope", model.CandidateRejected, "blake")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_VersionActiveSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.GetActiveVersion(ctx)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.Nil(t, active)

	v1, err := s.InsertVersion(ctx, &model.RuleVersion{
		Rules:  []model.Rule{{ID: "r1", Pattern: "starbucks", Account: "6100"}},
		Author: "blake",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1.VersionID)
	assert.True(t, v1.Active)

	v2, err := s.InsertVersion(ctx, &model.RuleVersion{
		Rules:           append(v1.Rules, model.Rule{ID: "r2", Pattern: "acme plumbing", Account: "6400"}),
		Author:          "blake",
		ParentVersionID: v1.VersionID,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, v2.VersionID)

	active, err = s.GetActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2.VersionID, active.VersionID)

	// Prior version still exists, inactive.
	old, err := s.GetVersion(ctx, v1.VersionID)
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.Len(t, old.Rules, 1)

	versions, err := s.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.True(t, versions[0].VersionID < versions[1].VersionID)
}

func TestSQLite_VersionStaleParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1, err := s.InsertVersion(ctx, &model.RuleVersion{Author: "blake"})
	require.NoError(t, err)
	_, err = s.InsertVersion(ctx, &model.RuleVersion{Author: "blake", ParentVersionID: v1.VersionID})
	require.NoError(t, err)

	// Retry against the outdated parent must conflict, not overwrite.
	_, err = s.InsertVersion(ctx, &model.RuleVersion{Author: "pat", ParentVersionID: v1.VersionID})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStaleVersion))

	// Exactly one version remains active.
	versions, err := s.ListVersions(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, v := range versions {
		if v.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestSQLite_DecisionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &model.BlendedDecision{
		TxnID:         "txn-1",
		VendorKey:     "starbucks",
		FinalAccount:  "6100",
		BlendScore:    0.93,
		Route:         model.RouteAutoPost,
		RuleVersionID: 1,
		SignalBreakdown: []model.SignalScore{
			{Source: model.SourceRules, Score: 0.98, Explanation: map[string]any{"rule_id": "r1"}},
			{Source: model.SourceML, Score: 0.91},
		},
		Weights:    model.BlendWeights{Rules: 0.55, ML: 0.35, LLM: 0.10},
		Thresholds: model.RouteBands{AutoPostMin: 0.90, ReviewMin: 0.75, LLMMin: 0.70},
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateDecision(ctx, d))

	got, err := s.GetDecision(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.RouteAutoPost, got.Route)
	require.Len(t, got.SignalBreakdown, 2)
	assert.Equal(t, model.SourceRules, got.SignalBreakdown[0].Source)
	assert.Equal(t, "r1", got.SignalBreakdown[0].Explanation["rule_id"])
	assert.InDelta(t, 0.55, got.Weights.Rules, 1e-12)

	// A re-evaluation appends; GetDecision returns the newest.
	d2 := *d
	d2.Route = model.RouteNeedsReview
	d2.RuleVersionID = 2
	d2.Timestamp = d.Timestamp.Add(time.Minute)
	require.NoError(t, s.CreateDecision(ctx, &d2))

	got, err = s.GetDecision(ctx, "txn-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.RuleVersionID)

	recent, err := s.ListRecentDecisions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestSQLite_CalibrationLatestWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.LatestCalibrationModel(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)

	old := &model.CalibrationModel{
		Method:   model.MethodTemperature,
		Values:   []float64{1.3},
		FittedAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, s.SaveCalibrationModel(ctx, old))

	newer := &model.CalibrationModel{
		Method:     model.MethodIsotonic,
		Thresholds: []float64{0.2, 0.6},
		Values:     []float64{0.1, 0.5, 0.9},
		ECE:        0.021,
		FittedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.SaveCalibrationModel(ctx, newer))

	m, err = s.LatestCalibrationModel(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.MethodIsotonic, m.Method)
	assert.InDelta(t, 0.021, m.ECE, 1e-12)
}

func TestSQLite_DriftSeries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastRetrainTrigger(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, s.SaveDriftSnapshot(ctx, &model.DriftSnapshot{
		OverallPSI:  0.05,
		AlertLevel:  model.AlertNone,
		EvaluatedAt: base,
	}))
	require.NoError(t, s.SaveDriftSnapshot(ctx, &model.DriftSnapshot{
		OverallPSI:       0.31,
		AlertLevel:       model.AlertAlert,
		RetrainTriggered: true,
		EvaluatedAt:      base.Add(24 * time.Hour),
	}))

	snaps, err := s.ListDriftSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, model.AlertAlert, snaps[0].AlertLevel) // newest first

	last, err = s.LastRetrainTrigger(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, base.Add(24*time.Hour), last.UTC())
}

func TestSQLite_AuditTrail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAudit(ctx, &model.AuditEntry{
		Action:    model.AuditPromote,
		Author:    "blake",
		Succeeded: true,
		Details:   map[string]any{"version_id": float64(2)},
	}))
	require.NoError(t, s.AppendAudit(ctx, &model.AuditEntry{
		Action:    model.AuditRollback,
		Author:    "pat",
		Succeeded: false,
		Reason:    "stale version",
	}))

	entries, err := s.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var failed *model.AuditEntry
	for i := range entries {
		if !entries[i].Succeeded {
			failed = &entries[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, model.AuditRollback, failed.Action)
	assert.Equal(t, "stale version", failed.Reason)
}

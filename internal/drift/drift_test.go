package drift

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

func ramp(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func TestPSI_StableDistribution(t *testing.T) {
	base := ramp(0, 1, 500)
	assert.InDelta(t, 0, PSI(base, base, 10), 1e-9)
}

func TestPSI_ShiftedDistribution(t *testing.T) {
	base := ramp(0, 1, 500)
	shifted := ramp(0.5, 1.5, 500)
	psi := PSI(base, shifted, 10)
	assert.Greater(t, psi, 0.25, "a half-range shift is an unambiguous alert")
}

func TestPSI_Empty(t *testing.T) {
	assert.Zero(t, PSI(nil, ramp(0, 1, 10), 10))
	assert.Zero(t, PSI(ramp(0, 1, 10), nil, 10))
}

func TestKS_IdenticalAndDisjoint(t *testing.T) {
	base := ramp(0, 1, 200)
	assert.InDelta(t, 0, KS(base, base), 0.01)
	assert.InDelta(t, 1.0, KS(ramp(0, 1, 200), ramp(5, 6, 200)), 0.01)
}

func TestKS_TiedData(t *testing.T) {
	constant := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	assert.InDelta(t, 0, KS(constant, constant), 1e-9,
		"a constant feature compared to itself has no drift")

	discrete := []float64{0, 0, 0, 1, 1, 1, 2, 2, 2}
	assert.InDelta(t, 0, KS(discrete, discrete), 1e-9)

	// A genuine shift across tied values still registers.
	allTwos := []float64{2, 2, 2, 2, 2, 2, 2, 2, 2}
	assert.InDelta(t, 2.0/3.0, KS(discrete, allTwos), 1e-9)
}

func driftConfig(webhookURL string) config.DriftConfig {
	return config.DriftConfig{
		Bins:           10,
		PSIWarn:        0.10,
		PSIAlert:       0.22,
		MinNewRecords:  1000,
		MinElapsedDays: 7,
		WebhookURL:     webhookURL,
	}
}

func newMonitor(t *testing.T, webhookURL string) (*Monitor, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "drift.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return NewMonitor(st, driftConfig(webhookURL)), st
}

func TestEvaluate_NoDrift(t *testing.T) {
	m, st := newMonitor(t, "")
	ctx := context.Background()
	base := map[string][]float64{"amount": ramp(0, 1, 500)}

	snap, err := m.Evaluate(ctx, base, base, 0, 5000)
	require.NoError(t, err)
	assert.Equal(t, model.AlertNone, snap.AlertLevel)
	assert.False(t, snap.RetrainTriggered)

	saved, err := st.ListDriftSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, saved, 1)
}

func TestEvaluate_WorstFeatureDrivesAlert(t *testing.T) {
	m, _ := newMonitor(t, "")
	ctx := context.Background()

	baseline := map[string][]float64{
		"amount": ramp(0, 1, 500),
		"mcc":    ramp(0, 1, 500),
	}
	current := map[string][]float64{
		"amount": ramp(0, 1, 500),
		"mcc":    ramp(0.5, 1.5, 500),
	}
	snap, err := m.Evaluate(ctx, baseline, current, 0, 0)
	require.NoError(t, err)
	require.Len(t, snap.Features, 2)
	assert.Equal(t, model.AlertAlert, snap.AlertLevel)
	assert.False(t, snap.RetrainTriggered, "record guard must hold")
}

func TestEvaluate_TriggersRetrainWhenGuardsPass(t *testing.T) {
	var gotWebhook bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotWebhook = true
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m, st := newMonitor(t, srv.URL)
	ctx := context.Background()

	snap, err := m.Evaluate(ctx,
		map[string][]float64{"amount": ramp(0, 1, 500)},
		map[string][]float64{"amount": ramp(0.5, 1.5, 500)},
		3.5, 2500,
	)
	require.NoError(t, err)
	assert.Equal(t, model.AlertAlert, snap.AlertLevel)
	assert.True(t, snap.RetrainTriggered)
	assert.True(t, gotWebhook)

	last, err := st.LastRetrainTrigger(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)

	entries, err := st.ListAudit(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, model.AuditRetrainNotify, entries[0].Action)
}

func TestEvaluate_ElapsedGuardSuppressesRetrain(t *testing.T) {
	m, st := newMonitor(t, "")
	ctx := context.Background()

	// A retrain fired two days ago; the 7-day guard must hold.
	require.NoError(t, st.SaveDriftSnapshot(ctx, &model.DriftSnapshot{
		OverallPSI:       0.5,
		AlertLevel:       model.AlertAlert,
		RetrainTriggered: true,
		EvaluatedAt:      time.Now().UTC().Add(-48 * time.Hour),
	}))

	snap, err := m.Evaluate(ctx,
		map[string][]float64{"amount": ramp(0, 1, 500)},
		map[string][]float64{"amount": ramp(0.5, 1.5, 500)},
		0, 5000,
	)
	require.NoError(t, err)
	assert.Equal(t, model.AlertAlert, snap.AlertLevel)
	assert.False(t, snap.RetrainTriggered)
}

func TestEvaluate_ReportsFeaturesAbsentFromBaseline(t *testing.T) {
	m, st := newMonitor(t, "")
	ctx := context.Background()

	snap, err := m.Evaluate(ctx,
		map[string][]float64{"amount": ramp(0, 1, 500)},
		map[string][]float64{
			"amount":       ramp(0, 1, 500),
			"mcc":          ramp(0, 1, 500),
			"day_of_month": ramp(1, 31, 500),
		},
		0, 0,
	)
	require.NoError(t, err)
	require.Len(t, snap.Features, 1, "PSI is only computable against a baseline")
	assert.Equal(t, []string{"day_of_month", "mcc"}, snap.NewFeatures)

	saved, err := st.ListDriftSnapshots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, snap.NewFeatures, saved[0].NewFeatures)
}

func TestEvaluate_WarnBand(t *testing.T) {
	m, _ := newMonitor(t, "")
	ctx := context.Background()

	// A mild shift lands between warn and alert.
	snap, err := m.Evaluate(ctx,
		map[string][]float64{"amount": ramp(0, 1, 500)},
		map[string][]float64{"amount": ramp(0.07, 1.07, 500)},
		0, 5000,
	)
	require.NoError(t, err)
	assert.Equal(t, model.AlertWarn, snap.AlertLevel)
	assert.False(t, snap.RetrainTriggered)
}

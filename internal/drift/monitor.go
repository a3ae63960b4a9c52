package drift

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

// Monitor evaluates feature drift, records snapshots, and fires the
// retrain webhook when the guards allow it.
type Monitor struct {
	store  store.Store
	cfg    config.DriftConfig
	client *http.Client
}

// NewMonitor creates a drift monitor.
func NewMonitor(st store.Store, cfg config.DriftConfig) *Monitor {
	return &Monitor{
		store:  st,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate compares current feature samples against the baseline, persists
// a snapshot, and triggers a retrain when the alert level and both guards
// (minimum new records, minimum elapsed time since the last trigger) say
// so. The guards exist because retrains are expensive: a noisy afternoon
// must not burn a training run.
func (m *Monitor) Evaluate(ctx context.Context, baseline, current map[string][]float64, accuracyDropPct float64, newRecords int) (*model.DriftSnapshot, error) {
	features := make([]string, 0, len(baseline))
	for name := range baseline {
		features = append(features, name)
	}
	sort.Strings(features)

	snap := &model.DriftSnapshot{
		AccuracyDropPct: accuracyDropPct,
		NewRecords:      newRecords,
		EvaluatedAt:     time.Now().UTC(),
	}
	for _, name := range features {
		curr, ok := current[name]
		if !ok {
			continue
		}
		fd := model.FeatureDrift{
			Feature: name,
			PSI:     PSI(baseline[name], curr, m.cfg.Bins),
			KS:      KS(baseline[name], curr),
		}
		snap.Features = append(snap.Features, fd)
		if fd.PSI > snap.OverallPSI {
			snap.OverallPSI = fd.PSI
		}
	}
	for name := range current {
		if _, ok := baseline[name]; !ok {
			snap.NewFeatures = append(snap.NewFeatures, name)
		}
	}
	sort.Strings(snap.NewFeatures)
	if len(snap.NewFeatures) > 0 {
		zap.L().Warn("features absent from baseline",
			zap.Strings("features", snap.NewFeatures))
	}

	switch {
	case snap.OverallPSI >= m.cfg.PSIAlert:
		snap.AlertLevel = model.AlertAlert
	case snap.OverallPSI >= m.cfg.PSIWarn:
		snap.AlertLevel = model.AlertWarn
	default:
		snap.AlertLevel = model.AlertNone
	}

	if snap.AlertLevel == model.AlertAlert {
		triggered, reason, err := m.maybeTrigger(ctx, snap)
		if err != nil {
			return nil, err
		}
		snap.RetrainTriggered = triggered
		if !triggered {
			zap.L().Info("retrain suppressed", zap.String("reason", reason),
				zap.Float64("overall_psi", snap.OverallPSI))
		}
	}

	if err := m.store.SaveDriftSnapshot(ctx, snap); err != nil {
		return nil, eris.Wrap(err, "drift: save snapshot")
	}
	zap.L().Info("drift evaluated",
		zap.Float64("overall_psi", snap.OverallPSI),
		zap.String("alert_level", string(snap.AlertLevel)),
		zap.Bool("retrain_triggered", snap.RetrainTriggered),
	)
	return snap, nil
}

func (m *Monitor) maybeTrigger(ctx context.Context, snap *model.DriftSnapshot) (bool, string, error) {
	if snap.NewRecords < m.cfg.MinNewRecords {
		return false, "too few new records", nil
	}
	last, err := m.store.LastRetrainTrigger(ctx)
	if err != nil {
		return false, "", eris.Wrap(err, "drift: last retrain trigger")
	}
	minElapsed := time.Duration(m.cfg.MinElapsedDays) * 24 * time.Hour
	if last != nil && time.Since(*last) < minElapsed {
		return false, "too soon since last retrain", nil
	}

	if err := m.sendWebhook(ctx, snap); err != nil {
		// The snapshot still records the trigger attempt; the webhook
		// consumer polls snapshots as a fallback.
		zap.L().Error("retrain webhook failed", zap.Error(err))
	}
	if err := m.store.AppendAudit(ctx, &model.AuditEntry{
		Action:    model.AuditRetrainNotify,
		Author:    "system",
		Succeeded: true,
		Details: map[string]any{
			"overall_psi":       snap.OverallPSI,
			"new_records":       snap.NewRecords,
			"accuracy_drop_pct": snap.AccuracyDropPct,
		},
	}); err != nil {
		return false, "", eris.Wrap(err, "drift: audit retrain trigger")
	}
	return true, "", nil
}

// retrainRequest is the webhook payload the external retrain job consumes.
type retrainRequest struct {
	OverallPSI      float64              `json:"overall_psi"`
	AccuracyDropPct float64              `json:"accuracy_drop_pct"`
	NewRecords      int                  `json:"new_records"`
	Features        []model.FeatureDrift `json:"features"`
	EvaluatedAt     time.Time            `json:"evaluated_at"`
}

func (m *Monitor) sendWebhook(ctx context.Context, snap *model.DriftSnapshot) error {
	if m.cfg.WebhookURL == "" {
		return nil
	}
	payload, err := json.Marshal(retrainRequest{
		OverallPSI:      snap.OverallPSI,
		AccuracyDropPct: snap.AccuracyDropPct,
		NewRecords:      snap.NewRecords,
		Features:        snap.Features,
		EvaluatedAt:     snap.EvaluatedAt,
	})
	if err != nil {
		return eris.Wrap(err, "drift: marshal retrain request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "drift: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "drift: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("drift: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

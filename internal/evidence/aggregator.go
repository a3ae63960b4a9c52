// Package evidence accumulates human-approved posting observations per
// vendor and promotes well-supported vendor→account pairs into rule
// candidates.
package evidence

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
	"github.com/sells-group/decision-engine/internal/welford"
)

// ErrConflictingEvidence marks a vendor whose observations disagree across
// accounts. It is advisory: the observation is still recorded, the vendor
// is excluded from promotion, and callers should log rather than fail.
var ErrConflictingEvidence = eris.New("evidence: conflicting observations")

// Aggregator folds observations into per-vendor running statistics.
// Observe is safe under concurrent writers: updates to one vendor are
// serialized on a per-vendor lock, different vendors proceed independently.
type Aggregator struct {
	store store.Store
	cfg   config.EvidenceConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAggregator creates an Aggregator with the given promotion thresholds.
func NewAggregator(st store.Store, cfg config.EvidenceConfig) *Aggregator {
	return &Aggregator{
		store: st,
		cfg:   cfg,
		locks: make(map[string]*sync.Mutex),
	}
}

func (a *Aggregator) vendorLock(key string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	return l
}

// Observe folds one approved posting (vendor, account, confidence) into
// the vendor's evidence. The Welford state is updated in place; raw
// history is never retained. Returns ErrConflictingEvidence (wrapped) when
// the observation newly flags the vendor as conflicting.
func (a *Aggregator) Observe(ctx context.Context, vendorKey, account string, confidence float64) error {
	if vendorKey == "" || account == "" {
		return eris.New("evidence: vendor key and account are required")
	}
	if confidence < 0 || confidence > 1 {
		return eris.Errorf("evidence: confidence %f out of [0,1]", confidence)
	}

	lock := a.vendorLock(vendorKey)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	rec, err := a.store.GetEvidence(ctx, vendorKey, account)
	if err != nil {
		return eris.Wrap(err, "evidence: load record")
	}
	if rec == nil {
		rec = &model.EvidenceRecord{
			VendorKey: vendorKey,
			Account:   account,
			FirstSeen: now,
		}
	}

	m := welford.Moments{Count: rec.Count, Mean: rec.Mean, M2: rec.M2}
	m.Add(confidence)
	rec.Count = m.Count
	rec.Mean = m.Mean
	rec.M2 = m.M2
	rec.LastSeen = now

	if err := a.store.UpsertEvidence(ctx, rec); err != nil {
		return eris.Wrap(err, "evidence: upsert record")
	}

	conflicting, err := a.reconcileConflict(ctx, vendorKey, rec.Conflicting)
	if err != nil {
		return err
	}
	rec.Conflicting = conflicting

	if conflicting {
		return eris.Wrapf(ErrConflictingEvidence, "vendor %s", vendorKey)
	}

	return a.maybePromote(ctx, rec)
}

// reconcileConflict re-derives the vendor's conflict flag from all of its
// evidence rows and persists transitions in both directions. A vendor
// conflicts when a runner-up account holds a material share of its
// observations; per-account variance cannot see that disagreement.
func (a *Aggregator) reconcileConflict(ctx context.Context, vendorKey string, wasConflicting bool) (bool, error) {
	recs, err := a.store.ListVendorEvidence(ctx, vendorKey)
	if err != nil {
		return false, eris.Wrap(err, "evidence: list vendor records")
	}

	var total, runnerUp int64
	for i, r := range recs {
		total += r.Count
		if i > 0 && r.Count > runnerUp {
			runnerUp = r.Count
		}
	}
	conflicting := len(recs) > 1 && runnerUp >= 2 &&
		float64(runnerUp) >= a.cfg.ConflictShare*float64(total)

	if conflicting == wasConflicting {
		return conflicting, nil
	}
	if err := a.store.SetVendorConflicting(ctx, vendorKey, conflicting); err != nil {
		return false, eris.Wrap(err, "evidence: set conflict flag")
	}
	if conflicting {
		zap.L().Warn("vendor evidence conflicting",
			zap.String("vendor_key", vendorKey),
			zap.Int("accounts", len(recs)),
		)
		if err := a.store.AppendAudit(ctx, &model.AuditEntry{
			Action:    model.AuditConflict,
			Author:    "system",
			Succeeded: true,
			Details:   map[string]any{"vendor_key": vendorKey, "accounts": len(recs)},
		}); err != nil {
			return false, eris.Wrap(err, "evidence: audit conflict")
		}
	}
	return conflicting, nil
}

// maybePromote creates a pending rule candidate when the record clears the
// promotion thresholds. Promotion is idempotent: an existing candidate has
// its evidence refreshed, its status untouched. Rejected candidates stay
// rejected; the reviewer already ruled on the pair.
func (a *Aggregator) maybePromote(ctx context.Context, rec *model.EvidenceRecord) error {
	if rec.Count < a.cfg.MinObs || rec.Mean < a.cfg.MinConf || rec.Variance() > a.cfg.MaxVar {
		return nil
	}

	existing, err := a.store.FindCandidate(ctx, rec.VendorKey, rec.Account)
	if err != nil {
		return eris.Wrap(err, "evidence: find candidate")
	}
	if existing != nil {
		if err := a.store.UpdateCandidateEvidence(ctx, existing.ID, *rec); err != nil {
			return eris.Wrap(err, "evidence: refresh candidate")
		}
		return nil
	}

	cand := &model.RuleCandidate{
		VendorKey:        rec.VendorKey,
		SuggestedAccount: rec.Account,
		Evidence:         *rec,
		Status:           model.CandidatePending,
	}
	if err := a.store.CreateCandidate(ctx, cand); err != nil {
		return eris.Wrap(err, "evidence: create candidate")
	}

	zap.L().Info("rule candidate created",
		zap.String("vendor_key", rec.VendorKey),
		zap.String("account", rec.Account),
		zap.Int64("count", rec.Count),
		zap.Float64("mean", rec.Mean),
		zap.Float64("variance", rec.Variance()),
	)
	return eris.Wrap(a.store.AppendAudit(ctx, &model.AuditEntry{
		Action:    model.AuditCandidate,
		Author:    "system",
		Succeeded: true,
		Details: map[string]any{
			"candidate_id": cand.ID,
			"vendor_key":   rec.VendorKey,
			"account":      rec.Account,
		},
	}), "evidence: audit candidate")
}

// Candidates lists rule candidates, optionally filtered by status.
func (a *Aggregator) Candidates(ctx context.Context, status model.CandidateStatus) ([]model.RuleCandidate, error) {
	cands, err := a.store.ListCandidates(ctx, status)
	return cands, eris.Wrap(err, "evidence: list candidates")
}

// Package rules manages the immutable rule version history: promotion of
// accepted candidates, rollback by copy, dry-run impact simulation, and
// version diffs.
package rules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/decision-engine/internal/blend"
	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

// Service owns all writes to rule_versions and rule_candidates. Reads are
// unrestricted; writes funnel through here so every mutation lands in the
// audit trail, including the ones that fail.
type Service struct {
	store store.Store
	cfg   config.DryRunConfig
}

// NewService creates a rule version service.
func NewService(st store.Store, cfg config.DryRunConfig) *Service {
	return &Service{store: st, cfg: cfg}
}

// Active returns the currently active rule version. When no version exists
// yet it returns an empty version 0, which matches what Match sees before
// the first promote.
func (s *Service) Active(ctx context.Context) (*model.RuleVersion, error) {
	v, err := s.store.GetActiveVersion(ctx)
	if eris.Is(err, store.ErrNotFound) {
		return &model.RuleVersion{}, nil
	}
	return v, eris.Wrap(err, "rules: load active version")
}

// History returns the full version history in creation order.
func (s *Service) History(ctx context.Context) ([]model.RuleVersion, error) {
	vs, err := s.store.ListVersions(ctx)
	return vs, eris.Wrap(err, "rules: list versions")
}

// Promote accepts the given pending candidates and creates a new active
// version containing the active rule set plus one rule per candidate.
// An empty candidate list is a no-op: no version is created and the active
// version is returned unchanged.
func (s *Service) Promote(ctx context.Context, candidateIDs []string, author string) (*model.RuleVersion, error) {
	if len(candidateIDs) == 0 {
		return s.Active(ctx)
	}

	cands := make([]*model.RuleCandidate, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		c, err := s.store.GetCandidate(ctx, id)
		if err != nil {
			return nil, s.fail(ctx, model.AuditPromote, author, eris.Wrapf(err, "rules: load candidate %s", id), nil)
		}
		if c.Status != model.CandidatePending {
			return nil, s.fail(ctx, model.AuditPromote, author,
				eris.Errorf("rules: candidate %s is %s, only pending candidates can be promoted", id, c.Status),
				map[string]any{"candidate_id": id})
		}
		cands = append(cands, c)
	}

	active, err := s.Active(ctx)
	if err != nil {
		return nil, s.fail(ctx, model.AuditPromote, author, err, nil)
	}

	next := copyRules(active.Rules)
	for _, c := range cands {
		next = append(next, model.Rule{
			ID:      uuid.New().String(),
			Pattern: c.VendorKey,
			Account: c.SuggestedAccount,
		})
	}

	created, err := s.store.InsertVersion(ctx, &model.RuleVersion{
		Rules:           next,
		Author:          author,
		ParentVersionID: active.VersionID,
	})
	if err != nil {
		return nil, s.fail(ctx, model.AuditPromote, author, eris.Wrap(err, "rules: insert version"),
			map[string]any{"parent_version_id": active.VersionID})
	}

	for _, c := range cands {
		if err := s.store.UpdateCandidateStatus(ctx, c.ID, model.CandidateAccepted, author); err != nil {
			return nil, s.fail(ctx, model.AuditPromote, author,
				eris.Wrapf(err, "rules: accept candidate %s", c.ID),
				map[string]any{"version_id": created.VersionID})
		}
	}

	zap.L().Info("rule version promoted",
		zap.Int64("version_id", created.VersionID),
		zap.Int64("parent_version_id", active.VersionID),
		zap.Int("rules", len(created.Rules)),
		zap.Int("candidates", len(cands)),
		zap.String("author", author),
	)
	if err := s.audit(ctx, model.AuditPromote, author, true, "", map[string]any{
		"version_id":        created.VersionID,
		"parent_version_id": active.VersionID,
		"candidate_ids":     candidateIDs,
	}); err != nil {
		return nil, err
	}
	return created, nil
}

// Reject marks a pending candidate rejected. No version is created; the
// vendor stays out of the rule set and the aggregator will not re-promote
// the pair.
func (s *Service) Reject(ctx context.Context, candidateID, reason, author string) error {
	c, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return s.fail(ctx, model.AuditReject, author, eris.Wrapf(err, "rules: load candidate %s", candidateID), nil)
	}
	if c.Status != model.CandidatePending {
		return s.fail(ctx, model.AuditReject, author,
			eris.Errorf("rules: candidate %s is %s, only pending candidates can be rejected", candidateID, c.Status),
			map[string]any{"candidate_id": candidateID})
	}
	if err := s.store.UpdateCandidateStatus(ctx, candidateID, model.CandidateRejected, author); err != nil {
		return s.fail(ctx, model.AuditReject, author,
			eris.Wrapf(err, "rules: reject candidate %s", candidateID), nil)
	}
	return s.audit(ctx, model.AuditReject, author, true, reason, map[string]any{
		"candidate_id": candidateID,
		"vendor_key":   c.VendorKey,
		"account":      c.SuggestedAccount,
	})
}

// Rollback creates a new active version whose rules are a structural copy
// of the target version's. History is never rewritten: the target and every
// intermediate version stay in place, and rolling back to the currently
// active version still creates a new version so the audit trail shows the
// action happened.
func (s *Service) Rollback(ctx context.Context, targetVersionID int64, author string) (*model.RuleVersion, error) {
	target, err := s.store.GetVersion(ctx, targetVersionID)
	if err != nil {
		return nil, s.fail(ctx, model.AuditRollback, author,
			eris.Wrapf(err, "rules: load rollback target v%d", targetVersionID), nil)
	}
	active, err := s.Active(ctx)
	if err != nil {
		return nil, s.fail(ctx, model.AuditRollback, author, err, nil)
	}

	created, err := s.store.InsertVersion(ctx, &model.RuleVersion{
		Rules:           copyRules(target.Rules),
		Author:          author,
		ParentVersionID: active.VersionID,
	})
	if err != nil {
		return nil, s.fail(ctx, model.AuditRollback, author, eris.Wrap(err, "rules: insert rollback version"),
			map[string]any{"target_version_id": targetVersionID})
	}

	zap.L().Info("rule version rolled back",
		zap.Int64("target_version_id", targetVersionID),
		zap.Int64("version_id", created.VersionID),
		zap.String("author", author),
	)
	if err := s.audit(ctx, model.AuditRollback, author, true, "", map[string]any{
		"target_version_id": targetVersionID,
		"version_id":        created.VersionID,
		"parent_version_id": active.VersionID,
	}); err != nil {
		return nil, err
	}
	return created, nil
}

// Import replaces the active rule set with an externally authored one,
// creating a new version parented on the current active. Same audit
// contract as Promote: the attempt is recorded whether or not it lands.
func (s *Service) Import(ctx context.Context, ruleSet []model.Rule, author string) (*model.RuleVersion, error) {
	if len(ruleSet) == 0 {
		return nil, s.fail(ctx, model.AuditImport, author,
			eris.New("rules: import requires at least one rule"), nil)
	}
	active, err := s.Active(ctx)
	if err != nil {
		return nil, s.fail(ctx, model.AuditImport, author, err, nil)
	}

	created, err := s.store.InsertVersion(ctx, &model.RuleVersion{
		Rules:           copyRules(ruleSet),
		Author:          author,
		ParentVersionID: active.VersionID,
	})
	if err != nil {
		return nil, s.fail(ctx, model.AuditImport, author, eris.Wrap(err, "rules: insert imported version"),
			map[string]any{"parent_version_id": active.VersionID})
	}

	zap.L().Info("rule version imported",
		zap.Int64("version_id", created.VersionID),
		zap.Int64("parent_version_id", active.VersionID),
		zap.Int("rules", len(created.Rules)),
		zap.String("author", author),
	)
	if err := s.audit(ctx, model.AuditImport, author, true, "", map[string]any{
		"version_id":        created.VersionID,
		"parent_version_id": active.VersionID,
		"rules":             len(created.Rules),
	}); err != nil {
		return nil, err
	}
	return created, nil
}

// Diff compares two versions rule by rule, keyed on pattern.
func (s *Service) Diff(ctx context.Context, fromID, toID int64) (*model.VersionDiff, error) {
	from, err := s.store.GetVersion(ctx, fromID)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: load version v%d", fromID)
	}
	to, err := s.store.GetVersion(ctx, toID)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: load version v%d", toID)
	}

	fromByPattern := make(map[string]model.Rule, len(from.Rules))
	for _, r := range from.Rules {
		fromByPattern[r.Pattern] = r
	}
	diff := &model.VersionDiff{FromVersionID: fromID, ToVersionID: toID}
	seen := make(map[string]bool, len(to.Rules))
	for _, r := range to.Rules {
		seen[r.Pattern] = true
		old, ok := fromByPattern[r.Pattern]
		switch {
		case !ok:
			diff.Added = append(diff.Added, r)
		case old.Account != r.Account:
			diff.Changed = append(diff.Changed, r)
		}
	}
	for _, r := range from.Rules {
		if !seen[r.Pattern] {
			diff.Removed = append(diff.Removed, r)
		}
	}
	return diff, nil
}

// DryRun simulates promoting the given candidates against a sample of
// recent decisions and reports the routing impact. It performs no writes:
// running it twice with no interleaved mutation yields identical reports.
func (s *Service) DryRun(ctx context.Context, candidateIDs []string) (*model.ImpactReport, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}

	proposed := copyRules(active.Rules)
	meanByVendor := make(map[string]float64, len(candidateIDs))
	for _, id := range candidateIDs {
		c, err := s.store.GetCandidate(ctx, id)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: load candidate %s", id)
		}
		proposed = append(proposed, model.Rule{ID: c.ID, Pattern: c.VendorKey, Account: c.SuggestedAccount})
		meanByVendor[c.VendorKey] = c.Evidence.Mean
	}
	proposedVersion := &model.RuleVersion{Rules: proposed}
	activeVersion := &model.RuleVersion{Rules: active.Rules}

	sample, err := s.store.ListRecentDecisions(ctx, s.cfg.SampleSize)
	if err != nil {
		return nil, eris.Wrap(err, "rules: sample decisions")
	}

	report := &model.ImpactReport{
		CandidateIDs:  candidateIDs,
		SampleSize:    len(sample),
		RouteDeltas:   make(map[model.Route]int),
		LowConfidence: len(sample) < s.cfg.MinSample,
		GeneratedAt:   time.Now().UTC(),
	}

	var autoBefore, autoAfter int
	for _, d := range sample {
		after := simulateRoute(&d, activeVersion, proposedVersion, meanByVendor)
		if d.Route == model.RouteAutoPost {
			autoBefore++
		}
		if after == model.RouteAutoPost {
			autoAfter++
		}
		if after != d.Route {
			report.AffectedCount++
			report.RouteDeltas[d.Route]--
			report.RouteDeltas[after]++
		}
	}
	if n := len(sample); n > 0 {
		report.AutomationRateBefore = float64(autoBefore) / float64(n)
		report.AutomationRateAfter = float64(autoAfter) / float64(n)
		report.Delta = report.AutomationRateAfter - report.AutomationRateBefore
	}
	if report.LowConfidence {
		zap.L().Warn("dry run sample below confidence floor",
			zap.Int("sample_size", len(sample)),
			zap.Int("min_sample", s.cfg.MinSample),
		)
	}
	return report, nil
}

// simulateRoute replays one historical decision against the proposed rule
// set. Candidate rules are appended after the existing ones, so only
// previously unmatched vendors can pick up a new rule signal; everything
// else keeps its persisted route. The replay uses the weights and
// thresholds stored on the decision, not the current configuration.
func simulateRoute(d *model.BlendedDecision, active, proposed *model.RuleVersion, meanByVendor map[string]float64) model.Route {
	if active.Match(d.VendorKey) != nil {
		return d.Route
	}
	rule := proposed.Match(d.VendorKey)
	if rule == nil {
		return d.Route
	}

	signals := []model.SignalScore{{Source: model.SourceRules, Score: meanByVendor[d.VendorKey]}}
	for _, sig := range d.SignalBreakdown {
		if sig.Source != model.SourceRules {
			signals = append(signals, sig)
		}
	}
	score := blend.Score(signals, d.Weights)
	return blend.RouteFor(score, d.Thresholds, blend.Consulted(signals, model.SourceLLM))
}

func copyRules(rules []model.Rule) []model.Rule {
	out := make([]model.Rule, len(rules))
	copy(out, rules)
	return out
}

func (s *Service) audit(ctx context.Context, action model.AuditAction, author string, ok bool, reason string, details map[string]any) error {
	return eris.Wrap(s.store.AppendAudit(ctx, &model.AuditEntry{
		Action:    action,
		Author:    author,
		Succeeded: ok,
		Reason:    reason,
		Details:   details,
	}), "rules: append audit")
}

// fail records a failed mutation in the audit trail and returns the
// original error. Audit write failures are logged, not returned; the
// caller's error is the one that matters.
func (s *Service) fail(ctx context.Context, action model.AuditAction, author string, cause error, details map[string]any) error {
	if err := s.audit(ctx, action, author, false, eris.Cause(cause).Error(), details); err != nil {
		zap.L().Error("audit write failed", zap.Error(err), zap.String("action", string(action)))
	}
	return cause
}

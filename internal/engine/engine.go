// Package engine orchestrates a full evaluation: normalize the vendor,
// gather signals, blend, route, and persist the decision.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/decision-engine/internal/blend"
	"github.com/sells-group/decision-engine/internal/calibrate"
	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/evidence"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/normalize"
	"github.com/sells-group/decision-engine/internal/rules"
	"github.com/sells-group/decision-engine/internal/signal"
	"github.com/sells-group/decision-engine/internal/store"
)

// Engine evaluates transactions end to end.
type Engine struct {
	store   store.Store
	rulesvc *rules.Service
	ruleSrc *signal.Rules
	agg     *evidence.Aggregator
	llm     signal.Source // nil when no LLM is configured
	weights model.BlendWeights
	bands   model.RouteBands
}

// New creates an Engine. Pass a nil llm when no LLM source is configured;
// the llm_validation band is then skipped entirely rather than routing
// transactions into a queue nothing consumes.
func New(st store.Store, rulesvc *rules.Service, agg *evidence.Aggregator, llm signal.Source, cfg config.BlendConfig) (*Engine, error) {
	weights := model.BlendWeights{Rules: cfg.RuleWeight, ML: cfg.MLWeight, LLM: cfg.LLMWeight}
	if err := blend.ValidateWeights(weights); err != nil {
		return nil, err
	}
	return &Engine{
		store:   st,
		rulesvc: rulesvc,
		ruleSrc: signal.NewRules(st),
		agg:     agg,
		llm:     llm,
		weights: weights,
		bands: model.RouteBands{
			AutoPostMin: cfg.AutoPostMin,
			ReviewMin:   cfg.ReviewMin,
			LLMMin:      cfg.LLMMin,
		},
	}, nil
}

// Evaluate runs one transaction through the engine and persists the
// resulting decision. The active rule version is resolved once up front so
// a concurrent promote or rollback cannot split the evaluation across two
// versions. When the first pass lands in the llm_validation band the LLM is
// consulted and the blend recomputed; an LLM timeout downgrades the signal
// to absent and the decision proceeds without it.
func (e *Engine) Evaluate(ctx context.Context, txn *model.Transaction) (*model.BlendedDecision, error) {
	if txn.ID == "" {
		return nil, eris.New("engine: transaction id is required")
	}
	vendorKey := normalize.Key(txn.RawVendor)
	if vendorKey == "" {
		return nil, eris.Errorf("engine: vendor %q normalizes to nothing", txn.RawVendor)
	}

	version, err := e.rulesvc.Active(ctx)
	if err != nil {
		return nil, err
	}

	var signals []model.SignalScore
	ruleSig, err := e.ruleSrc.ScoreWith(ctx, version, vendorKey)
	if err != nil {
		return nil, err
	}
	if ruleSig != nil {
		signals = append(signals, *ruleSig)
	}

	mlSig, err := e.mlSource(ctx).Score(ctx, txn, vendorKey)
	if err != nil {
		return nil, err
	}
	if mlSig != nil {
		signals = append(signals, *mlSig)
	}

	score := blend.Score(signals, e.weights)
	llmConsulted := e.llm == nil
	route := blend.RouteFor(score, e.bands, llmConsulted)

	if route == model.RouteLLMValidation {
		llmSig, err := e.llm.Score(ctx, txn, vendorKey)
		switch {
		case err == nil && llmSig != nil:
			signals = append(signals, *llmSig)
			score = blend.Score(signals, e.weights)
		case eris.Is(err, signal.ErrSignalTimeout):
			zap.L().Warn("llm signal timed out, proceeding without it",
				zap.String("txn_id", txn.ID),
				zap.String("vendor_key", vendorKey),
			)
		case err != nil:
			zap.L().Warn("llm signal failed, proceeding without it",
				zap.String("txn_id", txn.ID),
				zap.Error(err),
			)
		}
		// Consulted either way; the band must not fire twice.
		route = blend.RouteFor(score, e.bands, true)
	}

	d := &model.BlendedDecision{
		TxnID:           txn.ID,
		VendorKey:       vendorKey,
		FinalAccount:    e.finalAccount(version, vendorKey, txn, signals),
		BlendScore:      score,
		Route:           route,
		RuleVersionID:   version.VersionID,
		SignalBreakdown: signals,
		Weights:         e.weights,
		Thresholds:      e.bands,
		Timestamp:       time.Now().UTC(),
	}
	if err := e.store.CreateDecision(ctx, d); err != nil {
		return nil, eris.Wrap(err, "engine: persist decision")
	}

	zap.L().Info("transaction evaluated",
		zap.String("txn_id", txn.ID),
		zap.String("vendor_key", vendorKey),
		zap.Float64("blend_score", score),
		zap.String("route", string(route)),
		zap.Int64("rule_version_id", version.VersionID),
	)
	return d, nil
}

// EvaluateBatch evaluates transactions with bounded concurrency. Failures
// abort the batch; decisions persisted before the failure stay persisted.
func (e *Engine) EvaluateBatch(ctx context.Context, txns []model.Transaction, concurrency int) ([]*model.BlendedDecision, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	decisions := make([]*model.BlendedDecision, len(txns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range txns {
		i := i
		g.Go(func() error {
			d, err := e.Evaluate(gctx, &txns[i])
			if err != nil {
				return err
			}
			decisions[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

// ObserveApproval folds a human approval or correction into the evidence
// pool. Conflicting evidence is logged, not fatal: the observation itself
// is already recorded.
func (e *Engine) ObserveApproval(ctx context.Context, rawVendor, account string, confidence float64) error {
	vendorKey := normalize.Key(rawVendor)
	if vendorKey == "" {
		return eris.Errorf("engine: vendor %q normalizes to nothing", rawVendor)
	}
	err := e.agg.Observe(ctx, vendorKey, account, confidence)
	if eris.Is(err, evidence.ErrConflictingEvidence) {
		zap.L().Warn("approval recorded for conflicting vendor",
			zap.String("vendor_key", vendorKey),
			zap.String("account", account),
		)
		return nil
	}
	return err
}

// mlSource builds the ML signal source against the latest fitted
// calibration. Loading per evaluation keeps a long-lived engine current
// after a refit.
func (e *Engine) mlSource(ctx context.Context) *signal.ML {
	cal, err := e.store.LatestCalibrationModel(ctx)
	if err != nil {
		zap.L().Warn("calibration lookup failed, using raw probabilities", zap.Error(err))
		cal = nil
	}
	return signal.NewML(func(p float64) float64 { return calibrate.Apply(cal, p) })
}

// finalAccount picks the account the decision posts to: a rule hit wins,
// then the classifier's suggestion, then whatever account the LLM proposed.
func (e *Engine) finalAccount(version *model.RuleVersion, vendorKey string, txn *model.Transaction, signals []model.SignalScore) string {
	if rule := version.Match(vendorKey); rule != nil {
		return rule.Account
	}
	if txn.MLAccount != "" {
		return txn.MLAccount
	}
	for _, s := range signals {
		if s.Source == model.SourceLLM {
			if acct, ok := s.Explanation["account"].(string); ok {
				return acct
			}
		}
	}
	return ""
}

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/decision-engine/internal/calibrate"
	"github.com/sells-group/decision-engine/internal/drift"
	"github.com/sells-group/decision-engine/internal/engine"
	"github.com/sells-group/decision-engine/internal/evidence"
	"github.com/sells-group/decision-engine/internal/explain"
	"github.com/sells-group/decision-engine/internal/rules"
	"github.com/sells-group/decision-engine/internal/signal"
	"github.com/sells-group/decision-engine/internal/store"
	"github.com/sells-group/decision-engine/pkg/anthropic"
)

// appEnv wires the engine's services for a command invocation.
type appEnv struct {
	Store     store.Store
	Engine    *engine.Engine
	Rules     *rules.Service
	Evidence  *evidence.Aggregator
	Explainer *explain.Explainer
	Drift     *drift.Monitor
	Fitter    *calibrate.Fitter
}

// initEnv opens the store and constructs the services. The LLM source is
// wired only when an API key is configured.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	agg := evidence.NewAggregator(st, cfg.Evidence)
	rulesvc := rules.NewService(st, cfg.DryRun)

	var llm signal.Source
	if cfg.LLM.Key != "" {
		llm = signal.NewLLM(anthropic.NewClient(cfg.LLM.Key), cfg.LLM)
	} else {
		zap.L().Info("no llm key configured, llm signal disabled")
	}

	eng, err := engine.New(st, rulesvc, agg, llm, cfg.Blend)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &appEnv{
		Store:     st,
		Engine:    eng,
		Rules:     rulesvc,
		Evidence:  agg,
		Explainer: explain.NewExplainer(st),
		Drift:     drift.NewMonitor(st, cfg.Drift),
		Fitter:    calibrate.NewFitter(st, cfg.Calibration),
	}, nil
}

// Close releases the store.
func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close", zap.Error(err))
	}
}

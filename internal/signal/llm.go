package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/resilience"
	"github.com/sells-group/decision-engine/pkg/anthropic"
)

const llmSystemPrompt = `You assess bookkeeping categorizations. Given a vendor and a proposed
general-ledger account, reply with a single JSON object:
{"score": <0..1 confidence the account is correct>, "account": "<account you would pick>", "rationale": "<one sentence>"}
Reply with the JSON object only.`

// LLM scores transactions by asking a language model to assess the proposed
// categorization. Calls are rate limited and retried; a deadline miss
// surfaces as ErrSignalTimeout so the caller can proceed without the signal.
type LLM struct {
	client  anthropic.Client
	cfg     config.LLMConfig
	limiter *rate.Limiter
}

// NewLLM creates an LLM signal source.
func NewLLM(client anthropic.Client, cfg config.LLMConfig) *LLM {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &LLM{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// llmVerdict is the JSON shape the model is asked to produce.
type llmVerdict struct {
	Score     float64 `json:"score"`
	Account   string  `json:"account"`
	Rationale string  `json:"rationale"`
}

func (l *LLM) Score(ctx context.Context, txn *model.Transaction, vendorKey string) (*model.SignalScore, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "signal: llm rate limit wait")
	}

	timeout := time.Duration(l.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    l.cfg.Retries + 1,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     timeout,
		OnRetry:        resilience.RetryLogger("anthropic", "score"),
	}
	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return l.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     l.cfg.Model,
			MaxTokens: 256,
			System: []anthropic.SystemBlock{{
				Text:         llmSystemPrompt,
				CacheControl: &anthropic.CacheControl{TTL: "5m"},
			}},
			Messages: []anthropic.Message{{
				Role:    "user",
				Content: fmt.Sprintf("Vendor: %q\nProposed account: %q\nClassifier probability: %.2f", vendorKey, txn.MLAccount, txn.MLProb),
			}},
		})
	})
	if err != nil {
		if eris.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, eris.Wrapf(ErrSignalTimeout, "llm source after %s", timeout)
		}
		return nil, eris.Wrap(err, "signal: llm score")
	}
	resp.Usage.LogCost(l.cfg.Model, "llm_signal")

	verdict, err := parseVerdict(resp)
	if err != nil {
		return nil, err
	}

	return &model.SignalScore{
		Source: model.SourceLLM,
		Score:  verdict.Score,
		Explanation: map[string]any{
			"account":   verdict.Account,
			"rationale": verdict.Rationale,
			"model":     l.cfg.Model,
		},
	}, nil
}

func parseVerdict(resp *anthropic.MessageResponse) (*llmVerdict, error) {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	// Models occasionally fence the JSON despite instructions.
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var v llmVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return nil, eris.Wrapf(err, "signal: parse llm verdict %q", text)
	}
	if v.Score < 0 || v.Score > 1 {
		zap.L().Warn("llm verdict out of range, clamping", zap.Float64("score", v.Score))
		if v.Score < 0 {
			v.Score = 0
		} else {
			v.Score = 1
		}
	}
	return &v, nil
}

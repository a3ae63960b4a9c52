// Package signal produces the per-source scores the blender combines:
// deterministic rule lookups, calibrated ML probabilities, and an optional
// LLM assessment.
package signal

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-engine/internal/model"
)

// ErrSignalTimeout marks a signal source that did not answer in time. The
// blender treats a timed-out signal as absent; it never blocks a decision.
// Match with eris.Is.
var ErrSignalTimeout = eris.New("signal: source timed out")

// Source scores one transaction. A (nil, nil) return means the source has
// nothing to say; the signal is absent rather than zero.
type Source interface {
	Score(ctx context.Context, txn *model.Transaction, vendorKey string) (*model.SignalScore, error)
}

package signal

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

// Rules scores transactions against a pinned rule version. The engine
// resolves the active version once per evaluation and passes it in, so a
// concurrent promote or rollback cannot split one decision across two
// versions.
type Rules struct {
	store store.Store
}

// NewRules creates a rule signal source backed by the evidence store.
func NewRules(st store.Store) *Rules {
	return &Rules{store: st}
}

// ScoreWith matches the vendor key against the given version. A hit scores
// the vendor's evidence mean for the rule's account; a rule with no
// evidence behind it (hand-authored) scores 1.0, since a reviewer put it
// there deliberately. No match means no signal.
func (r *Rules) ScoreWith(ctx context.Context, version *model.RuleVersion, vendorKey string) (*model.SignalScore, error) {
	rule := version.Match(vendorKey)
	if rule == nil {
		return nil, nil
	}

	score := 1.0
	expl := map[string]any{
		"rule_id":    rule.ID,
		"pattern":    rule.Pattern,
		"account":    rule.Account,
		"version_id": version.VersionID,
	}
	rec, err := r.store.GetEvidence(ctx, vendorKey, rule.Account)
	if err != nil {
		return nil, eris.Wrap(err, "signal: rule evidence lookup")
	}
	if rec != nil {
		score = rec.Mean
		expl["evidence_count"] = rec.Count
		expl["evidence_mean"] = rec.Mean
	}

	return &model.SignalScore{
		Source:      model.SourceRules,
		Score:       score,
		Explanation: expl,
	}, nil
}

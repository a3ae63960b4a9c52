package model

// SignalSource identifies which subsystem produced a score.
type SignalSource string

const (
	SourceRules SignalSource = "rules"
	SourceML    SignalSource = "ml"
	SourceLLM   SignalSource = "llm"
)

// SignalScore is one signal's contribution to a decision. It is created
// fresh per evaluation and never mutated afterward.
type SignalScore struct {
	Source SignalSource `json:"source"`
	// Score is in [0,1]. A signal that was not consulted is represented by
	// the absence of a SignalScore, not by a zero score.
	Score       float64        `json:"score"`
	Explanation map[string]any `json:"explanation,omitempty"`
}

// Route is the action a blended decision is dispatched to.
type Route string

const (
	RouteAutoPost      Route = "auto_post"
	RouteNeedsReview   Route = "needs_review"
	RouteLLMValidation Route = "llm_validation"
	RouteHumanReview   Route = "human_review"
)

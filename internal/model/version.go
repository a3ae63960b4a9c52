package model

import "time"

// Rule maps a vendor pattern to a posting account. Patterns are normalized
// vendor keys, optionally with a trailing '*' prefix wildcard.
type Rule struct {
	ID      string `json:"id" yaml:"id"`
	Pattern string `json:"pattern" yaml:"pattern"`
	Account string `json:"account" yaml:"account"`
}

// RuleVersion is one immutable snapshot of the rule set. Editing always
// creates a new version; exactly one version is active at a time.
type RuleVersion struct {
	VersionID       int64     `json:"version_id" yaml:"version_id"`
	Rules           []Rule    `json:"rules" yaml:"rules"`
	Author          string    `json:"author" yaml:"author"`
	ParentVersionID int64     `json:"parent_version_id" yaml:"parent_version_id"`
	Active          bool      `json:"active" yaml:"active"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// Match returns the first rule whose pattern matches the vendor key, or nil.
// Rules are evaluated in list order.
func (v *RuleVersion) Match(vendorKey string) *Rule {
	for i := range v.Rules {
		if patternMatches(v.Rules[i].Pattern, vendorKey) {
			return &v.Rules[i]
		}
	}
	return nil
}

func patternMatches(pattern, key string) bool {
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}
	return pattern == key
}

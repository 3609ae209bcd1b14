// Package remedy maps error messages to remediation guidance for the agent
// or operator driving the engine. Rules are regex patterns evaluated top to
// bottom; every matching rule contributes its message.
package remedy

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps an error-message regex pattern to a guidance message.
type Rule struct {
	Pattern string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher evaluates error messages against remediation rules.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles the rules. Returns an error on an invalid pattern.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("remedy: invalid regex pattern %q: %w", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Match returns all guidance messages whose patterns match the error
// message, joined by newlines. Returns "" when nothing matches.
func (m *Matcher) Match(errMsg string) string {
	var matches []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			matches = append(matches, rule.message)
		}
	}
	return strings.Join(matches, "\n")
}

// MatchedPatterns returns the patterns that matched, for logging. Returns
// nil when nothing matches.
func (m *Matcher) MatchedPatterns(errMsg string) []string {
	var patterns []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return patterns
}

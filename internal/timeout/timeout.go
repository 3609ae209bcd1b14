// Package timeout resolves per-statement execution timeouts from
// pattern-based rules.
package timeout

import (
	"fmt"
	"regexp"
	"time"
)

// Rule maps a SQL regex pattern to a timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Resolver picks the timeout for a statement. The first matching rule wins;
// statements matching no rule get the default.
type Resolver struct {
	rules          []compiledRule
	defaultTimeout time.Duration
}

// NewResolver compiles the rules. Returns an error on an invalid pattern.
func NewResolver(defaultTimeout time.Duration, rules []Rule) (*Resolver, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %w", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Resolver{rules: compiled, defaultTimeout: defaultTimeout}, nil
}

// Resolve returns the timeout for the given SQL and the pattern of the rule
// that matched, or "" when the default applied.
func (r *Resolver) Resolve(sql string) (time.Duration, string) {
	for _, rule := range r.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return r.defaultTimeout, ""
}

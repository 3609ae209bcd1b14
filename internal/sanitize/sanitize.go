// Package sanitize applies regex-based redaction to query result values
// before they leave the engine.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule replaces every match of Pattern with Replacement in string field
// values.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Sanitizer rewrites string values in result rows. Nested JSON objects and
// arrays are walked recursively; non-string primitives pass through.
type Sanitizer struct {
	rules []compiledRule
}

// New compiles the rules. Returns an error on an invalid pattern.
func New(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %w", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Sanitizer{rules: compiled}, nil
}

// Active reports whether any rules are configured.
func (s *Sanitizer) Active() bool {
	return len(s.rules) > 0
}

// Rows applies all rules to every field of every row, in place.
func (s *Sanitizer) Rows(rows []map[string]any) []map[string]any {
	if !s.Active() {
		return rows
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = s.value(v)
		}
	}
	return rows
}

func (s *Sanitizer) value(v any) any {
	switch val := v.(type) {
	case string:
		out := val
		for _, rule := range s.rules {
			out = rule.pattern.ReplaceAllString(out, rule.replacement)
		}
		return out
	case map[string]any:
		for k, item := range val {
			val[k] = s.value(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = s.value(item)
		}
		return val
	default:
		return v
	}
}

// Package classify decides whether submitted SQL text is a read, a write, or
// must be rejected. It is the sole trust boundary between free-form SQL and
// the read-only policy, so it tokenizes with PostgreSQL's actual lexer (via
// pg_query) instead of substring matching: string literals containing
// keywords or semicolons, and comments preceding the first keyword, cannot
// change the outcome. Anything ambiguous is rejected, never defaulted to a
// read.
package classify

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Kind is the classification of a statement.
type Kind int

const (
	// Read is a statement that only reads data (SELECT, WITH, or a
	// recognized read-only analysis command).
	Read Kind = iota

	// Write is a statement in the explicit DML/DDL write set.
	Write

	// Rejected means the statement must not be executed at all.
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "rejected"
	}
}

// Reason explains a rejection.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonEmpty        Reason = "empty statement"
	ReasonStacked      Reason = "multiple statements"
	ReasonInvalid      Reason = "statement could not be tokenized"
	ReasonUnrecognized Reason = "unrecognized leading keyword"
)

// Result is the outcome of classifying one submitted SQL text.
type Result struct {
	Kind   Kind
	Reason Reason
	// Token is the upper-cased leading significant token, when one exists.
	Token string
}

var readKeywords = map[string]struct{}{
	"SELECT":   {},
	"WITH":     {},
	"EXPLAIN":  {},
	"DESCRIBE": {},
	"SHOW":     {},
}

var writeKeywords = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"MERGE":    {},
	"CREATE":   {},
	"ALTER":    {},
	"DROP":     {},
	"TRUNCATE": {},
	"GRANT":    {},
	"REVOKE":   {},
	"REPLACE":  {},
}

// Classify tokenizes the text and classifies it. Rules, in order: empty or
// comment-only text is rejected; more than one statement is rejected
// (statement stacking); a leading read keyword yields Read; a leading write
// keyword yields Write; everything else is rejected.
func Classify(sql string) Result {
	if strings.TrimSpace(sql) == "" {
		return Result{Kind: Rejected, Reason: ReasonEmpty}
	}

	scanned, err := pg_query.Scan(sql)
	if err != nil {
		return Result{Kind: Rejected, Reason: ReasonInvalid}
	}

	// Statement boundaries are top-level semicolon tokens. The lexer emits
	// string literals as single SCONST tokens, so a semicolon or keyword
	// inside a literal never splits or reclassifies the statement.
	var stmtCount int
	var first *pg_query.ScanToken
	inStmt := false
	for _, tok := range scanned.Tokens {
		switch tok.Token {
		case pg_query.Token_SQL_COMMENT, pg_query.Token_C_COMMENT:
			continue
		case pg_query.Token_ASCII_59:
			inStmt = false
			continue
		}
		if !inStmt {
			inStmt = true
			stmtCount++
		}
		if first == nil {
			first = tok
		}
	}

	if first == nil {
		return Result{Kind: Rejected, Reason: ReasonEmpty}
	}
	if stmtCount > 1 {
		return Result{Kind: Rejected, Reason: ReasonStacked}
	}

	token := strings.ToUpper(sql[first.Start:first.End])
	if _, ok := readKeywords[token]; ok {
		return Result{Kind: Read, Token: token}
	}
	if _, ok := writeKeywords[token]; ok {
		return Result{Kind: Write, Token: token}
	}
	return Result{Kind: Rejected, Reason: ReasonUnrecognized, Token: token}
}

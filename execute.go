package dbctx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dbctx/dbctx/driver"
	"github.com/dbctx/dbctx/internal/classify"
)

// Execute runs one guarded statement. The classifier decides the path:
// read statements fetch up to MaxRows and roll back, write statements run
// and commit. Rejected statements and writes under read-only mode fail with
// PermissionError before any connection is borrowed.
func (d *DBContext) Execute(ctx context.Context, input ExecuteInput) (*QueryResult, error) {
	sql := strings.TrimSpace(input.SQL)
	if len(sql) > d.config.Query.MaxSQLLength {
		return nil, &PermissionError{
			Reason: fmt.Sprintf("statement exceeds maximum length of %d bytes", d.config.Query.MaxSQLLength),
		}
	}

	verdict := classify.Classify(sql)
	switch verdict.Kind {
	case classify.Rejected:
		return nil, &PermissionError{Reason: rejectReason(verdict)}
	case classify.Write:
		if d.config.ReadOnly {
			return nil, &PermissionError{
				Reason: fmt.Sprintf("read-only mode: %s statements are not permitted", verdict.Token),
			}
		}
	}

	dur, pattern := d.timeouts.Resolve(sql)
	queryCtx, cancel := context.WithTimeout(ctx, dur)
	defer cancel()

	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Rollback(context.WithoutCancel(ctx))
		d.pool.Release(conn)
	}()

	start := time.Now()
	var result *QueryResult
	if verdict.Kind == classify.Read {
		maxRows := input.MaxRows
		if maxRows <= 0 {
			maxRows = d.config.Query.DefaultMaxRows
		}
		rows, err := conn.Query(queryCtx, sql, input.Params...)
		if err != nil {
			return nil, d.annotate(&StoreError{Cause: err})
		}
		result, err = collectRows(rows, maxRows)
		if err != nil {
			return nil, d.annotate(&StoreError{Cause: err})
		}
		if d.sanitizer.Active() {
			d.sanitizer.Rows(result.Rows)
		}
	} else {
		affected, err := conn.Exec(queryCtx, sql, input.Params...)
		if err != nil {
			return nil, d.annotate(&StoreError{Cause: err})
		}
		if err := conn.Commit(queryCtx); err != nil {
			return nil, d.annotate(&StoreError{Cause: err})
		}
		result = &QueryResult{
			RowCount: affected,
			Message:  fmt.Sprintf("statement executed, %d row(s) affected", affected),
		}
	}

	d.logger.Debug().
		Str("kind", verdict.Kind.String()).
		Str("token", verdict.Token).
		Str("timeout_rule", pattern).
		Dur("elapsed", time.Since(start)).
		Int64("rows", result.RowCount).
		Msg("statement executed")
	return result, nil
}

func rejectReason(v classify.Result) string {
	switch v.Reason {
	case classify.ReasonEmpty:
		return "empty statement"
	case classify.ReasonStacked:
		return "multiple statements in one request are not permitted"
	case classify.ReasonInvalid:
		return "statement could not be tokenized"
	default:
		return fmt.Sprintf("unrecognized statement keyword %q", v.Token)
	}
}

// collectRows drains up to maxRows rows into a QueryResult and closes rows.
func collectRows(rows driver.Rows, maxRows int) (*QueryResult, error) {
	defer rows.Close()
	result := &QueryResult{
		Columns: rows.Columns(),
		Rows:    make([]map[string]any, 0),
	}
	for len(result.Rows) < maxRows && rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(result.Columns))
		for i, col := range result.Columns {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = int64(len(result.Rows))
	return result, nil
}

// annotate appends configured error-prompt guidance to matching errors.
func (d *DBContext) annotate(err error) error {
	if prompt := d.prompts.Match(err.Error()); prompt != "" {
		return fmt.Errorf("%w\n\n%s", err, prompt)
	}
	return err
}

// Explain produces the execution plan for a read statement together with
// heuristic optimization suggestions. When the driver's plan support needs
// cleanup (a write to its plan table), read-only mode blocks it; that is
// reported in ExplainResult.Error rather than failing the call, since the
// plan itself could not be produced but the condition is expected.
func (d *DBContext) Explain(ctx context.Context, sql string) (*ExplainResult, error) {
	sql = strings.TrimSpace(sql)
	verdict := classify.Classify(sql)
	if verdict.Kind != classify.Read {
		return nil, &PermissionError{Reason: "only read statements can be explained"}
	}

	support := d.drv.Plan(sql)
	if support.Cleanup != "" && d.config.ReadOnly {
		return &ExplainResult{
			Plan:  []string{},
			Error: "read-only mode: producing a plan requires writing to the plan table, which is not permitted",
		}, nil
	}

	dur, _ := d.timeouts.Resolve(sql)
	queryCtx, cancel := context.WithTimeout(ctx, dur)
	defer cancel()

	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Rollback(context.WithoutCancel(ctx))
		d.pool.Release(conn)
	}()

	if support.Prepare != "" {
		if _, err := conn.Exec(queryCtx, support.Prepare); err != nil {
			return nil, d.annotate(&StoreError{Cause: err})
		}
	}

	rows, err := conn.Query(queryCtx, support.Read)
	if err != nil {
		return nil, d.annotate(&StoreError{Cause: err})
	}
	result := &ExplainResult{Plan: []string{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, d.annotate(&StoreError{Cause: err})
		}
		if len(values) > 0 {
			result.Plan = append(result.Plan, fmt.Sprint(values[0]))
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, d.annotate(&StoreError{Cause: err})
	}
	rows.Close()

	if support.Cleanup != "" {
		if _, err := conn.Exec(queryCtx, support.Cleanup); err == nil {
			_ = conn.Commit(queryCtx)
		} else {
			result.Error = "plan table cleanup failed: " + err.Error()
		}
	}

	result.Suggestions = suggestOptimizations(sql)
	return result, nil
}

// suggestOptimizations applies cheap textual heuristics to a read statement.
// They are hints for a human, not analysis of the plan.
func suggestOptimizations(sql string) []string {
	upper := strings.ToUpper(sql)
	var suggestions []string
	if strings.Contains(upper, "SELECT *") {
		suggestions = append(suggestions, "avoid SELECT *: name the columns you need")
	}
	if strings.Contains(upper, "LIKE '%") {
		suggestions = append(suggestions, "leading-wildcard LIKE patterns defeat index usage")
	}
	if strings.Contains(upper, "IN (SELECT") && !strings.Contains(upper, "EXISTS") {
		suggestions = append(suggestions, "consider EXISTS instead of IN (SELECT ...) for large subquery results")
	}
	if strings.Count(upper, " OR ") >= 3 {
		suggestions = append(suggestions, "many OR conditions may prevent index usage; consider IN or a UNION of indexed lookups")
	}
	if joins := strings.Count(upper, " JOIN "); joins >= 5 {
		suggestions = append(suggestions, fmt.Sprintf("query joins %d tables; verify join columns are indexed", joins+1))
	}
	return suggestions
}

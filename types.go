package dbctx

// Attribute is a single column of an entity or a field of a composite type.
type Attribute struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// RelationshipLink is one column pair of a foreign-key relationship.
// Direction is "outgoing" when the entity references the other table and
// "incoming" when the other table references the entity.
type RelationshipLink struct {
	Direction     string `json:"direction"`
	LocalColumn   string `json:"local_column"`
	ForeignColumn string `json:"foreign_column"`
}

// EntityDetail is the full structural description of one entity. Unloaded
// entities (known to exist, never described) have Loaded == false and empty
// attribute and relationship sets.
type EntityDetail struct {
	Name          string                        `json:"name"`
	Attributes    []Attribute                   `json:"attributes"`
	Relationships map[string][]RelationshipLink `json:"relationships"`
	Loaded        bool                          `json:"loaded"`
}

// QueryResult is the outcome of one guarded statement execution. Read
// statements populate Columns and Rows; write statements populate RowCount
// from the affected-row count and Message.
type QueryResult struct {
	Columns  []string         `json:"columns,omitempty"`
	Rows     []map[string]any `json:"rows,omitempty"`
	RowCount int64            `json:"row_count"`
	Message  string           `json:"message,omitempty"`
}

// ExplainResult carries an execution plan and heuristic optimization
// suggestions. Error reports non-fatal failures, such as plan cleanup being
// blocked by read-only mode.
type ExplainResult struct {
	Plan        []string `json:"plan"`
	Suggestions []string `json:"suggestions,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// ConstraintInfo describes one table constraint.
type ConstraintInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Definition string `json:"definition"`
}

// IndexInfo describes one index on a table.
type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
	IsPrimary  bool   `json:"is_primary"`
}

// RoutineInfo describes one stored routine.
type RoutineInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
}

// TypeInfo describes one user-defined type. Attributes is set for composite
// types, Labels for enums.
type TypeInfo struct {
	Name       string      `json:"name"`
	Category   string      `json:"category"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Labels     []string    `json:"labels,omitempty"`
}

// DependentObject is an object that depends on a given entity, such as a
// view selecting from it.
type DependentObject struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}

// RelatedTables lists the foreign-key neighborhood of one table.
type RelatedTables struct {
	ReferencedTables  []string `json:"referenced_tables"`
	ReferencingTables []string `json:"referencing_tables"`
}

// DatabaseInfo identifies the backing store.
type DatabaseInfo struct {
	Vendor  string `json:"vendor"`
	Version string `json:"version"`
	Schema  string `json:"schema"`
}

// ExecuteInput is one guarded statement to run. MaxRows caps read result
// sets; zero means the configured default.
type ExecuteInput struct {
	SQL     string `json:"sql"`
	Params  []any  `json:"params,omitempty"`
	MaxRows int    `json:"max_rows,omitempty"`
}

// CategoryStats are hit/miss/size counters for one object-cache category.
type CategoryStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// PoolMetrics is a point-in-time snapshot of connection pool state.
type PoolMetrics struct {
	Live     int    `json:"live"`
	Idle     int    `json:"idle"`
	MinConns int    `json:"min_conns"`
	MaxConns int    `json:"max_conns"`
	Acquires int64  `json:"acquires"`
	Timeouts int64  `json:"timeouts"`
	Started  bool   `json:"started"`
}

package classify

import "testing"

func TestClassifyReads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		sql  string
		want string
	}{
		{"select", "SELECT * FROM users", "SELECT"},
		{"lowercase select", "select id from users", "SELECT"},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", "WITH"},
		{"explain", "EXPLAIN SELECT * FROM users", "EXPLAIN"},
		{"show", "SHOW search_path", "SHOW"},
		{"leading whitespace", "   \n\t SELECT 1", "SELECT"},
		{"trailing semicolon", "SELECT 1;", "SELECT"},
		{"trailing semicolon and space", "SELECT 1; \n", "SELECT"},
		{"line comment before keyword", "-- note\nSELECT 1", "SELECT"},
		{"block comment before keyword", "/* INSERT */ SELECT 1", "SELECT"},
		{"write keyword in literal", "SELECT 'DROP TABLE users'", "SELECT"},
		{"semicolon in literal", "SELECT 'a;b' FROM users", "SELECT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tc.sql)
			if got.Kind != Read {
				t.Fatalf("Classify(%q).Kind = %v, want Read (reason %q)", tc.sql, got.Kind, got.Reason)
			}
			if got.Token != tc.want {
				t.Errorf("Classify(%q).Token = %q, want %q", tc.sql, got.Token, tc.want)
			}
		})
	}
}

func TestClassifyWrites(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		sql  string
		want string
	}{
		{"insert", "INSERT INTO users (id) VALUES (1)", "INSERT"},
		{"update", "update users set name = 'x'", "UPDATE"},
		{"delete", "DELETE FROM users WHERE id = 1", "DELETE"},
		{"create", "CREATE TABLE t (id int)", "CREATE"},
		{"alter", "ALTER TABLE t ADD COLUMN c int", "ALTER"},
		{"drop", "DROP TABLE t", "DROP"},
		{"truncate", "TRUNCATE t", "TRUNCATE"},
		{"grant", "GRANT SELECT ON t TO alice", "GRANT"},
		{"revoke", "REVOKE SELECT ON t FROM alice", "REVOKE"},
		{"insert after comment", "/* just checking */ INSERT INTO t VALUES (1)", "INSERT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tc.sql)
			if got.Kind != Write {
				t.Fatalf("Classify(%q).Kind = %v, want Write (reason %q)", tc.sql, got.Kind, got.Reason)
			}
			if got.Token != tc.want {
				t.Errorf("Classify(%q).Token = %q, want %q", tc.sql, got.Token, tc.want)
			}
		})
	}
}

func TestClassifyRejected(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		sql  string
		want Reason
	}{
		{"empty", "", ReasonEmpty},
		{"whitespace only", "   \n\t  ", ReasonEmpty},
		{"comment only", "-- nothing here", ReasonEmpty},
		{"block comment only", "/* nothing */", ReasonEmpty},
		{"semicolons only", " ; ; ", ReasonEmpty},
		{"stacked statements", "SELECT 1; DELETE FROM users", ReasonStacked},
		{"stacked reads", "SELECT 1; SELECT 2", ReasonStacked},
		{"unrecognized keyword", "VACUUM users", ReasonUnrecognized},
		{"copy", "COPY users TO '/tmp/out'", ReasonUnrecognized},
		{"set", "SET search_path TO public", ReasonUnrecognized},
		{"call", "CALL do_something()", ReasonUnrecognized},
		{"unterminated literal", "SELECT 'oops", ReasonInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tc.sql)
			if got.Kind != Rejected {
				t.Fatalf("Classify(%q).Kind = %v, want Rejected", tc.sql, got.Kind)
			}
			if got.Reason != tc.want {
				t.Errorf("Classify(%q).Reason = %q, want %q", tc.sql, got.Reason, tc.want)
			}
		})
	}
}

// A semicolon inside a string literal must not count as a statement boundary,
// and stacked statements must be caught even when the second statement is the
// dangerous one.
func TestClassifyStackingBoundary(t *testing.T) {
	t.Parallel()

	if got := Classify("SELECT 'a; DROP TABLE users;' FROM t"); got.Kind != Read {
		t.Errorf("literal semicolons misread as stacking: %+v", got)
	}
	if got := Classify("SELECT 1;;DROP TABLE users"); got.Kind != Rejected || got.Reason != ReasonStacked {
		t.Errorf("stacked statement not rejected: %+v", got)
	}
}

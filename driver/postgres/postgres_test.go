package postgres

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestConvertValue(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	uuid := [16]byte{0x0c, 0x2e, 0x8b, 0x4f, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc}

	cases := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string passthrough", "hello", "hello"},
		{"int passthrough", int64(7), int64(7)},
		{"bool passthrough", true, true},
		{"time to RFC3339Nano", ts, "2026-03-14T09:26:53.589793Z"},
		{"plain float", float64(1.5), float64(1.5)},
		{"nan", math.NaN(), "NaN"},
		{"positive inf", math.Inf(1), "Infinity"},
		{"negative inf", math.Inf(-1), "-Infinity"},
		{"float32 nan", float32(math.NaN()), "NaN"},
		{"uuid bytes", uuid, "0c2e8b4f-1122-3344-5566-778899aabbcc"},
		{"bytea to base64", []byte{0xde, 0xad, 0xbe, 0xef}, "3q2+7w=="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := convertValue(tc.in); got != tc.want {
				t.Errorf("convertValue(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestConvertValueRecursesIntoContainers(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"when":  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		"items": []any{math.Inf(1), "ok"},
	}
	got := convertValue(in).(map[string]any)
	if got["when"] != "2026-01-01T00:00:00Z" {
		t.Errorf("nested time = %v", got["when"])
	}
	items := got["items"].([]any)
	if items[0] != "Infinity" || items[1] != "ok" {
		t.Errorf("nested slice = %v", items)
	}
}

func TestConnectHint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string // substring of the hint, or "" for no hint
	}{
		{"invalid password", &pgconn.PgError{Code: "28P01"}, "Password authentication failed"},
		{"invalid authorization", &pgconn.PgError{Code: "28000"}, "rejected the authorization"},
		{"undefined database", &pgconn.PgError{Code: "3D000"}, "database does not exist"},
		{"protocol violation", &pgconn.PgError{Code: "08P02"}, "authentication method"},
		{"wrapped pg error", errors.Join(errors.New("dial"), &pgconn.PgError{Code: "28P01"}), "Password authentication failed"},
		{"scram failure", errors.New("failed SASL auth: SCRAM exchange error"), "SCRAM"},
		{"ssl not enabled", errors.New("SSL is not enabled on the server"), "sslmode=disable"},
		{"unrelated pg error", &pgconn.PgError{Code: "42P01"}, ""},
		{"unrelated error", errors.New("connection refused"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ConnectHint(tc.err)
			if tc.want == "" {
				if got != "" {
					t.Errorf("ConnectHint = %q, want no hint", got)
				}
				return
			}
			if !strings.Contains(got, tc.want) {
				t.Errorf("ConnectHint = %q, want it to mention %q", got, tc.want)
			}
		})
	}
}

func TestNewRejectsBadConnString(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{ConnString: "://not-a-conn-string"}); err == nil {
		t.Error("New accepted an invalid connection string")
	}
}

package main

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/dbctx/dbctx"
)

func TestBuildConnString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		conn     dbctx.ConnectionConfig
		username string
		password string
		want     string
	}{
		{
			name:     "all fields",
			conn:     dbctx.ConnectionConfig{Host: "db.internal", Port: 5432, DBName: "erp", SSLMode: "require"},
			username: "svc",
			password: "hunter2",
			want:     "host=db.internal port=5432 dbname=erp user=svc password=hunter2 sslmode=require",
		},
		{
			name: "minimal",
			conn: dbctx.ConnectionConfig{DBName: "erp"},
			want: "dbname=erp",
		},
		{
			name:     "no password",
			conn:     dbctx.ConnectionConfig{Host: "localhost", DBName: "erp"},
			username: "svc",
			want:     "host=localhost dbname=erp user=svc",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := buildConnString(tc.conn, tc.username, tc.password)
			if got != tc.want {
				t.Errorf("buildConnString = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSetupLoggerLevels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		logger := setupLogger(dbctx.LoggingConfig{Level: tc.level})
		if logger.GetLevel() != tc.want {
			t.Errorf("setupLogger(%q) level = %v, want %v", tc.level, logger.GetLevel(), tc.want)
		}
	}
}

func TestConfigPathDefault(t *testing.T) {
	t.Setenv("DBCTX_CONFIG_PATH", "")
	if got := configPath(); got != ".dbctx/config.json" {
		t.Errorf("configPath = %q", got)
	}
	t.Setenv("DBCTX_CONFIG_PATH", "/etc/dbctx.json")
	if got := configPath(); got != "/etc/dbctx.json" {
		t.Errorf("configPath = %q", got)
	}
}

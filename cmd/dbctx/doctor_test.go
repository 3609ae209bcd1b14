package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDoctorValidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `{
  "connection": {"dbname": "erp"},
  "server": {"port": 8931}
}`)

	var out strings.Builder
	if !doctorValidateConfig(&out, false, path) {
		t.Fatalf("valid config failed validation:\n%s", out.String())
	}
	if strings.Contains(out.String(), "✗") {
		t.Errorf("unexpected failed check:\n%s", out.String())
	}
}

func TestDoctorMissingFile(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	if doctorValidateConfig(&out, false, filepath.Join(t.TempDir(), "absent.json")) {
		t.Error("missing file passed validation")
	}
	if !strings.Contains(out.String(), "Config file readable") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestDoctorFlagsMissingFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `{
  "connection": {},
  "server": {"port": 0, "health_check_enabled": true}
}`)

	var out strings.Builder
	if doctorValidateConfig(&out, false, path) {
		t.Error("incomplete config passed validation")
	}
	got := out.String()
	for _, want := range []string{"connection.dbname", "server.port", "health_check_path"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q check:\n%s", want, got)
		}
	}
}

func TestDoctorFlagsBadRegex(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `{
  "connection": {"dbname": "erp"},
  "server": {"port": 8931},
  "error_prompts": [{"pattern": "[unclosed", "message": "m"}],
  "query": {"timeout_rules": [{"pattern": "(bad", "timeout_seconds": 5}]}
}`)

	var out strings.Builder
	if doctorValidateConfig(&out, false, path) {
		t.Error("config with invalid regex passed validation")
	}
	got := out.String()
	if !strings.Contains(got, "error_prompts[0]") || !strings.Contains(got, "timeout_rules[0]") {
		t.Errorf("output:\n%s", got)
	}
}

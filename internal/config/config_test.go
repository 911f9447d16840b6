package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"goalpace/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Timezone != "UTC" || len(cfg.Goals) != 5 || !cfg.CloseOnEndDay() {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	dirs, err := cfg.Directions()
	if err != nil {
		t.Fatal(err)
	}
	if dirs["5k_time"] != domain.Minimize || dirs["run_distance"] != domain.Maximize {
		t.Fatalf("unexpected directions %v", dirs)
	}
	if cfg.Ledger.Backend != LedgerSQLite || cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected ledger/server defaults %+v %+v", cfg.Ledger, cfg.Server)
	}
}

func TestFromYAMLFillsGoalsAndHonorsOpenWeek(t *testing.T) {
	cfg, err := FromYAML([]byte("timezone: Europe/Paris\npace:\n  close_on_end_day: false\n"))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.CloseOnEndDay() {
		t.Fatal("expected open week")
	}
	if len(cfg.Goals) == 0 {
		t.Fatal("expected built-in goals")
	}
}

func TestFromYAMLRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"bad zone":      "timezone: Nowhere/Land\n",
		"missing zone":  "goals: [{category: a, weekly_target: 2}]\n",
		"bad target":    "timezone: UTC\ngoals: [{category: a, weekly_target: 9}]\n",
		"bad metric":    "timezone: UTC\nmetrics: {pace: sideways}\n",
		"bad backend":   "timezone: UTC\nledger: {backend: mongo}\n",
		"redis no addr": "timezone: UTC\nledger: {backend: redis}\n",
		"webhook url":   "timezone: UTC\nnotify: {webhooks: [{secret: x}]}\n",
		"base path":     "timezone: UTC\nserver: {base_path: v0}\n",
		"not yaml":      "timezone: [\n",
	}
	for name, body := range cases {
		_, err := FromYAML([]byte(body))
		var cfgErr domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected ConfigurationError, got %v", name, err)
		}
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if cfg, err := LoadOptional(dir); err != nil || cfg != nil {
		t.Fatalf("expected nil config for empty workspace, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected missing config error")
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("America/New_York")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone != "America/New_York" {
		t.Fatalf("unexpected timezone %s", cfg.Timezone)
	}
}

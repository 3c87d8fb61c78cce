package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Batch.Size != 50 {
		t.Errorf("Batch.Size = %d, want 50", cfg.Batch.Size)
	}
	if cfg.Batch.MaxConcurrent != 2 {
		t.Errorf("Batch.MaxConcurrent = %d, want 2", cfg.Batch.MaxConcurrent)
	}
	if cfg.Batch.Workers < 2 {
		t.Errorf("Batch.Workers = %d, want >= 2", cfg.Batch.Workers)
	}
	if cfg.Batch.SectionTimeout != "30s" {
		t.Errorf("Batch.SectionTimeout = %q, want %q", cfg.Batch.SectionTimeout, "30s")
	}
	if cfg.Matching.CacheSize != 10000 {
		t.Errorf("Matching.CacheSize = %d, want 10000", cfg.Matching.CacheSize)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, "batch:\n  size: 10\n  section_timeout: 5s\nlog:\n  level: debug\n")

	cfg, err := loadFrom(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Batch.Size != 10 {
		t.Errorf("Batch.Size = %d, want 10", cfg.Batch.Size)
	}
	if cfg.Batch.SectionTimeoutDuration().Seconds() != 5 {
		t.Errorf("SectionTimeoutDuration = %v, want 5s", cfg.Batch.SectionTimeoutDuration())
	}
	if cfg.Log.SlogLevel().String() != "DEBUG" {
		t.Errorf("SlogLevel = %v, want DEBUG", cfg.Log.SlogLevel())
	}
	if cfg.Batch.MaxConcurrent != 2 {
		t.Errorf("Batch.MaxConcurrent = %d, want default 2", cfg.Batch.MaxConcurrent)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, "batch:\n  size: 10\n")
	t.Setenv("BILLMATCH_BATCH_SIZE", "25")
	t.Setenv("BILLMATCH_SERVER_TOKEN", "secret")

	cfg, err := loadFrom(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Batch.Size != 25 {
		t.Errorf("Batch.Size = %d, want 25", cfg.Batch.Size)
	}
	if cfg.Server.Token != "secret" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "secret")
	}
}

func TestSecretNotReadFromFile(t *testing.T) {
	path := writeTempConfig(t, "server:\n  token: leaked\n")
	cfg, err := loadFrom(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, want empty", cfg.Server.Token)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	path := writeTempConfig(t, "")
	t.Setenv("BILLMATCH_BATCH_SIZE", "25")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("batch-size", 50, "")
	flags.Int("workers-per-batch", 2, "")
	if err := flags.Parse([]string{"--batch-size", "7"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFrom(path, flags)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Batch.Size != 7 {
		t.Errorf("Batch.Size = %d, want 7", cfg.Batch.Size)
	}
	// An unset flag must not mask the default.
	if cfg.Batch.Workers != defaults().Batch.Workers {
		t.Errorf("Batch.Workers = %d, want %d", cfg.Batch.Workers, defaults().Batch.Workers)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.Batch.Size = 0
	cfg.Batch.Workers = -1
	cfg.Batch.SectionTimeout = "soon"
	cfg.Batch.YearStart, cfg.Batch.YearEnd = 2020, 2018
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"batch.size", "batch.workers", "batch.section_timeout", "year range", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billmatch", "config.yaml")

	if err := setKeyAt(path, "batch.size", "12"); err != nil {
		t.Fatalf("setKeyAt: %v", err)
	}
	if err := setKeyAt(path, "log.level", "warn"); err != nil {
		t.Fatalf("setKeyAt: %v", err)
	}

	cfg, err := loadFrom(path, nil)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	if cfg.Batch.Size != 12 {
		t.Errorf("Batch.Size = %d, want 12", cfg.Batch.Size)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "data_dir") {
		t.Errorf("config file contains defaults:\n%s", data)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cases := []struct {
		key, value string
	}{
		{"nope", "1"},
		{"server.token", "x"},
		{"batch.size", "many"},
		{"batch.retry_delay", "later"},
	}
	for _, tc := range cases {
		if err := setKeyAt(path, tc.key, tc.value); err == nil {
			t.Errorf("setKeyAt(%q, %q) succeeded, want error", tc.key, tc.value)
		}
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.Token = "secret"
	for _, ki := range ShowAll(cfg) {
		if ki.Key == "server.token" || ki.Value == "secret" {
			t.Errorf("ShowAll exposed %s", ki.Key)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll has %d keys, ValidKeys %d", len(ShowAll(cfg)), len(ValidKeys()))
	}
}

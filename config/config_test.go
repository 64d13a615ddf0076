package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty input",
			mutate: func(cfg *Config) {
				cfg.InputFile = ""
			},
			wantErr: "input file",
		},
		{
			name: "empty output",
			mutate: func(cfg *Config) {
				cfg.OutputFile = ""
			},
			wantErr: "output file",
		},
		{
			name: "empty error log",
			mutate: func(cfg *Config) {
				cfg.ErrorLog = ""
			},
			wantErr: "error log",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "negative script index",
			mutate: func(cfg *Config) {
				cfg.ScriptIndex = -1
			},
			wantErr: "script index",
		},
		{
			name: "empty marker",
			mutate: func(cfg *Config) {
				cfg.ScriptMarker = ""
			},
			wantErr: "script marker",
		},
		{
			name: "negative cache size",
			mutate: func(cfg *Config) {
				cfg.CacheSize = -5
			},
			wantErr: "cache size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.MaxAgeDays != 730 {
		t.Fatalf("max age days = %d, want 730", cfg.MaxAgeDays)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appchangelog.yaml")
	doc := "output: report.csv\ntimeout: 5s\ncache_size: 16\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.OutputFile != "report.csv" {
		t.Fatalf("output = %q, want report.csv", cfg.OutputFile)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.CacheSize != 16 {
		t.Fatalf("cache size = %d, want 16", cfg.CacheSize)
	}
	if cfg.InputFile != "input.csv" {
		t.Fatalf("input = %q, want default input.csv", cfg.InputFile)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("APPCHANGELOG_INPUT", "companies.csv")
	t.Setenv("APPCHANGELOG_TIMEOUT", "12s")
	t.Setenv("APPCHANGELOG_LOG", "  ")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.InputFile != "companies.csv" {
		t.Fatalf("input = %q, want companies.csv", cfg.InputFile)
	}
	if cfg.Timeout != 12*time.Second {
		t.Fatalf("timeout = %v, want 12s", cfg.Timeout)
	}
	if cfg.ErrorLog != "errors.csv" {
		t.Fatalf("blank env value should be ignored, got %q", cfg.ErrorLog)
	}
}

func TestApplyEnvInvalidTimeout(t *testing.T) {
	t.Setenv("APPCHANGELOG_TIMEOUT", "soon")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "APPCHANGELOG_TIMEOUT") {
		t.Fatalf("expected timeout env error, got %v", err)
	}
}

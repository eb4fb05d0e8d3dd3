package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestComputeSizing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		cores          int
		wantPages      int
		wantHitQueue   int
		wantShotQueue  int
		wantCacheEntry int
	}{
		{name: "single core", cores: 1, wantPages: 8, wantHitQueue: 500, wantShotQueue: 125, wantCacheEntry: 125},
		{name: "four cores", cores: 4, wantPages: 32, wantHitQueue: 2000, wantShotQueue: 500, wantCacheEntry: 500},
		{name: "eight cores hits queue cap", cores: 8, wantPages: 50, wantHitQueue: 4000, wantShotQueue: 1000, wantCacheEntry: 1000},
		{name: "many cores all capped", cores: 64, wantPages: 50, wantHitQueue: 4000, wantShotQueue: 1000, wantCacheEntry: 1000},
		{name: "zero cores treated as one", cores: 0, wantPages: 8, wantHitQueue: 500, wantShotQueue: 125, wantCacheEntry: 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := ComputeSizing(tt.cores)
			if s.PageConcurrency != tt.wantPages {
				t.Errorf("PageConcurrency = %d, want %d", s.PageConcurrency, tt.wantPages)
			}
			if s.HitQueueCap != tt.wantHitQueue {
				t.Errorf("HitQueueCap = %d, want %d", s.HitQueueCap, tt.wantHitQueue)
			}
			if s.ScreenshotQueueCap != tt.wantShotQueue {
				t.Errorf("ScreenshotQueueCap = %d, want %d", s.ScreenshotQueueCap, tt.wantShotQueue)
			}
			if s.HTMLCacheCap != tt.wantCacheEntry {
				t.Errorf("HTMLCacheCap = %d, want %d", s.HTMLCacheCap, tt.wantCacheEntry)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "analyzer" {
		t.Errorf("Service.Name = %q, want %q", cfg.Service.Name, "analyzer")
	}
	if cfg.Service.Port != 8074 {
		t.Errorf("Service.Port = %d, want %d", cfg.Service.Port, 8074)
	}
	if cfg.DLQ.SweepInterval != 60*time.Second {
		t.Errorf("DLQ.SweepInterval = %v, want %v", cfg.DLQ.SweepInterval, 60*time.Second)
	}
	if cfg.DLQ.MaxRetries != 5 {
		t.Errorf("DLQ.MaxRetries = %d, want %d", cfg.DLQ.MaxRetries, 5)
	}
	if cfg.DomainPolicy.RenderSuccessThreshold != 2 {
		t.Errorf("DomainPolicy.RenderSuccessThreshold = %d, want %d", cfg.DomainPolicy.RenderSuccessThreshold, 2)
	}
	if cfg.Pipeline.MinTextLength != 200 {
		t.Errorf("Pipeline.MinTextLength = %d, want %d", cfg.Pipeline.MinTextLength, 200)
	}
	if cfg.Evidence.ScreenshotMinConfidence != 0.7 {
		t.Errorf("Evidence.ScreenshotMinConfidence = %v, want %v", cfg.Evidence.ScreenshotMinConfidence, 0.7)
	}
	if cfg.Elasticsearch.ResultsIndex != "analysis-results" {
		t.Errorf("Elasticsearch.ResultsIndex = %q, want %q", cfg.Elasticsearch.ResultsIndex, "analysis-results")
	}
}

func TestLoadReadsYAMLAndEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	body := "service:\n  port: 9000\nvalidation:\n  enabled: true\n  threshold: 0.8\nredis:\n  address: \"redis:6379\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ANALYZER_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Port != 9100 {
		t.Errorf("Service.Port = %d, want env override 9100", cfg.Service.Port)
	}
	if !cfg.Validation.Enabled {
		t.Error("Validation.Enabled = false, want true from yaml")
	}
	if cfg.Validation.Threshold != 0.8 {
		t.Errorf("Validation.Threshold = %v, want 0.8", cfg.Validation.Threshold)
	}
	if cfg.Redis.Address != "redis:6379" {
		t.Errorf("Redis.Address = %q, want %q", cfg.Redis.Address, "redis:6379")
	}
}

func TestSetFieldFromStringDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DLQ_SWEEP_INTERVAL", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DLQ.SweepInterval != 90*time.Second {
		t.Errorf("DLQ.SweepInterval = %v, want 90s", cfg.DLQ.SweepInterval)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Translate.Provider != "openai" {
		t.Fatalf("provider = %q, want openai", cfg.Translate.Provider)
	}
	if cfg.Translate.TargetLang != "zh" {
		t.Fatalf("target_lang = %q, want zh", cfg.Translate.TargetLang)
	}
	if cfg.Pipeline.MaxConcurrent != 6 {
		t.Fatalf("max_concurrent = %d, want 6", cfg.Pipeline.MaxConcurrent)
	}
	if cfg.Pipeline.QueueCapacity != 100 {
		t.Fatalf("queue_capacity = %d, want 100", cfg.Pipeline.QueueCapacity)
	}
	if cfg.Watch.MutationDebounce != 200*time.Millisecond {
		t.Fatalf("mutation_debounce = %v", cfg.Watch.MutationDebounce)
	}
	if cfg.Discovery.BelowRatio != 1.5 {
		t.Fatalf("below_ratio = %v, want 1.5", cfg.Discovery.BelowRatio)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "biline.yaml")
	content := `
translate:
  provider: google
  target_lang: fr
  timeout: 10s
pipeline:
  max_concurrent: 2
  batch_size: 5
render:
  translation_only: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Translate.Provider != "google" || cfg.Translate.TargetLang != "fr" {
		t.Fatalf("translate = %+v", cfg.Translate)
	}
	if cfg.Translate.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v, want 10s", cfg.Translate.Timeout)
	}
	if cfg.Pipeline.MaxConcurrent != 2 || cfg.Pipeline.BatchSize != 5 {
		t.Fatalf("pipeline = %+v", cfg.Pipeline)
	}
	if !cfg.Render.TranslationOnly {
		t.Fatal("translation_only not read")
	}
	// Untouched keys keep their defaults.
	if cfg.Pipeline.QueueCapacity != 100 {
		t.Fatalf("queue_capacity = %d, want default 100", cfg.Pipeline.QueueCapacity)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() on missing explicit file succeeded")
	}
}

func TestAPIKeyFallsBackToOpenAIEnv(t *testing.T) {
	t.Setenv("BILINE_TRANSLATE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Translate.APIKey != "sk-from-env" {
		t.Fatalf("api_key = %q, want fallback from OPENAI_API_KEY", cfg.Translate.APIKey)
	}
}

package main

import (
	"testing"

	"github.com/matsen/lineage/internal/config"
)

func TestApplyConfigValue(t *testing.T) {
	cfg := &config.Config{}

	if err := applyConfigValue(cfg, "max_threads", "4"); err != nil {
		t.Fatal(err)
	}
	if cfg.MaxThreads != 4 {
		t.Errorf("max_threads = %d", cfg.MaxThreads)
	}

	if err := applyConfigValue(cfg, "broad_search", "false"); err != nil {
		t.Fatal(err)
	}
	if cfg.BroadSearch == nil || *cfg.BroadSearch {
		t.Error("broad_search not applied")
	}

	if err := applyConfigValue(cfg, "model", "gemini-2.0-flash"); err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q", cfg.Model)
	}

	if err := applyConfigValue(cfg, "criteria", "methodological descendants only"); err != nil {
		t.Fatal(err)
	}
	if cfg.Criteria != "methodological descendants only" {
		t.Errorf("criteria = %q", cfg.Criteria)
	}

	if err := applyConfigValue(cfg, "api_delay_seconds", "1.5"); err != nil {
		t.Fatal(err)
	}
	if cfg.APIDelaySeconds != 1.5 {
		t.Errorf("api_delay_seconds = %v", cfg.APIDelaySeconds)
	}
	if err := applyConfigValue(cfg, "api_delay_seconds", "fast"); err == nil {
		t.Error("expected error for non-numeric value")
	}

	if err := applyConfigValue(cfg, "max_threads", "lots"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := applyConfigValue(cfg, "no_such_key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("short", 10); got != "short" {
		t.Errorf("truncateString = %q", got)
	}
	long := "a title that is clearly longer than the limit"
	got := truncateString(long, 20)
	if len(got) != 20 || got[17:] != "..." {
		t.Errorf("truncateString = %q", got)
	}
}

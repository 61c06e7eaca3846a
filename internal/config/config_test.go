package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("PROBE_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("LOW_STOCK_THRESHOLD", "-3")

	cfg := Load()
	if cfg.ProbeIntervalSeconds != 15 {
		t.Fatalf("expected probe interval fallback 15, got %d", cfg.ProbeIntervalSeconds)
	}
	if cfg.LowStockThreshold != 5 {
		t.Fatalf("expected low stock fallback 5, got %d", cfg.LowStockThreshold)
	}
}

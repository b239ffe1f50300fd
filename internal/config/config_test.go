package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HighlightFeatureSizeLimit != 10000 {
		t.Errorf("expected size limit 10000, got %d", cfg.HighlightFeatureSizeLimit)
	}
	if !cfg.HoverEvents {
		t.Error("expected hover events enabled by default")
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("expected postgres driver, got %q", cfg.StoreDriver)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HIGHLIGHT_FEATURE_SIZE_LIMIT", "25")
	t.Setenv("HOVER_EVENTS", "false")
	t.Setenv("STORE_DRIVER", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HighlightFeatureSizeLimit != 25 {
		t.Errorf("expected 25, got %d", cfg.HighlightFeatureSizeLimit)
	}
	if cfg.HoverEvents {
		t.Error("expected hover events disabled")
	}
	if cfg.StoreDriver != "sqlite" {
		t.Errorf("expected sqlite, got %q", cfg.StoreDriver)
	}
}

func TestOrigins(t *testing.T) {
	cfg := Default()
	cfg.AllowedOrigins = " a.test , ,b.test"
	got := cfg.Origins()
	if len(got) != 2 || got[0] != "a.test" || got[1] != "b.test" {
		t.Errorf("unexpected origins %v", got)
	}
}

package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ACCESSORY_CATEGORY_NAME", "")
	t.Setenv("DEFAULT_ACCESSORY_PRICE", "")
	t.Setenv("STATS_CACHE_TTL_SECONDS", "")

	cfg := Load()
	if cfg.Port == "" {
		t.Fatalf("expected a default port")
	}
	if cfg.Address() != ":"+cfg.Port {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.AccessoryCategoryName != "Accessory" {
		t.Fatalf("expected default accessory category, got %q", cfg.AccessoryCategoryName)
	}
	if cfg.DefaultAccessoryPrice != 200000 {
		t.Fatalf("expected default accessory price 200000, got %d", cfg.DefaultAccessoryPrice)
	}
	if cfg.StatsCacheTTLSeconds != 30 {
		t.Fatalf("expected default stats TTL 30s, got %d", cfg.StatsCacheTTLSeconds)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_ACCESSORY_PRICE", "150000")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %q", cfg.Port)
	}
	if cfg.DefaultAccessoryPrice != 150000 {
		t.Fatalf("expected price override, got %d", cfg.DefaultAccessoryPrice)
	}
}

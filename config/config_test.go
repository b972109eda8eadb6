package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.AppPort != "8080" || cfg.TypingTTL != 8*time.Second || !cfg.MarkReadOnFirstPage {
		t.Errorf("defaults = port %q ttl %s markRead %v", cfg.AppPort, cfg.TypingTTL, cfg.MarkReadOnFirstPage)
	}
	if cfg.RedisAddr() != "" {
		t.Errorf("RedisAddr() = %q without REDIS_HOST", cfg.RedisAddr())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("TYPING_TTL", "3s")
	t.Setenv("MARK_READ_ON_FIRST_PAGE", "false")
	t.Setenv("SEND_LIMIT_PER_WINDOW", "not-a-number")

	cfg := LoadConfig()
	if cfg.StoreDriver != "memory" {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.RedisAddr() != "cache:6380" {
		t.Errorf("RedisAddr() = %q", cfg.RedisAddr())
	}
	if cfg.WorkerPoolSize != 8 || cfg.TypingTTL != 3*time.Second || cfg.MarkReadOnFirstPage {
		t.Errorf("overrides = pool %d ttl %s markRead %v", cfg.WorkerPoolSize, cfg.TypingTTL, cfg.MarkReadOnFirstPage)
	}
	if cfg.SendLimitPerWindow != 30 {
		t.Errorf("malformed int fell back to %d, want 30", cfg.SendLimitPerWindow)
	}
}

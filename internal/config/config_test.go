package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "collabdocs_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("REALTIME_QUEUE_SIZE", "8")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr: %s", cfg.Redis.Addr())
	}
	if cfg.Realtime.QueueSize != 8 {
		t.Fatalf("expected queue size 8, got %d", cfg.Realtime.QueueSize)
	}
}

func TestLoadConfig_DefaultsWithoutMongo(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("REDIS_HOST", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MongoDB.URI != "" {
		t.Fatalf("expected empty mongo uri, got %q", cfg.MongoDB.URI)
	}
	if cfg.Redis.Addr() != "" {
		t.Fatalf("expected redis disabled, got %q", cfg.Redis.Addr())
	}
	if cfg.JWT.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.JWT.AccessTokenTTL)
	}
	if cfg.Realtime.QueueSize != 64 {
		t.Fatalf("unexpected default queue size: %d", cfg.Realtime.QueueSize)
	}
	if cfg.Auth.ResetTokenTTL != 10*time.Minute {
		t.Fatalf("unexpected reset ttl: %v", cfg.Auth.ResetTokenTTL)
	}
}

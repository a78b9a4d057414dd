package utils

import (
	"context"
	"testing"
	"time"
)

func TestAcquireLockValidatesArgs(t *testing.T) {
	if _, _, err := AcquireLock(context.Background(), nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisConfigDefaults(t *testing.T) {
	cfg := RedisConfig{}.withDefaults()
	if cfg.DialTimeout <= 0 || cfg.PoolSize <= 0 || cfg.PingTimeout <= 0 {
		t.Fatalf("expected defaults to be applied: %+v", cfg)
	}
}

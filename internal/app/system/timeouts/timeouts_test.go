package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/system/timeouts"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigure_IgnoresZero(t *testing.T) {
	t.Cleanup(timeouts.Reset)

	timeouts.Configure(timeouts.Config{Short: 7 * time.Second})
	if got := timeouts.Short(); got != 7*time.Second {
		t.Errorf("Short = %v, want 7s", got)
	}
	if got := timeouts.Long(); got != timeouts.DefaultLong {
		t.Errorf("Long = %v, want default", got)
	}

	timeouts.Reset()
	if got := timeouts.Current(); got.Short != timeouts.DefaultShort {
		t.Errorf("Reset did not restore defaults: %+v", got)
	}
}

func TestWithTimeout_LogsDeadline(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx, cancel := timeouts.WithTimeout(context.Background(), time.Millisecond, zap.New(core), "slow op")
	<-ctx.Done()
	cancel()

	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
	if logs.All()[0].ContextMap()["operation"] != "slow op" {
		t.Errorf("unexpected fields: %v", logs.All()[0].ContextMap())
	}
}

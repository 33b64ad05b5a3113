package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "syslog"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewProviders(t *testing.T) {
	for _, provider := range []string{"", ProviderStdout, ProviderGoogle} {
		if _, err := New(Config{Provider: provider, Level: "debug"}); err != nil {
			t.Fatalf("provider %q: %v", provider, err)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewAppliesNamePrefix(t *testing.T) {
	logger, err := New(Config{NamePrefix: "vectordb"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entry := logger.Check(zap.InfoLevel, "name probe")
	if entry == nil {
		t.Fatal("info should be enabled at the default level")
	}
	if entry.LoggerName != "vectordb" {
		t.Fatalf("logger name = %q, want vectordb", entry.LoggerName)
	}
	entry.Write()
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if CorrelationFrom(ctx) != "" {
		t.Fatalf("empty context should have no correlation id")
	}
	id := NewCorrelationID()
	ctx = WithCorrelationID(ctx, id)
	if got := CorrelationFrom(ctx); got != id {
		t.Fatalf("got %q, want %q", got, id)
	}
}

func TestWithCorrelationPassThrough(t *testing.T) {
	logger := zap.NewNop()
	if WithCorrelation(context.Background(), logger) != logger {
		t.Fatalf("logger without correlation id should pass through unchanged")
	}
	ctx := WithCorrelationID(context.Background(), "abc")
	if WithCorrelation(ctx, logger) == logger {
		t.Fatalf("logger with correlation id should be a child logger")
	}
}

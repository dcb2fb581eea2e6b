package logger_test

import (
	"errors"
	"testing"

	"github.com/evdnx/spotbot/logger"
	"github.com/evdnx/spotbot/testutils"
)

func TestMockLogger(t *testing.T) {
	l := testutils.NewMockLogger()
	l.Info("hello", logger.String("k", "v"))
	if got := l.LastMessage(); got != "hello" {
		t.Fatalf("expected last message 'hello', got %q", got)
	}
}

func TestMockLoggerRecordsLevels(t *testing.T) {
	l := testutils.NewMockLogger()
	l.Warn("slow", logger.Int("attempt", 2))
	l.Error("boom", logger.Err(errors.New("x")))
	if !l.Has("warn", "slow") || !l.Has("error", "boom") {
		t.Fatal("expected both entries to be recorded")
	}
	if l.Has("info", "boom") {
		t.Fatal("level must be part of the match")
	}
}

func TestNewZapLoggerUnknownLevelFallsBack(t *testing.T) {
	l, err := logger.NewZapLogger("chatty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("ok", logger.Float64("px", 1.5))
}

func TestNopDoesNotPanic(t *testing.T) {
	logger.Nop().Error("ignored", logger.Bool("b", true))
}

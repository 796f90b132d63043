package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInfoJ_SortedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	InfoJ("sender_round", map[string]any{"round": 2, "err": errors.New("boom"), "batch": 3})
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "sender_round" {
		t.Fatalf("message: %q", e.Message)
	}
	if len(e.Context) != 3 || e.Context[0].Key != "batch" || e.Context[1].Key != "err" || e.Context[2].Key != "round" {
		t.Fatalf("fields not sorted: %+v", e.Context)
	}
	if e.ContextMap()["err"] != "boom" {
		t.Fatalf("error field: %v", e.ContextMap()["err"])
	}
}

func TestSetLevel_Invalid(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Fatalf("want error for unknown level")
	}
	if err := SetLevel("info"); err != nil {
		t.Fatalf("info: %v", err)
	}
}

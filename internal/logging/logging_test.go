package logging

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/goMFA/internal/audit"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"loud":    zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewBuildsBothEnvironments(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := New(env, "info", "json")
		if err != nil {
			t.Fatalf("New(%s) failed: %v", env, err)
		}
		_ = logger.Sync()
	}
}

func TestAuditSinkLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewAuditSink(zap.New(core))

	sink.Emit(context.Background(), audit.Event{
		Timestamp: time.Now(),
		EventType: "mfa_failure",
		ActorID:   "u1",
		SubjectID: "u1",
		Method:    "totp",
		Error:     "totp_invalid",
	})
	sink.Emit(context.Background(), audit.Event{
		Timestamp: time.Now(),
		EventType: "resource_access",
		ActorID:   "admin",
		SubjectID: "merchant",
		Success:   true,
		Metadata:  map[string]string{"resource": "orders"},
	})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].Message != "mfa_failure" {
		t.Fatalf("unexpected failure entry %+v", entries[0])
	}
	if entries[0].ContextMap()["error"] != "totp_invalid" {
		t.Fatalf("missing error field: %v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.InfoLevel || entries[1].ContextMap()["impersonated"] != true {
		t.Fatalf("unexpected access entry %+v", entries[1].ContextMap())
	}
}

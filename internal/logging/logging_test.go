package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestGetLoggerAddsNameAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Format: "json", Writer: &buf})
	t.Cleanup(func() { Configure(Config{Output: "discard"}) })

	ctx := WithRequestID(context.Background(), "req-1")
	GetLogger("store").DebugContext(ctx, "hello", "k", 1)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["logger"] != "store" {
		t.Fatalf("expected logger=store, got %v", rec["logger"])
	}
	if rec["request_id"] != "req-1" {
		t.Fatalf("expected request_id=req-1, got %v", rec["request_id"])
	}
	if rec["msg"] != "hello" {
		t.Fatalf("unexpected msg %v", rec["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Writer: &buf})
	t.Cleanup(func() { Configure(Config{Output: "discard"}) })

	log := GetLogger("x")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}
	log.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("warn should be written")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

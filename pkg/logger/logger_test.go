package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerWritesFieldsAndSource(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf), WithJSON(true)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Get().Info(context.Background(), "upload stored", String("session", "s-1"), Int("bytes", 42))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["msg"] != "upload stored" {
		t.Errorf("unexpected msg: %v", line["msg"])
	}
	if line["session"] != "s-1" {
		t.Errorf("unexpected session field: %v", line["session"])
	}
	src, _ := line["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("labels").Warn(context.Background(), "label load failed")
	if !strings.Contains(buf.String(), "component=labels") {
		t.Errorf("named logger should tag component, got %q", buf.String())
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	for _, lvl := range []string{"debug", "INFO", " warn ", "warning", "error", ""} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q should be accepted: %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("unknown level should be rejected")
	}

	_ = SetLevelString("error")
	Get().Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at error level, got %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	Nop().Error(context.Background(), "discarded", Error(context.Canceled))
}

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("inventory")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("appeared", "serial", "emulator-5554")

	out := buf.String()
	if strings.Contains(out, `msg="INFO appeared`) {
		t.Fatalf("unexpected nested severity prefix in message: %s", out)
	}
	if !strings.Contains(out, "msg=appeared") {
		t.Fatalf("expected plain appeared message, got: %s", out)
	}
	if !strings.Contains(out, "component=inventory") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "serial=emulator-5554") {
		t.Fatalf("expected serial field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("sessionmgr")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

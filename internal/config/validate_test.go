package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredBadInspectorAddrIsFatal(t *testing.T) {
	cfg := Default()
	cfg.InspectorAddr = "not-a-host-port"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("malformed inspector_addr should be fatal")
	}
}

func TestValidateTieredUnknownCodecIsFatal(t *testing.T) {
	cfg := Default()
	cfg.PreferredCodecs = []string{"av1", "mjpeg"}
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("unknown codec name should be fatal")
	}
	found := false
	for _, err := range result.Fatals {
		if strings.Contains(err.Error(), "mjpeg") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected unknown codec error naming mjpeg")
	}
}

func TestValidateTieredEmptyCodecListIsFatal(t *testing.T) {
	cfg := Default()
	cfg.PreferredCodecs = nil
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("empty preferred_codecs should be fatal")
	}
}

func TestValidateTieredControlCharsInPushPathIsFatal(t *testing.T) {
	cfg := Default()
	cfg.AgentPushPath = "/data/local/tmp/agent\x00.jar"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control chars in agent_push_path should be fatal")
	}
}

func TestValidateTieredBitRateClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.BitRate = 1
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped bit_rate should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for clamped bit_rate")
	}
	if cfg.BitRate != 8_000_000 {
		t.Fatalf("BitRate = %d, want 8000000 (clamped)", cfg.BitRate)
	}
}

func TestValidateTieredMaxFPSClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxFPS = 999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped max_fps should be warning: %v", result.Fatals)
	}
	if cfg.MaxFPS != 60 {
		t.Fatalf("MaxFPS = %d, want 60", cfg.MaxFPS)
	}
}

func TestValidateTieredLockOrientationClamping(t *testing.T) {
	cfg := Default()
	cfg.LockVideoOrientation = 99
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped lock_video_orientation should be warning: %v", result.Fatals)
	}
	if cfg.LockVideoOrientation != -1 {
		t.Fatalf("LockVideoOrientation = %d, want -1", cfg.LockVideoOrientation)
	}
}

func TestValidateTieredReconnectClamping(t *testing.T) {
	cfg := Default()
	cfg.ReconnectRetries = -5
	cfg.ReconnectDelayMS = 10
	cfg.AcceptTimeoutSecs = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped reconnect fields should be warnings: %v", result.Fatals)
	}
	if cfg.ReconnectRetries != 5 {
		t.Fatalf("ReconnectRetries = %d, want 5", cfg.ReconnectRetries)
	}
	if cfg.ReconnectDelayMS != 1500 {
		t.Fatalf("ReconnectDelayMS = %d, want 1500", cfg.ReconnectDelayMS)
	}
	if cfg.AcceptTimeoutSecs != 10 {
		t.Fatalf("AcceptTimeoutSecs = %d, want 10", cfg.AcceptTimeoutSecs)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info (defaulted)", cfg.LogLevel)
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestValidateTieredLogRotationClamping(t *testing.T) {
	cfg := Default()
	cfg.LogMaxSizeMB = 0
	cfg.LogMaxBackups = -1
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped log rotation fields should be warnings: %v", result.Fatals)
	}
	if cfg.LogMaxSizeMB != 50 {
		t.Fatalf("LogMaxSizeMB = %d, want 50", cfg.LogMaxSizeMB)
	}
	if cfg.LogMaxBackups != 3 {
		t.Fatalf("LogMaxBackups = %d, want 3", cfg.LogMaxBackups)
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.InspectorAddr = "bad-addr"      // fatal
	cfg.LogLevel = "verbose"            // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestDefaultConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}

package config

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"warning": true,
	"error": true,
}

var knownCodecs = map[string]bool{
	"av1":  true,
	"h265": true,
	"h264": true,
}

// ValidationResult splits config problems into Fatals (structurally
// broken values that abort startup) and Warnings (out-of-range tunables
// that get clamped to a safe default and logged, not rejected).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal validation error was recorded.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that want
// a single flat list.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Structurally
// broken fields (an inspector address that won't parse, a codec name
// the fallback loop in §4.5 doesn't know, control characters in a path)
// are fatal. Out-of-range tunables are clamped to a safe value and
// reported as warnings so startup proceeds.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.InspectorAddr != "" {
		if _, _, err := net.SplitHostPort(c.InspectorAddr); err != nil {
			result.Fatals = append(result.Fatals, fmt.Errorf("inspector_addr %q is not a valid host:port: %w", c.InspectorAddr, err))
		}
	}

	if containsControl(c.AgentPushPath) {
		result.Fatals = append(result.Fatals, fmt.Errorf("agent_push_path contains control characters"))
	}

	if len(c.PreferredCodecs) == 0 {
		result.Fatals = append(result.Fatals, fmt.Errorf("preferred_codecs must not be empty"))
	}
	for _, name := range c.PreferredCodecs {
		if !knownCodecs[strings.ToLower(name)] {
			result.Fatals = append(result.Fatals, fmt.Errorf("preferred_codecs contains unknown codec %q", name))
		}
	}

	if c.BitRate < 1_000 || c.BitRate > 100_000_000 {
		result.Warnings = append(result.Warnings, fmt.Errorf("bit_rate %d out of range [1000, 100000000], clamping to 8000000", c.BitRate))
		c.BitRate = 8_000_000
	}

	if c.MaxFPS < 0 || c.MaxFPS > 240 {
		result.Warnings = append(result.Warnings, fmt.Errorf("max_fps %d out of range [0, 240], clamping to 60", c.MaxFPS))
		c.MaxFPS = 60
	}

	if c.MaxSize < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("max_size %d is negative, clamping to 0", c.MaxSize))
		c.MaxSize = 0
	}

	if c.LockVideoOrientation < -1 || c.LockVideoOrientation > 3 {
		result.Warnings = append(result.Warnings, fmt.Errorf("lock_video_orientation %d out of range [-1, 3], clamping to -1", c.LockVideoOrientation))
		c.LockVideoOrientation = -1
	}

	if c.ReconnectRetries < 0 || c.ReconnectRetries > 50 {
		result.Warnings = append(result.Warnings, fmt.Errorf("reconnect_retries %d out of range [0, 50], clamping to 5", c.ReconnectRetries))
		c.ReconnectRetries = 5
	}

	if c.ReconnectDelayMS < 100 || c.ReconnectDelayMS > 60_000 {
		result.Warnings = append(result.Warnings, fmt.Errorf("reconnect_delay_ms %d out of range [100, 60000], clamping to 1500", c.ReconnectDelayMS))
		c.ReconnectDelayMS = 1500
	}

	if c.AcceptTimeoutSecs < 1 || c.AcceptTimeoutSecs > 120 {
		result.Warnings = append(result.Warnings, fmt.Errorf("accept_timeout_seconds %d out of range [1, 120], clamping to 10", c.AcceptTimeoutSecs))
		c.AcceptTimeoutSecs = 10
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.LogMaxSizeMB < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_max_size_mb %d is below minimum 1, clamping", c.LogMaxSizeMB))
		c.LogMaxSizeMB = 50
	}

	if c.LogMaxBackups < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_max_backups %d is negative, clamping to 3", c.LogMaxBackups))
		c.LogMaxBackups = 3
	}

	return result
}

func containsControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

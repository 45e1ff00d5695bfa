package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/screenbridge/hostcore/internal/logging"
)

var log = logging.L("config")

// Config holds the host-side settings for driving the debug tool, the
// mirroring agent's launch argv, and session lifecycle timing.
type Config struct {
	// Debug tool (adb-like binary) location. Empty means "resolve from PATH".
	DebugToolPath string `mapstructure:"debug_tool_path"`

	// AgentPushPath is the on-device path the mirroring agent binary is
	// pushed to before it is started.
	AgentPushPath string `mapstructure:"agent_push_path"`

	// AgentBinaryPath is the host-side path to the mirroring agent
	// binary that gets pushed to AgentPushPath on each device.
	AgentBinaryPath string `mapstructure:"agent_binary_path"`

	// PreferredCodecs' first entry is the codec tried first when adding a
	// device, e.g. ["av1", "h265", "h264"]. On failure the Session
	// Manager falls back along its fixed av1 -> h265 -> h264 chain from
	// that codec; later entries are not consulted.
	PreferredCodecs []string `mapstructure:"preferred_codecs"`

	BitRate              int  `mapstructure:"bit_rate"`
	MaxFPS               int  `mapstructure:"max_fps"`
	MaxSize              int  `mapstructure:"max_size"`
	LockVideoOrientation int  `mapstructure:"lock_video_orientation"`
	AudioEnabled         bool `mapstructure:"audio_enabled"`
	ClipboardAutosync    bool `mapstructure:"clipboard_autosync"`
	StayAwake            bool `mapstructure:"stay_awake"`
	ShowTouches          bool `mapstructure:"show_touches"`
	PowerOffOnClose      bool `mapstructure:"power_off_on_close"`

	ReconnectRetries  int `mapstructure:"reconnect_retries"`
	ReconnectDelayMS  int `mapstructure:"reconnect_delay_ms"`
	AcceptTimeoutSecs int `mapstructure:"accept_timeout_seconds"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// KVStorePath is the JSON file backing the allow/block lists and the
	// UI-preferences cache (§6's three persisted keys).
	KVStorePath string `mapstructure:"kv_store_path"`

	// InspectorAddr is the loopback address the snapshot websocket
	// endpoint binds to. Empty disables the inspector.
	InspectorAddr string `mapstructure:"inspector_addr"`
}

// Default returns the baseline configuration before file/env overlays.
func Default() *Config {
	return &Config{
		AgentPushPath:        "/data/local/tmp/screenbridge-agent",
		AgentBinaryPath:      filepath.Join(dataDir(), "bin", "screenbridge-agent"),
		PreferredCodecs:      []string{"av1", "h265", "h264"},
		BitRate:              8_000_000,
		MaxFPS:               60,
		MaxSize:              0,
		LockVideoOrientation: -1,
		AudioEnabled:         true,
		ClipboardAutosync:    true,
		StayAwake:            true,
		ShowTouches:          false,
		PowerOffOnClose:      false,

		ReconnectRetries:  5,
		ReconnectDelayMS:  1500,
		AcceptTimeoutSecs: 10,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,

		KVStorePath:   filepath.Join(dataDir(), "state.json"),
		InspectorAddr: "127.0.0.1:7807",
	}
}

// Load reads configuration from cfgFile (or the default search path) and
// environment variables prefixed MIRRORHOST_, validates it, and returns
// the merged result. Fatal validation errors abort startup; warnings are
// logged and the offending field is clamped to a safe value.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mirrorhost")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MIRRORHOST")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

// SaveTo writes cfg to cfgFile, or the default config path if empty.
func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("debug_tool_path", cfg.DebugToolPath)
	viper.Set("agent_push_path", cfg.AgentPushPath)
	viper.Set("agent_binary_path", cfg.AgentBinaryPath)
	viper.Set("preferred_codecs", cfg.PreferredCodecs)
	viper.Set("bit_rate", cfg.BitRate)
	viper.Set("max_fps", cfg.MaxFPS)
	viper.Set("max_size", cfg.MaxSize)
	viper.Set("lock_video_orientation", cfg.LockVideoOrientation)
	viper.Set("audio_enabled", cfg.AudioEnabled)
	viper.Set("clipboard_autosync", cfg.ClipboardAutosync)
	viper.Set("stay_awake", cfg.StayAwake)
	viper.Set("show_touches", cfg.ShowTouches)
	viper.Set("power_off_on_close", cfg.PowerOffOnClose)
	viper.Set("reconnect_retries", cfg.ReconnectRetries)
	viper.Set("reconnect_delay_ms", cfg.ReconnectDelayMS)
	viper.Set("accept_timeout_seconds", cfg.AcceptTimeoutSecs)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_file", cfg.LogFile)
	viper.Set("log_max_size_mb", cfg.LogMaxSizeMB)
	viper.Set("log_max_backups", cfg.LogMaxBackups)
	viper.Set("kv_store_path", cfg.KVStorePath)
	viper.Set("inspector_addr", cfg.InspectorAddr)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "mirrorhost.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	return os.Chmod(cfgPath, 0600)
}

func dataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "MirrorHost", "data")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "MirrorHost")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "mirrorhost")
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "MirrorHost")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "MirrorHost")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "mirrorhost")
	}
}

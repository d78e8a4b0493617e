// Package config provides YAML-based configuration loading for framelink.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
    // AppName optional logical name of the process
    AppName string `mapstructure:"app_name"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Display names the windowing display and how it is reached.
    Display DisplayConfig `mapstructure:"display"`

    // Stream controls the render driver and frame channels.
    Stream StreamConfig `mapstructure:"stream"`

    // Signal controls the windowing protocol encoding.
    Signal SignalConfig `mapstructure:"signal"`

    Compositor CompositorConfig `mapstructure:"compositor"`
    Producer   ProducerConfig   `mapstructure:"producer"`
    Stats      StatsConfig      `mapstructure:"stats"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// DisplayConfig example YAML:
// display:
//   name: framelink-0
//   transport: unix
//   socket_dir: /run/user/1000
type DisplayConfig struct {
    Name      string `mapstructure:"name"`
    Transport string `mapstructure:"transport"`
    // SocketDir holds unix sockets; $XDG_RUNTIME_DIR when empty
    SocketDir string `mapstructure:"socket_dir"`
}

type StreamConfig struct {
    // Driver: shm or mem
    Driver string `mapstructure:"driver"`
    // MaxChannels caps live endpoints per display, 0 = unlimited
    MaxChannels int `mapstructure:"max_channels"`
    // SlotBytes is the pixel capacity of a new channel
    SlotBytes int `mapstructure:"slot_bytes"`
    // MaxTextures caps consumer textures on the compositor
    MaxTextures int `mapstructure:"max_textures"`
}

type SignalConfig struct {
    // Format: cbor, json or proto
    Format     string `mapstructure:"format"`
    QueueDepth int    `mapstructure:"queue_depth"`
}

type CompositorConfig struct {
    Width  int `mapstructure:"width"`
    Height int `mapstructure:"height"`
    // SnapshotPath receives a BMP of the canvas; empty disables snapshots
    SnapshotPath string `mapstructure:"snapshot_path"`
    // SnapshotEvery writes a snapshot every N repaints
    SnapshotEvery int `mapstructure:"snapshot_every"`
}

type ProducerConfig struct {
    Width           int `mapstructure:"width"`
    Height          int `mapstructure:"height"`
    FrameIntervalMS int `mapstructure:"frame_interval_ms"`
    // Frames to present before exiting, 0 = run until interrupted
    Frames int `mapstructure:"frames"`
}

type StatsConfig struct {
    // RetainClosedMS keeps closed connection stats around, 0 drops them at once
    RetainClosedMS int `mapstructure:"retain_closed_ms"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName: "framelink",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/framelink.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Display:    DisplayConfig{Name: "framelink-0", Transport: "unix"},
        Stream:     StreamConfig{Driver: "shm", MaxChannels: 64, SlotBytes: 1920 * 1080 * 4, MaxTextures: 64},
        Signal:     SignalConfig{Format: "cbor", QueueDepth: 256},
        Compositor: CompositorConfig{Width: 1280, Height: 720, SnapshotEvery: 60},
        Producer:   ProducerConfig{Width: 320, Height: 240, FrameIntervalMS: 16},
        Stats:      StatsConfig{RetainClosedMS: 60000},
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix FRAMELINK and `.`/`-` are replaced with `_`.
// Example: FRAMELINK_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("FRAMELINK")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("display.name", cfg.Display.Name)
    v.SetDefault("display.transport", cfg.Display.Transport)
    v.SetDefault("display.socket_dir", cfg.Display.SocketDir)
    v.SetDefault("stream.driver", cfg.Stream.Driver)
    v.SetDefault("stream.max_channels", cfg.Stream.MaxChannels)
    v.SetDefault("stream.slot_bytes", cfg.Stream.SlotBytes)
    v.SetDefault("stream.max_textures", cfg.Stream.MaxTextures)
    v.SetDefault("signal.format", cfg.Signal.Format)
    v.SetDefault("signal.queue_depth", cfg.Signal.QueueDepth)
    v.SetDefault("compositor.width", cfg.Compositor.Width)
    v.SetDefault("compositor.height", cfg.Compositor.Height)
    v.SetDefault("compositor.snapshot_path", cfg.Compositor.SnapshotPath)
    v.SetDefault("compositor.snapshot_every", cfg.Compositor.SnapshotEvery)
    v.SetDefault("producer.width", cfg.Producer.Width)
    v.SetDefault("producer.height", cfg.Producer.Height)
    v.SetDefault("producer.frame_interval_ms", cfg.Producer.FrameIntervalMS)
    v.SetDefault("producer.frames", cfg.Producer.Frames)
    v.SetDefault("stats.retain_closed_ms", cfg.Stats.RetainClosedMS)

    // Choose config file
    if path == "" {
        if envPath := os.Getenv("FRAMELINK_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        // Search common locations with base name `framelink`
        v.SetConfigName("framelink")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".framelink"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var viperConfigFileNotFound viper.ConfigFileNotFoundError
        if !errors.As(err, &viperConfigFileNotFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(&cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func (c *Config) validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    if strings.TrimSpace(c.Display.Name) == "" {
        return errors.New("display.name must not be empty")
    }
    c.Display.Transport = strings.ToLower(strings.TrimSpace(c.Display.Transport))
    c.Stream.Driver = strings.ToLower(strings.TrimSpace(c.Stream.Driver))
    c.Signal.Format = strings.ToLower(strings.TrimSpace(c.Signal.Format))
    switch c.Signal.Format {
    case "", "cbor", "json", "proto":
    default:
        return fmt.Errorf("invalid signal.format: %q", c.Signal.Format)
    }
    if c.Stream.SlotBytes <= 0 {
        return fmt.Errorf("invalid stream.slot_bytes: %d", c.Stream.SlotBytes)
    }
    if c.Stream.MaxChannels < 0 || c.Stream.MaxTextures < 0 {
        return errors.New("stream limits must not be negative")
    }
    if c.Compositor.Width <= 0 || c.Compositor.Height <= 0 {
        return fmt.Errorf("invalid compositor size %dx%d", c.Compositor.Width, c.Compositor.Height)
    }
    if c.Producer.Width <= 0 || c.Producer.Height <= 0 {
        return fmt.Errorf("invalid producer size %dx%d", c.Producer.Width, c.Producer.Height)
    }
    if need := c.Producer.Width * c.Producer.Height * 4; need > c.Stream.SlotBytes {
        return fmt.Errorf("producer frame needs %d bytes, stream.slot_bytes is %d", need, c.Stream.SlotBytes)
    }
    if c.Producer.FrameIntervalMS <= 0 {
        c.Producer.FrameIntervalMS = 16
    }
    return nil
}

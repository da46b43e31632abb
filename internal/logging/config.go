package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel     = "PRESENCECTL_LOG_LEVEL"
	EnvLogTimestamp = "PRESENCECTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "PRESENCECTL_LOG_NOCOLOR"
	EnvLogFile      = "PRESENCECTL_LOG_FILE"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logging setup applied to the global zerolog logger.
type Config struct {
	App       string
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool

	// File enables a JSON sink rotated by size/age in addition to the console.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var configureOnce sync.Once

func ConfigureTests() {
	Configure(DefaultConfig(ProfileTest))
}

// Configure installs cfg as the process logger. Only the first call wins.
func Configure(cfg Config) {
	configureOnce.Do(func() {
		applyEnvOverrides(&cfg)
		log.Logger = build(cfg, os.Stdout)
		zerolog.SetGlobalLevel(cfg.Level)
	})
}

func DefaultConfig(profile Profile) Config {
	cfg := Config{
		App:        "presencectl",
		MaxSizeMB:  64,
		MaxBackups: 14,
		MaxAgeDays: 14,
		Compress:   true,
	}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

func build(cfg Config, console io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        console,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		out.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	var w io.Writer = out
	if path := strings.TrimSpace(cfg.File); path != "" {
		w = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	return zerolog.New(w).With().Timestamp().Str("app", cfg.App).Logger()
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.File = v
	}
}

// ParseLevel maps a config/env level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	return parseLevel(raw)
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics", "silly", "verbose":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

package session

import (
	"time"

	"github.com/danmuck/presencectl/internal/backoff"
)

const (
	DefaultPort          = 5223
	DefaultTranscriptDir = "./xmpp-logs"
)

// TLSConfig tunes server verification for the chat transport.
type TLSConfig struct {
	ServerName         string
	CAFile             string
	InsecureSkipVerify bool
}

// Config defines transport/session reliability defaults.
type Config struct {
	Port              int
	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	KeepaliveInterval time.Duration
	ReadBufferSize    int
	TranscriptDir     string
	Reconnect         backoff.Config
	// MaxAttempts bounds Supervisor.Run; 0 means unbounded.
	MaxAttempts int
	TLS         TLSConfig
}

func DefaultConfig() Config {
	return Config{
		Port:              DefaultPort,
		ConnectTimeout:    10 * time.Second,
		HandshakeTimeout:  30 * time.Second,
		WriteTimeout:      15 * time.Second,
		KeepaliveInterval: 150 * time.Second,
		ReadBufferSize:    16 * 1024,
		TranscriptDir:     DefaultTranscriptDir,
		Reconnect:         backoff.Fixed(5 * time.Second),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Port <= 0 {
		c.Port = def.Port
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.TranscriptDir == "" {
		c.TranscriptDir = def.TranscriptDir
	}
	if c.Reconnect == (backoff.Config{}) {
		c.Reconnect = def.Reconnect
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	return c
}

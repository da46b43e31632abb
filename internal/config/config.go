package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk presencectl.toml schema. Durations are Go duration
// strings ("150s", "1h").
type File struct {
	Heartbeat  string         `toml:"heartbeat_interval"`
	Log        LogSection     `toml:"log"`
	Cookies    CookieSection  `toml:"cookies"`
	Credential CredSection    `toml:"credential"`
	Region     RegionSection  `toml:"region"`
	Session    SessionSection `toml:"session"`
	Admin      AdminSection   `toml:"admin"`
}

type LogSection struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	NoColor bool   `toml:"no_color"`
}

type CookieSection struct {
	Backend    string `toml:"backend"`
	File       string `toml:"file"`
	BoltPath   string `toml:"bolt_path"`
	BoltBucket string `toml:"bolt_bucket"`
	RedisURL   string `toml:"redis_url"`
	RedisKey   string `toml:"redis_key"`
}

type CredSection struct {
	AuthorizeURL   string `toml:"authorize_url"`
	CallbackPrefix string `toml:"callback_prefix"`
	EntitlementURL string `toml:"entitlement_url"`
	UserAgent      string `toml:"user_agent"`
	MaxAttempts    int    `toml:"max_attempts"`
	SafetyMargin   string `toml:"safety_margin"`
	RequestTimeout string `toml:"request_timeout"`
}

type RegionSection struct {
	AssignmentURL   string `toml:"assignment_url"`
	PlayerConfigURL string `toml:"player_config_url"`
	ConfigTTL       string `toml:"config_ttl"`
}

type SessionSection struct {
	Port                  int    `toml:"port"`
	TranscriptDir         string `toml:"transcript_dir"`
	ConnectTimeout        string `toml:"connect_timeout"`
	HandshakeTimeout      string `toml:"handshake_timeout"`
	KeepaliveInterval     string `toml:"keepalive_interval"`
	ReconnectDelay        string `toml:"reconnect_delay"`
	MaxAttempts           int    `toml:"max_attempts"`
	TLSServerName         string `toml:"tls_server_name"`
	TLSCAFile             string `toml:"tls_ca_file"`
	TLSInsecureSkipVerify bool   `toml:"tls_insecure_skip_verify"`
}

type AdminSection struct {
	Addr        string   `toml:"addr"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
}

// Render encodes f as TOML.
func Render(f File) (string, error) {
	data, err := toml.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("config render failed: %w", err)
	}
	return string(data), nil
}

// Parse strictly decodes data, rejecting unknown keys.
func Parse(data []byte) (File, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("config parse failed: %w", err)
	}
	return f, nil
}

// Check reads path and reports unknown or mistyped keys.
func Check(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if _, err := Parse(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

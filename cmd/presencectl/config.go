package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/presencectl/internal/backoff"
	"github.com/danmuck/presencectl/internal/config"
	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/service"
)

// loadServiceConfig overlays keys present in path onto the defaults.
func loadServiceConfig(path string) (service.ServiceConfig, logging.Config, error) {
	cfg := service.DefaultServiceConfig()
	logCfg := logging.DefaultConfig(logging.ProfileRuntime)

	var raw config.File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return service.ServiceConfig{}, logging.Config{}, fmt.Errorf("load presencectl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return service.ServiceConfig{}, logging.Config{}, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"heartbeat_interval"}, raw.Heartbeat, &cfg.HeartbeatInterval},
		{[]string{"credential", "safety_margin"}, raw.Credential.SafetyMargin, &cfg.Credential.SafetyMargin},
		{[]string{"credential", "request_timeout"}, raw.Credential.RequestTimeout, &cfg.Credential.RequestTimeout},
		{[]string{"region", "config_ttl"}, raw.Region.ConfigTTL, &cfg.Region.ConfigTTL},
		{[]string{"session", "connect_timeout"}, raw.Session.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{[]string{"session", "handshake_timeout"}, raw.Session.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{[]string{"session", "keepalive_interval"}, raw.Session.KeepaliveInterval, &cfg.Session.KeepaliveInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return service.ServiceConfig{}, logging.Config{}, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}
	if meta.IsDefined("session", "reconnect_delay") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Session.ReconnectDelay))
		if err != nil {
			return service.ServiceConfig{}, logging.Config{}, fmt.Errorf("parse session.reconnect_delay: %w", err)
		}
		cfg.Session.Reconnect = backoff.Fixed(v)
	}

	strs := []struct {
		key []string
		raw string
		dst *string
	}{
		{[]string{"log", "file"}, raw.Log.File, &logCfg.File},
		{[]string{"cookies", "file"}, raw.Cookies.File, &cfg.Cookies.File},
		{[]string{"cookies", "bolt_path"}, raw.Cookies.BoltPath, &cfg.Cookies.BoltPath},
		{[]string{"cookies", "bolt_bucket"}, raw.Cookies.BoltBucket, &cfg.Cookies.BoltBucket},
		{[]string{"cookies", "redis_url"}, raw.Cookies.RedisURL, &cfg.Cookies.RedisURL},
		{[]string{"cookies", "redis_key"}, raw.Cookies.RedisKey, &cfg.Cookies.RedisKey},
		{[]string{"credential", "authorize_url"}, raw.Credential.AuthorizeURL, &cfg.Credential.AuthorizeURL},
		{[]string{"credential", "callback_prefix"}, raw.Credential.CallbackPrefix, &cfg.Credential.CallbackPrefix},
		{[]string{"credential", "entitlement_url"}, raw.Credential.EntitlementURL, &cfg.Credential.EntitlementURL},
		{[]string{"region", "assignment_url"}, raw.Region.AssignmentURL, &cfg.Region.AssignmentURL},
		{[]string{"region", "player_config_url"}, raw.Region.PlayerConfigURL, &cfg.Region.PlayerConfigURL},
		{[]string{"session", "transcript_dir"}, raw.Session.TranscriptDir, &cfg.Session.TranscriptDir},
		{[]string{"session", "tls_server_name"}, raw.Session.TLSServerName, &cfg.Session.TLS.ServerName},
		{[]string{"session", "tls_ca_file"}, raw.Session.TLSCAFile, &cfg.Session.TLS.CAFile},
		{[]string{"admin", "addr"}, raw.Admin.Addr, &cfg.Admin.Addr},
		{[]string{"admin", "token"}, raw.Admin.Token, &cfg.Admin.Token},
	}
	for _, s := range strs {
		if meta.IsDefined(s.key...) {
			*s.dst = strings.TrimSpace(s.raw)
		}
	}

	// The upstream expects an empty User-Agent, so whitespace is kept.
	if meta.IsDefined("credential", "user_agent") {
		cfg.Credential.UserAgent = raw.Credential.UserAgent
	}
	if meta.IsDefined("cookies", "backend") {
		cfg.Cookies.Backend = service.NormalizeCookieBackend(service.CookieBackend(raw.Cookies.Backend))
	}
	if meta.IsDefined("credential", "max_attempts") {
		cfg.Credential.MaxAttempts = raw.Credential.MaxAttempts
	}
	if meta.IsDefined("session", "port") {
		cfg.Session.Port = raw.Session.Port
	}
	if meta.IsDefined("session", "max_attempts") {
		cfg.Session.MaxAttempts = raw.Session.MaxAttempts
	}
	if meta.IsDefined("session", "tls_insecure_skip_verify") {
		cfg.Session.TLS.InsecureSkipVerify = raw.Session.TLSInsecureSkipVerify
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeOrigins(raw.Admin.CorsOrigins)
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return service.ServiceConfig{}, logging.Config{}, fmt.Errorf("parse log.level: unknown level %q", raw.Log.Level)
		}
		logCfg.Level = lvl
	}
	if meta.IsDefined("log", "no_color") {
		logCfg.NoColor = raw.Log.NoColor
	}

	return cfg, logCfg, nil
}

// effectiveFile renders the resolved config back into the file schema.
func effectiveFile(cfg service.ServiceConfig, logCfg logging.Config) config.File {
	return config.File{
		Heartbeat: cfg.HeartbeatInterval.String(),
		Log: config.LogSection{
			Level:   logCfg.Level.String(),
			File:    logCfg.File,
			NoColor: logCfg.NoColor,
		},
		Cookies: config.CookieSection{
			Backend:    string(service.NormalizeCookieBackend(cfg.Cookies.Backend)),
			File:       cfg.Cookies.File,
			BoltPath:   cfg.Cookies.BoltPath,
			BoltBucket: cfg.Cookies.BoltBucket,
			RedisURL:   cfg.Cookies.RedisURL,
			RedisKey:   cfg.Cookies.RedisKey,
		},
		Credential: config.CredSection{
			AuthorizeURL:   cfg.Credential.AuthorizeURL,
			CallbackPrefix: cfg.Credential.CallbackPrefix,
			EntitlementURL: cfg.Credential.EntitlementURL,
			UserAgent:      cfg.Credential.UserAgent,
			MaxAttempts:    cfg.Credential.MaxAttempts,
			SafetyMargin:   cfg.Credential.SafetyMargin.String(),
			RequestTimeout: cfg.Credential.RequestTimeout.String(),
		},
		Region: config.RegionSection{
			AssignmentURL:   cfg.Region.AssignmentURL,
			PlayerConfigURL: cfg.Region.PlayerConfigURL,
			ConfigTTL:       cfg.Region.ConfigTTL.String(),
		},
		Session: config.SessionSection{
			Port:                  cfg.Session.Port,
			TranscriptDir:         cfg.Session.TranscriptDir,
			ConnectTimeout:        cfg.Session.ConnectTimeout.String(),
			HandshakeTimeout:      cfg.Session.HandshakeTimeout.String(),
			KeepaliveInterval:     cfg.Session.KeepaliveInterval.String(),
			ReconnectDelay:        cfg.Session.Reconnect.InitialDelay.String(),
			MaxAttempts:           cfg.Session.MaxAttempts,
			TLSServerName:         cfg.Session.TLS.ServerName,
			TLSCAFile:             cfg.Session.TLS.CAFile,
			TLSInsecureSkipVerify: cfg.Session.TLS.InsecureSkipVerify,
		},
		Admin: config.AdminSection{
			Addr:        cfg.Admin.Addr,
			Token:       redact(cfg.Admin.Token),
			CorsOrigins: cfg.Admin.CorsOrigins,
		},
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "<redacted>"
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/presencectl/internal/admin"
	"github.com/danmuck/presencectl/internal/cookies"
	"github.com/danmuck/presencectl/internal/credential"
	"github.com/danmuck/presencectl/internal/protocol/session"
	"github.com/danmuck/presencectl/internal/region"
)

var (
	ErrInvalidHeartbeatInterval = errors.New("service: invalid heartbeat interval")
	ErrInvalidCookieBackend     = errors.New("service: invalid cookie backend")
)

type CookieBackend string

const (
	CookieBackendFile  CookieBackend = "file"
	CookieBackendBolt  CookieBackend = "bolt"
	CookieBackendRedis CookieBackend = "redis"
)

// CookieConfig selects and locates the cookie jar store.
type CookieConfig struct {
	Backend    CookieBackend
	File       string
	BoltPath   string
	BoltBucket string
	RedisURL   string
	RedisKey   string
}

// RegionConfig configures region-assignment and player-config lookups.
type RegionConfig struct {
	AssignmentURL   string
	PlayerConfigURL string
	ConfigTTL       time.Duration
	RequestTimeout  time.Duration
}

// ServiceConfig configures the presencectl runtime.
type ServiceConfig struct {
	Credential        credential.Config
	Cookies           CookieConfig
	Region            RegionConfig
	Session           session.Config
	Admin             admin.Config
	HeartbeatInterval time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Credential: credential.DefaultConfig(),
		Cookies: CookieConfig{
			Backend:    CookieBackendFile,
			File:       "./cookies.txt",
			BoltPath:   "./presencectl.db",
			BoltBucket: cookies.DefaultBoltBucket,
			RedisURL:   "redis://localhost:6379/0",
			RedisKey:   cookies.DefaultRedisKey,
		},
		Region: RegionConfig{
			AssignmentURL:   region.DefaultAssignmentURL,
			PlayerConfigURL: region.DefaultPlayerConfigURL,
			ConfigTTL:       time.Hour,
			RequestTimeout:  30 * time.Second,
		},
		Session:           session.DefaultConfig(),
		Admin:             admin.Config{},
		HeartbeatInterval: 30 * time.Second,
	}
}

func NormalizeCookieBackend(b CookieBackend) CookieBackend {
	if strings.TrimSpace(string(b)) == "" {
		return CookieBackendFile
	}
	return CookieBackend(strings.ToLower(strings.TrimSpace(string(b))))
}

func (c ServiceConfig) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	switch NormalizeCookieBackend(c.Cookies.Backend) {
	case CookieBackendFile:
		if strings.TrimSpace(c.Cookies.File) == "" {
			return fmt.Errorf("%w: file path required", ErrInvalidCookieBackend)
		}
	case CookieBackendBolt:
		if strings.TrimSpace(c.Cookies.BoltPath) == "" {
			return fmt.Errorf("%w: bolt path required", ErrInvalidCookieBackend)
		}
	case CookieBackendRedis:
		if strings.TrimSpace(c.Cookies.RedisURL) == "" {
			return fmt.Errorf("%w: redis url required", ErrInvalidCookieBackend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCookieBackend, c.Cookies.Backend)
	}
	if c.Region.ConfigTTL < 0 {
		return fmt.Errorf("service: region config ttl must not be negative")
	}
	return c.Session.WithDefaults().ValidateClientTransport()
}

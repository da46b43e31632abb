package credential

import (
	"time"

	"github.com/danmuck/presencectl/internal/backoff"
)

const (
	DefaultAuthorizeURL   = "https://auth.riotgames.com/authorize?redirect_uri=https%3A%2F%2Fplayvalorant.com%2Fopt_in&client_id=play-valorant-web-prod&response_type=token%20id_token&nonce=1"
	DefaultCallbackPrefix = "https://playvalorant.com/opt_in"
	DefaultEntitlementURL = "https://entitlements.auth.riotgames.com/api/token/v1"
)

// Config defines reauthentication endpoints and retry policy.
type Config struct {
	AuthorizeURL   string
	CallbackPrefix string
	EntitlementURL string
	UserAgent      string
	MaxAttempts    int
	Backoff        backoff.Config
	SafetyMargin   time.Duration
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		AuthorizeURL:   DefaultAuthorizeURL,
		CallbackPrefix: DefaultCallbackPrefix,
		EntitlementURL: DefaultEntitlementURL,
		UserAgent:      "",
		MaxAttempts:    10,
		Backoff:        backoff.Linear(0, time.Second, 5*time.Second),
		SafetyMargin:   60 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig. UserAgent is
// intentionally left as given; the upstream expects it empty.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.AuthorizeURL == "" {
		c.AuthorizeURL = def.AuthorizeURL
	}
	if c.CallbackPrefix == "" {
		c.CallbackPrefix = def.CallbackPrefix
	}
	if c.EntitlementURL == "" {
		c.EntitlementURL = def.EntitlementURL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Backoff == (backoff.Config{}) {
		c.Backoff = def.Backoff
	}
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = def.SafetyMargin
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	return c
}

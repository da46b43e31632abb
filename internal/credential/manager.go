package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/presencectl/internal/backoff"
	"github.com/danmuck/presencectl/internal/clock"
	"github.com/danmuck/presencectl/internal/cookies"
	"github.com/danmuck/presencectl/internal/observability"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Credential is one renewed token set. ExpiresAt already has the safety
// margin subtracted.
type Credential struct {
	Token       string
	IDToken     string
	Entitlement string
	ExpiresAt   time.Time
}

// Valid reports whether the credential may be handed out at now.
func (c Credential) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// Status is a read-only view of the manager for status reporting.
type Status struct {
	HasCredential bool      `json:"has_credential"`
	ExpiresAt     time.Time `json:"expires_at"`
	Renewals      int       `json:"renewals"`
	LastRenewalAt time.Time `json:"last_renewal_at"`
	LastError     string    `json:"last_error,omitempty"`
	CookieCount   int       `json:"cookie_count"`
}

type Option func(*Manager)

func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = noRedirectClient(client)
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// Manager keeps a Credential valid by cookie reauthentication.
type Manager struct {
	cfg    Config
	store  cookies.Store
	client *http.Client
	clock  clock.Clock
	group  singleflight.Group

	mu            sync.RWMutex
	cred          Credential
	jar           *cookies.Jar
	renewals      int
	lastRenewalAt time.Time
	lastErr       error
}

func NewManager(cfg Config, store cookies.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("credential: cookie store required")
	}
	m := &Manager{
		cfg:    cfg.WithDefaults(),
		store:  store,
		client: noRedirectClient(http.DefaultClient),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func noRedirectClient(base *http.Client) *http.Client {
	c := *base
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

func (m *Manager) Token(ctx context.Context) (string, error) {
	cred, err := m.Credential(ctx)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

func (m *Manager) Entitlement(ctx context.Context) (string, error) {
	cred, err := m.Credential(ctx)
	if err != nil {
		return "", err
	}
	return cred.Entitlement, nil
}

// Credential returns the cached credential, renewing first if it has
// expired. Concurrent callers share one renewal.
func (m *Manager) Credential(ctx context.Context) (Credential, error) {
	if cred, ok := m.current(); ok {
		return cred, nil
	}

	// The renewal is shared, so one caller giving up must not abort it.
	ch := m.group.DoChan("renew", func() (any, error) {
		return m.renewIfExpired(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		cred := res.Val.(Credential)
		if !cred.Valid(m.clock.Now()) {
			return Credential{}, ErrCredentialExpired
		}
		return cred, nil
	}
}

func (m *Manager) current() (Credential, bool) {
	m.mu.RLock()
	cred := m.cred
	m.mu.RUnlock()
	return cred, cred.Valid(m.clock.Now())
}

// Status snapshots the manager without triggering renewal.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{
		HasCredential: m.cred.Token != "",
		ExpiresAt:     m.cred.ExpiresAt,
		Renewals:      m.renewals,
		LastRenewalAt: m.lastRenewalAt,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	if m.jar != nil {
		st.CookieCount = m.jar.Len()
	}
	return st
}

// Invalidate drops the cached credential so the next caller renews.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
}

func (m *Manager) renewIfExpired(ctx context.Context) (Credential, error) {
	// A caller may have raced past the fast path just as the previous
	// renewal finished.
	if cred, ok := m.current(); ok {
		return cred, nil
	}
	start := m.clock.Now()
	cred, err := m.renew(ctx)
	observability.RecordRenewal(err == nil, m.clock.Now().Sub(start))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	if err != nil {
		return Credential{}, err
	}
	m.cred = cred
	m.renewals++
	m.lastRenewalAt = m.clock.Now()
	return cred, nil
}

func (m *Manager) renew(ctx context.Context) (Credential, error) {
	log.Info().Msg("credential.Manager.renew refreshing credentials")
	jar, err := m.loadJar(ctx)
	if err != nil {
		log.Error().Err(err).Msg("credential.Manager.renew cookie load failed")
		return Credential{}, err
	}

	var (
		grant   grant
		lastErr error
		ok      bool
		attempt int
	)
	for attempt = 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		grant, lastErr = m.reauth(ctx, jar)
		observability.RecordReauthAttempt(lastErr == nil)
		if lastErr == nil {
			ok = true
			break
		}
		delay := backoff.Next(m.cfg.Backoff, attempt, nil)
		log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("credential.Manager.renew reauth failed")
		if err := backoff.Wait(ctx, m.clock, delay); err != nil {
			lastErr = err
			break
		}
	}

	if err := m.store.Save(ctx, jar); err != nil {
		log.Error().Err(err).Msg("credential.Manager.renew cookie persist failed")
	}

	if !ok {
		if attempt > m.cfg.MaxAttempts {
			attempt = m.cfg.MaxAttempts
		}
		return Credential{}, fmt.Errorf("%w: attempts=%d: %w", ErrRenewalExhausted, attempt, lastErr)
	}

	entitlement, err := m.exchangeEntitlement(ctx, grant.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("credential.Manager.renew entitlement exchange failed")
		return Credential{}, err
	}

	expiresAt := grant.ExpiresAt
	if exp, found := tokenExpiry(entitlement); found {
		if limit := exp.Add(-m.cfg.SafetyMargin); limit.Before(expiresAt) {
			expiresAt = limit
		}
	}
	cred := Credential{
		Token:       grant.AccessToken,
		IDToken:     grant.IDToken,
		Entitlement: entitlement,
		ExpiresAt:   expiresAt,
	}
	log.Info().
		Time("expires_at", cred.ExpiresAt).
		Int("attempts", attempt).
		Msg("credential.Manager.renew credentials refreshed")
	return cred, nil
}

func (m *Manager) loadJar(ctx context.Context) (*cookies.Jar, error) {
	m.mu.RLock()
	jar := m.jar
	m.mu.RUnlock()
	if jar != nil {
		return jar, nil
	}

	jar, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Int("cookies", jar.Len()).Msg("credential.Manager.loadJar loaded cookies")

	m.mu.Lock()
	m.jar = jar
	m.mu.Unlock()
	return jar, nil
}

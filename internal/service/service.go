// Package service wires the credential manager, region resolver, chat
// session supervisor and admin surface into one process.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/presencectl/internal/admin"
	"github.com/danmuck/presencectl/internal/clock"
	"github.com/danmuck/presencectl/internal/cookies"
	"github.com/danmuck/presencectl/internal/credential"
	"github.com/danmuck/presencectl/internal/protocol/session"
	"github.com/danmuck/presencectl/internal/region"
	"github.com/rs/zerolog/log"
)

// Service runs presencectl as a standalone process.
type Service struct {
	cfg        ServiceConfig
	store      cookies.Store
	closer     io.Closer
	manager    *credential.Manager
	resolver   *region.Resolver
	client     *session.Client
	supervisor *session.Supervisor
	admin      *admin.Server
}

// Option customizes component construction, mainly for tests.
type Option func(*options)

type options struct {
	httpClient *http.Client
	dialer     session.Dialer
	clock      clock.Clock
	store      cookies.Store
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithDialer(d session.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithCookieStore bypasses the configured cookie backend.
func WithCookieStore(s cookies.Store) Option {
	return func(o *options) { o.store = s }
}

func NewService(ctx context.Context, cfg ServiceConfig, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{httpClient: http.DefaultClient, clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{cfg: cfg}
	if o.store != nil {
		s.store = o.store
	} else {
		store, closer, err := OpenCookieStore(ctx, cfg.Cookies)
		if err != nil {
			return nil, err
		}
		s.store, s.closer = store, closer
	}

	manager, err := credential.NewManager(
		cfg.Credential,
		s.store,
		credential.WithHTTPClient(o.httpClient),
		credential.WithClock(o.clock),
	)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.manager = manager

	regionClient := region.NewClient()
	regionClient.AssignmentURL = cfg.Region.AssignmentURL
	regionClient.PlayerConfigURL = cfg.Region.PlayerConfigURL
	regionClient.UserAgent = cfg.Credential.UserAgent
	regionClient.HTTP = o.httpClient
	if cfg.Region.RequestTimeout > 0 {
		regionClient.Timeout = cfg.Region.RequestTimeout
	}
	s.resolver = region.NewResolver(regionClient, cfg.Region.ConfigTTL, o.clock)

	sessionOpts := []session.Option{session.WithClock(o.clock)}
	if o.dialer != nil {
		sessionOpts = append(sessionOpts, session.WithDialer(o.dialer))
	}
	client, err := session.NewClient(cfg.Session, manager, regionClient, s.resolver, sessionOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.client = client
	s.supervisor = session.NewSupervisor(client, cfg.Session, o.clock)

	if strings.TrimSpace(cfg.Admin.Addr) != "" {
		s.admin = admin.New(cfg.Admin, manager, client)
	}
	return s, nil
}

// OpenCookieStore builds the configured backend. The closer is nil for
// the file backend.
func OpenCookieStore(ctx context.Context, cfg CookieConfig) (cookies.Store, io.Closer, error) {
	switch NormalizeCookieBackend(cfg.Backend) {
	case CookieBackendFile:
		return cookies.NewFileStore(cfg.File), nil, nil
	case CookieBackendBolt:
		store, err := cookies.OpenBoltStore(cfg.BoltPath, cfg.BoltBucket)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case CookieBackendRedis:
		store, err := cookies.OpenRedisStore(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidCookieBackend, cfg.Backend)
	}
}

func (s *Service) Manager() *credential.Manager {
	return s.manager
}

func (s *Service) Session() *session.Client {
	return s.client
}

// Run blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer s.Close()
	return s.Serve(ctx)
}

// Serve runs the session supervisor, the admin server and the heartbeat
// log until ctx is canceled or the supervisor gives up.
func (s *Service) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info().
		Str("cookie_backend", string(NormalizeCookieBackend(s.cfg.Cookies.Backend))).
		Str("transcript_dir", s.cfg.Session.TranscriptDir).
		Msg("service.Service.Serve starting")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.supervisor.Run(ctx); err != nil {
			errs <- err
		}
		cancel()
	}()
	if s.admin != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.admin.Serve(ctx); err != nil {
				errs <- fmt.Errorf("service: admin: %w", err)
				cancel()
			}
		}()
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			close(errs)
			var joined error
			for err := range errs {
				joined = errors.Join(joined, err)
			}
			log.Info().Err(joined).Msg("service.Service.Serve stopped")
			return joined
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Service) heartbeat() {
	cred := s.manager.Status()
	sess := s.client.Status()
	log.Info().
		Str("stage", sess.Stage.String()).
		Int("attempts", sess.Attempts).
		Str("host", sess.Host).
		Bool("credential", cred.HasCredential).
		Time("credential_expires_at", cred.ExpiresAt).
		Int("renewals", cred.Renewals).
		Msg("service.Service heartbeat")
}

// Close releases the cookie store backend.
func (s *Service) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

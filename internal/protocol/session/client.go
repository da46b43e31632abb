package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/presencectl/internal/clock"
	"github.com/danmuck/presencectl/internal/observability"
	"github.com/danmuck/presencectl/internal/protocol/xmpp"
	"github.com/danmuck/presencectl/internal/region"
	"github.com/danmuck/presencectl/internal/transcript"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TokenSource hands out a currently valid bearer and entitlement token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Entitlement(ctx context.Context) (string, error)
}

// AssignmentSource fetches the raw region-assignment token.
type AssignmentSource interface {
	FetchAssignment(ctx context.Context, token string) (string, error)
}

// EndpointResolver maps an affinity to a chat host and domain.
type EndpointResolver interface {
	Resolve(ctx context.Context, affinity, token, entitlement string) (region.Endpoint, error)
}

// Status is a read-only snapshot of the current or last attempt.
type Status struct {
	AttemptID   string     `json:"attempt_id"`
	Attempts    int        `json:"attempts"`
	Stage       xmpp.Stage `json:"stage"`
	Affinity    string     `json:"affinity,omitempty"`
	Host        string     `json:"host,omitempty"`
	Domain      string     `json:"domain,omitempty"`
	Transcript  string     `json:"transcript,omitempty"`
	ConnectedAt time.Time  `json:"connected_at,omitzero"`
	LastError   string     `json:"last_error,omitempty"`
}

type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithStageObserver registers fn to be called on every stage change.
func WithStageObserver(fn func(xmpp.Stage)) Option {
	return func(c *Client) {
		c.observer = fn
	}
}

// Client performs one connection attempt per Connect call.
type Client struct {
	cfg         Config
	tokens      TokenSource
	assignments AssignmentSource
	resolver    EndpointResolver
	dialer      Dialer
	clock       clock.Clock
	observer    func(xmpp.Stage)

	mu     sync.RWMutex
	status Status
}

func NewClient(cfg Config, tokens TokenSource, assignments AssignmentSource, resolver EndpointResolver, opts ...Option) (*Client, error) {
	if tokens == nil || assignments == nil || resolver == nil {
		return nil, errors.New("session: token, assignment and resolver sources required")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:         cfg,
		tokens:      tokens,
		assignments: assignments,
		resolver:    resolver,
		clock:       clock.Real(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewTLSDialer(cfg)
	}
	return c, nil
}

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Connect resolves the endpoint, dials it and runs the bootstrap. The
// returned Conn is Ready; the caller must Serve or Close it.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	id := c.beginAttempt()
	logger := log.With().Str("attempt_id", id).Logger()

	conn, err := c.connect(ctx)
	if err != nil {
		c.mu.Lock()
		c.status.LastError = err.Error()
		c.mu.Unlock()
		c.setStage(xmpp.Disconnected)
		logger.Warn().Err(err).Msg("session.Client.Connect attempt failed")
		return nil, err
	}
	logger.Info().
		Str("host", conn.endpoint.Host).
		Str("transcript", conn.transcript.Path()).
		Msg("session.Client.Connect ready")
	return conn, nil
}

func (c *Client) connect(ctx context.Context) (*Conn, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.assignments.FetchAssignment(ctx, token)
	if err != nil {
		return nil, err
	}
	assignment, err := region.DecodeAssignment(raw)
	if err != nil {
		return nil, err
	}
	entitlement, err := c.tokens.Entitlement(ctx)
	if err != nil {
		return nil, err
	}
	endpoint, err := c.resolver.Resolve(ctx, assignment.Affinity, token, entitlement)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.status.Affinity = endpoint.Affinity
	c.status.Host = endpoint.Host
	c.status.Domain = endpoint.Domain
	c.mu.Unlock()

	log.Info().
		Str("host", endpoint.Host).
		Int("port", c.cfg.Port).
		Str("domain", endpoint.Domain).
		Msg("session.Client.connect dialing")
	netConn, err := c.dialer.Dial(ctx, endpoint.Host, c.cfg.Port)
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, err
	}
	c.setStage(xmpp.TLSConnected)

	tw, err := transcript.Open(c.cfg.TranscriptDir, c.clock.Now)
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}
	c.mu.Lock()
	c.status.Transcript = tw.Path()
	c.mu.Unlock()

	conn := newConn(c, netConn, tw, endpoint)
	steps := xmpp.HandshakeSteps(endpoint.Domain, token, assignment.Raw, entitlement)
	if err := conn.handshake(ctx, steps); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.mu.Lock()
	c.status.ConnectedAt = c.clock.Now()
	c.status.LastError = ""
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) beginAttempt() string {
	id := uuid.NewString()
	c.mu.Lock()
	c.status = Status{
		AttemptID: id,
		Attempts:  c.status.Attempts + 1,
		LastError: c.status.LastError,
	}
	c.mu.Unlock()
	c.setStage(xmpp.Disconnected)
	return id
}

func (c *Client) setStage(stage xmpp.Stage) {
	c.mu.Lock()
	changed := c.status.Stage != stage
	c.status.Stage = stage
	c.mu.Unlock()
	observability.SetSessionStage(int(stage))
	if changed {
		log.Debug().Str("stage", stage.String()).Msg("session.Client stage")
	}
	if c.observer != nil {
		c.observer(stage)
	}
}

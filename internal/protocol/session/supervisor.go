package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/presencectl/internal/backoff"
	"github.com/danmuck/presencectl/internal/clock"
	"github.com/danmuck/presencectl/internal/observability"
	"github.com/rs/zerolog/log"
)

// Connector produces Ready connections.
type Connector interface {
	Connect(ctx context.Context) (*Conn, error)
}

// Supervisor owns the reconnect loop: connect, serve until close, wait
// the reconnect delay, repeat.
type Supervisor struct {
	connector Connector
	cfg       Config
	clock     clock.Clock
	rng       *rand.Rand
}

func NewSupervisor(connector Connector, cfg Config, clk clock.Clock) *Supervisor {
	if clk == nil {
		clk = clock.Real()
	}
	return &Supervisor{
		connector: connector,
		cfg:       cfg.WithDefaults(),
		clock:     clk,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is canceled (returning nil) or MaxAttempts is
// reached. Connect failures and closed connections wait the same delay.
func (s *Supervisor) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		conn, err := s.connector.Connect(ctx)
		observability.RecordConnectAttempt(err == nil)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("session.Supervisor.Run connect failed")
		} else {
			cause := conn.Serve(ctx)
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(cause).Int("attempt", attempt).Msg("session.Supervisor.Run connection closed")
		}

		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			return fmt.Errorf("%w: attempts=%d", ErrAttemptsExhausted, attempt)
		}
		delay := backoff.Next(s.cfg.Reconnect, attempt, s.rng)
		log.Info().Dur("retry_in", delay).Msg("session.Supervisor.Run reconnecting")
		if err := backoff.Wait(ctx, s.clock, delay); err != nil {
			return nil
		}
	}
}

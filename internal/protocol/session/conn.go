package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/presencectl/internal/observability"
	"github.com/danmuck/presencectl/internal/protocol/xmpp"
	"github.com/danmuck/presencectl/internal/region"
	"github.com/danmuck/presencectl/internal/transcript"
	"github.com/rs/zerolog/log"
)

// Conn is one live, bootstrapped chat connection.
type Conn struct {
	client     *Client
	cfg        Config
	conn       net.Conn
	transcript *transcript.Writer
	endpoint   region.Endpoint
	scanner    *xmpp.Scanner

	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	writeMu   sync.Mutex

	errMu   sync.Mutex
	readErr error
}

func newConn(client *Client, netConn net.Conn, tw *transcript.Writer, endpoint region.Endpoint) *Conn {
	return &Conn{
		client:     client,
		cfg:        client.cfg,
		conn:       netConn,
		transcript: tw,
		endpoint:   endpoint,
		scanner:    xmpp.NewScanner(),
		inbound:    make(chan []byte, 16),
		done:       make(chan struct{}),
	}
}

func (c *Conn) Endpoint() region.Endpoint {
	return c.endpoint
}

func (c *Conn) TranscriptPath() string {
	return c.transcript.Path()
}

// handshake starts the reader and walks the bootstrap steps in order.
func (c *Conn) handshake(ctx context.Context, steps []xmpp.Step) error {
	go c.readLoop()

	for i, step := range steps {
		log.Info().
			Int("stage", i+1).
			Str("step", step.Name).
			Msg("session.Conn.handshake stage")
		if err := c.write(step.Fragment); err != nil {
			return err
		}
		if step.Sent != xmpp.Disconnected {
			c.client.setStage(step.Sent)
		}
		if err := c.await(ctx, step); err != nil {
			return err
		}
		c.client.setStage(step.Done)
	}

	log.Info().Msg("session.Conn.handshake requesting roster and presence")
	if err := c.write(xmpp.RosterAndArchive); err != nil {
		return err
	}
	if err := c.write(xmpp.Presence); err != nil {
		return err
	}
	c.client.setStage(xmpp.Ready)
	return nil
}

// await feeds inbound chunks to the scanner until step's marker is seen.
func (c *Conn) await(ctx context.Context, step xmpp.Step) error {
	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	for {
		if c.scanner.Consume(step.Marker) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: step=%s after=%s", ErrHandshakeStageTimeout, step.Name, c.cfg.HandshakeTimeout)
		case chunk, ok := <-c.inbound:
			if !ok {
				return c.closeCause()
			}
			c.scanner.Feed(chunk)
		}
	}
}

// readLoop records every chunk on arrival, then hands it to the
// handshake or the serve loop.
func (c *Conn) readLoop() {
	defer close(c.inbound)
	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			_ = c.transcript.Incoming(chunk)
			select {
			case c.inbound <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			return
		}
	}
}

func (c *Conn) closeCause() error {
	c.errMu.Lock()
	err := c.readErr
	c.errMu.Unlock()
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return ErrConnClosed
	}
	return fmt.Errorf("%w: read: %w", ErrTransport, err)
}

// write records data as outgoing and sends it.
func (c *Conn) write(data string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	_ = c.transcript.Outgoing(data)
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := io.WriteString(c.conn, data); err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	return nil
}

// Serve keeps the connection alive until the peer closes it, a write
// fails or ctx is canceled. It always closes the connection and returns
// the cause; ctx cancellation returns nil.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.Close()
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return ErrConnClosed
		case _, ok := <-c.inbound:
			if !ok {
				return c.closeCause()
			}
		case <-ticker.C:
			if err := c.write(xmpp.Keepalive); err != nil {
				return err
			}
			observability.RecordKeepalive()
		}
	}
}

// Close tears down the transport and transcript. Safe to call more than
// once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
		if err := c.transcript.Close(); err != nil {
			log.Warn().Err(err).Msg("session.Conn.Close transcript close failed")
		}
		c.client.setStage(xmpp.Disconnected)
	})
	return c.closeErr
}

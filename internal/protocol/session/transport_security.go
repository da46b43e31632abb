package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

var (
	ErrInvalidPort        = errors.New("session: invalid port")
	ErrHostRequired       = errors.New("session: host required")
	ErrTLSCABundleInvalid = errors.New("session: tls ca bundle invalid")
)

// Dialer opens the byte transport to a resolved chat host.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (net.Conn, error)
}

// TLSDialer dials TCP and completes a TLS client handshake.
type TLSDialer struct {
	cfg Config
}

func NewTLSDialer(cfg Config) *TLSDialer {
	return &TLSDialer{cfg: cfg.WithDefaults()}
}

func (c Config) ValidateClientTransport() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if caPath := strings.TrimSpace(c.TLS.CAFile); caPath != "" {
		if _, err := os.Stat(caPath); err != nil {
			return fmt.Errorf("%w: %w", ErrTLSCABundleInvalid, err)
		}
	}
	return nil
}

func (d *TLSDialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	if strings.TrimSpace(host) == "" {
		return nil, ErrHostRequired
	}
	if port <= 0 {
		port = d.cfg.Port
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
	}

	tlsCfg, err := d.clientTLSConfig(host)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("%w: tls handshake %s: %w", ErrTransport, addr, err)
	}
	return conn, nil
}

func (d *TLSDialer) clientTLSConfig(host string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: d.cfg.TLS.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(d.cfg.TLS.ServerName)
	if serverName == "" {
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(d.cfg.TLS.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTLSCABundleInvalid, err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("%w: %s", ErrTLSCABundleInvalid, caPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

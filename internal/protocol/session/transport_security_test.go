package session

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/danmuck/presencectl/internal/protocol/xmpp"
	"github.com/danmuck/presencectl/internal/region"
	"github.com/danmuck/presencectl/internal/testutil/chattest"
	"github.com/danmuck/presencectl/internal/testutil/testlog"
	"github.com/danmuck/presencectl/internal/testutil/tlstest"
)

func startTLSServer(t *testing.T) (string, int) {
	t.Helper()
	srv := tlstest.NewServer(t, []string{"chat.test"}, func(c net.Conn) {
		_, _ = io.WriteString(c, "ok")
	})
	return srv.CAFile(), srv.Port()
}

type loopbackResolver struct{}

func (loopbackResolver) Resolve(_ context.Context, affinity, _, _ string) (region.Endpoint, error) {
	return region.Endpoint{Affinity: affinity, Host: "127.0.0.1", Domain: "na2"}, nil
}

func TestTLSDialerVerifiesServer(t *testing.T) {
	testlog.Start(t)
	caFile, port := startTLSServer(t)

	cfg := DefaultConfig()
	cfg.TLS.CAFile = caFile
	conn, err := NewTLSDialer(cfg).Dial(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil || string(buf) != "ok" {
		t.Fatalf("unexpected read: %q err=%v", buf, err)
	}
}

func TestConnectOverTLS(t *testing.T) {
	testlog.Start(t)
	srv := tlstest.NewServer(t, []string{"chat.test"}, func(c net.Conn) {
		p := &chattest.Peer{Conn: c}
		if p.Bootstrap("na2") {
			p.Drain()
		}
	})

	cfg := testConfig(t)
	cfg.Port = srv.Port()
	cfg.TLS.CAFile = srv.CAFile()
	client, err := NewClient(cfg, stubTokens{}, stubAssignments{raw: testAssignment}, loopbackResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	conn, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := client.Status().Stage; got != xmpp.Ready {
		t.Fatalf("expected Ready, got %s", got)
	}
	_ = conn.Close()
	if got := client.Status().Stage; got != xmpp.Disconnected {
		t.Fatalf("expected Disconnected after close, got %s", got)
	}
}

func TestTLSDialerRejectsUnknownAuthority(t *testing.T) {
	testlog.Start(t)
	_, port := startTLSServer(t)

	_, err := NewTLSDialer(DefaultConfig()).Dial(context.Background(), "127.0.0.1", port)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestValidateClientTransport(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if err := cfg.ValidateClientTransport(); err != nil {
		t.Fatalf("expected defaults valid, got %v", err)
	}
	cfg.Port = 70000
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrInvalidPort) {
		t.Fatalf("expected ErrInvalidPort, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.TLS.CAFile = filepath.Join(t.TempDir(), "missing.pem")
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCABundleInvalid) {
		t.Fatalf("expected ErrTLSCABundleInvalid, got %v", err)
	}
	if _, err := NewTLSDialer(DefaultConfig()).Dial(context.Background(), " ", 5223); !errors.Is(err, ErrHostRequired) {
		t.Fatalf("expected ErrHostRequired, got %v", err)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{}.WithDefaults()
	if cfg.Port != 5223 || cfg.KeepaliveInterval.Seconds() != 150 || cfg.Reconnect.InitialDelay.Seconds() != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TranscriptDir != DefaultTranscriptDir || cfg.MaxAttempts != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

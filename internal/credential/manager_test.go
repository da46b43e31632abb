package credential

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/presencectl/internal/clock"
	"github.com/danmuck/presencectl/internal/cookies"
	"github.com/danmuck/presencectl/internal/testutil/testlog"
)

const testRedirect = "https://playvalorant.com/opt_in#access_token=T&scope=account+openid&iss=https%3A%2F%2Fauth.riotgames.com&id_token=E&token_type=Bearer&session_state=s&expires_in=3600"

type authServer struct {
	server       *httptest.Server
	authorizeHit atomic.Int32
	entitleHit   atomic.Int32
	location     string
	setCookies   []string
	entitlement  string
	lastCookie   atomic.Value
	lastBearer   atomic.Value
	hold         chan struct{}
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	s := &authServer{
		location:    testRedirect,
		setCookies:  []string{"ssid=rotated; Domain=auth.riotgames.com; Path=/; Secure; HttpOnly"},
		entitlement: "ENT",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		s.authorizeHit.Add(1)
		s.lastCookie.Store(r.Header.Get("Cookie"))
		if s.hold != nil {
			<-s.hold
		}
		for _, line := range s.setCookies {
			w.Header().Add("Set-Cookie", line)
		}
		if s.location != "" {
			w.Header().Set("Location", s.location)
			w.WriteHeader(http.StatusSeeOther)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/token/v1", func(w http.ResponseWriter, r *http.Request) {
		s.entitleHit.Add(1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.lastBearer.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entitlements_token":"` + s.entitlement + `"}`))
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *authServer) config() Config {
	cfg := DefaultConfig()
	cfg.AuthorizeURL = s.server.URL + "/authorize"
	cfg.EntitlementURL = s.server.URL + "/api/token/v1"
	return cfg
}

func writeCookieFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write cookies: %v", err)
	}
	return path
}

func TestManagerRenewsAndCachesCredential(t *testing.T) {
	testlog.Start(t)
	srv := newAuthServer(t)
	path := writeCookieFile(t, "ssid=original; clid=uw1")
	clk := clock.Fake(time.Unix(1700000000, 0))

	m, err := NewManager(srv.config(), cookies.NewFileStore(path), WithClock(clk))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()

	token, err := m.Token(ctx)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "T" {
		t.Fatalf("unexpected token: %q", token)
	}
	entitlement, err := m.Entitlement(ctx)
	if err != nil {
		t.Fatalf("entitlement: %v", err)
	}
	if entitlement != "ENT" {
		t.Fatalf("unexpected entitlement: %q", entitlement)
	}
	if got := srv.lastCookie.Load().(string); got != "ssid=original; clid=uw1" {
		t.Fatalf("unexpected cookie header: %q", got)
	}
	if got := srv.lastBearer.Load().(string); got != "Bearer T" {
		t.Fatalf("unexpected bearer: %q", got)
	}

	cred, err := m.Credential(ctx)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.IDToken != "E" {
		t.Fatalf("unexpected id token: %q", cred.IDToken)
	}
	wantExpiry := time.Unix(1700000000, 0).Add(3600*time.Second - 60*time.Second)
	if !cred.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("unexpected expiry: %v want %v", cred.ExpiresAt, wantExpiry)
	}

	clk.Advance(3540*time.Second - time.Second)
	if _, err := m.Token(ctx); err != nil {
		t.Fatalf("token before expiry: %v", err)
	}
	if srv.authorizeHit.Load() != 1 || srv.entitleHit.Load() != 1 {
		t.Fatalf("unexpected request counts authorize=%d entitle=%d", srv.authorizeHit.Load(), srv.entitleHit.Load())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cookies: %v", err)
	}
	if string(data) != "ssid=rotated; clid=uw1" {
		t.Fatalf("unexpected persisted cookies: %q", data)
	}

	clk.Advance(time.Second)
	if _, err := m.Token(ctx); err != nil {
		t.Fatalf("token after expiry: %v", err)
	}
	if srv.authorizeHit.Load() != 2 {
		t.Fatalf("expected renewal at expiry, authorize=%d", srv.authorizeHit.Load())
	}
	if got := srv.lastCookie.Load().(string); got != "ssid=rotated; clid=uw1" {
		t.Fatalf("expected rotated jar on second renewal, got %q", got)
	}
	if st := m.Status(); st.Renewals != 2 || !st.HasCredential || st.CookieCount != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestManagerMergesValidCookiesPastMalformedLine(t *testing.T) {
	testlog.Start(t)
	srv := newAuthServer(t)
	srv.setCookies = []string{
		"ssid=rotated; Domain=auth.riotgames.com",
		"=novalue",
		"clid=uw2; Domain=auth.riotgames.com",
	}
	path := writeCookieFile(t, "ssid=original; clid=uw1")

	m, err := NewManager(srv.config(), cookies.NewFileStore(path), WithClock(clock.Fake(time.Unix(1700000000, 0))))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cookies: %v", err)
	}
	if string(data) != "ssid=rotated; clid=uw2" {
		t.Fatalf("expected both rotated cookies persisted, got %q", data)
	}
}

func TestManagerRenewalExhaustedAfterTenAttempts(t *testing.T) {
	testlog.Start(t)
	srv := newAuthServer(t)
	srv.location = ""
	srv.setCookies = nil
	path := writeCookieFile(t, "ssid=stale\nclid=uw1")
	clk := clock.Fake(time.Unix(1700000000, 0))

	m, err := NewManager(srv.config(), cookies.NewFileStore(path), WithClock(clk))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = m.Token(context.Background())
	if !errors.Is(err, ErrRenewalExhausted) {
		t.Fatalf("expected ErrRenewalExhausted, got %v", err)
	}
	if !errors.Is(err, ErrReauthRedirectMissing) {
		t.Fatalf("expected wrapped ErrReauthRedirectMissing, got %v", err)
	}
	if got := srv.authorizeHit.Load(); got != 10 {
		t.Fatalf("expected 10 reauth attempts, got %d", got)
	}
	if got := srv.entitleHit.Load(); got != 0 {
		t.Fatalf("entitlement exchanged after exhaustion: %d", got)
	}

	want := []time.Duration{0, 1, 2, 3, 4, 5, 5, 5, 5, 5}
	waits := clk.Waits()
	if len(waits) != len(want) {
		t.Fatalf("unexpected wait count: %v", waits)
	}
	for i := range want {
		if waits[i] != want[i]*time.Second {
			t.Fatalf("wait[%d]=%v want %v", i, waits[i], want[i]*time.Second)
		}
	}
	if clk.TotalWait() != 35*time.Second {
		t.Fatalf("unexpected cumulative backoff: %v", clk.TotalWait())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cookies: %v", err)
	}
	if string(data) != "ssid=stale; clid=uw1" {
		t.Fatalf("expected jar rewritten after exhaustion, got %q", data)
	}
	if st := m.Status(); st.HasCredential || st.LastError == "" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestManagerRejectsForeignRedirect(t *testing.T) {
	testlog.Start(t)
	srv := newAuthServer(t)
	srv.location = "https://auth.riotgames.com/login"
	path := writeCookieFile(t, "ssid=stale")
	cfg := srv.config()
	cfg.MaxAttempts = 2
	m, err := NewManager(cfg, cookies.NewFileStore(path), WithClock(clock.Fake(time.Unix(1700000000, 0))))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = m.Token(context.Background())
	if !errors.Is(err, ErrReauthRedirectInvalid) || !errors.Is(err, ErrRenewalExhausted) {
		t.Fatalf("expected invalid redirect exhaustion, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "ssid=stale" {
		t.Fatalf("set-cookie from rejected redirect was merged: %q", data)
	}
}

func TestManagerCookieLoadError(t *testing.T) {
	testlog.Start(t)
	srv := newAuthServer(t)
	m, err := NewManager(srv.config(), cookies.NewFileStore(filepath.Join(t.TempDir(), "absent.txt")))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = m.Token(context.Background())
	if !errors.Is(err, cookies.ErrCookieLoad) {
		t.Fatalf("expected ErrCookieLoad, got %v", err)
	}
	if srv.authorizeHit.Load() != 0 {
		t.Fatalf("reauth attempted without cookies")
	}
}

func TestManagerEntitlementExchangeFailure(t *testing.T) {
	testlog.Start(t)
	srv := newAuthServer(t)
	srv.entitlement = ""
	path := writeCookieFile(t, "ssid=ok")
	m, err := NewManager(srv.config(), cookies.NewFileStore(path), WithClock(clock.Fake(time.Unix(1700000000, 0))))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = m.Token(context.Background())
	if !errors.Is(err, ErrEntitlementExchange) {
		t.Fatalf("expected ErrEntitlementExchange, got %v", err)
	}
	if st := m.Status(); st.HasCredential {
		t.Fatalf("credential committed without entitlement: %+v", st)
	}
}

func TestManagerCoalescesConcurrentRenewals(t *testing.T) {
	testlog.Start(t)
	srv := newAuthServer(t)
	srv.hold = make(chan struct{})
	path := writeCookieFile(t, "ssid=ok")
	m, err := NewManager(srv.config(), cookies.NewFileStore(path))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = m.Token(context.Background())
			} else {
				_, err = m.Entitlement(context.Background())
			}
			errs <- err
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.authorizeHit.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(srv.hold)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("caller error: %v", err)
		}
	}
	if got := srv.authorizeHit.Load(); got != 1 {
		t.Fatalf("expected single reauth, got %d", got)
	}
	if got := srv.entitleHit.Load(); got != 1 {
		t.Fatalf("expected single entitlement exchange, got %d", got)
	}
}

func TestCredentialCallerCancelDoesNotAbortRenewal(t *testing.T) {
	testlog.Start(t)
	srv := newAuthServer(t)
	srv.hold = make(chan struct{})
	path := writeCookieFile(t, "ssid=ok")
	m, err := NewManager(srv.config(), cookies.NewFileStore(path))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Token(ctx)
		done <- err
	}()
	for srv.authorizeHit.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(srv.hold)

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "T" {
		t.Fatalf("unexpected token: %q", token)
	}
	if got := srv.authorizeHit.Load(); got != 1 {
		t.Fatalf("expected shared renewal to complete once, got %d", got)
	}
}

func TestParseRedirect(t *testing.T) {
	testlog.Start(t)
	now := time.Unix(1700000000, 0)
	g, err := parseRedirect(testRedirect, now, time.Minute)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.AccessToken != "T" || g.IDToken != "E" {
		t.Fatalf("unexpected grant: %+v", g)
	}
	if !g.ExpiresAt.Equal(now.Add(59 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", g.ExpiresAt)
	}

	bad := []string{
		"https://playvalorant.com/opt_in#id_token=E&expires_in=3600",
		"https://playvalorant.com/opt_in#access_token=T&expires_in=soon",
		"https://playvalorant.com/opt_in#access_token=T&expires_in=30",
	}
	for _, loc := range bad {
		if _, err := parseRedirect(loc, now, time.Minute); !errors.Is(err, ErrReauthRedirectInvalid) {
			t.Fatalf("parseRedirect(%q) expected ErrReauthRedirectInvalid, got %v", loc, err)
		}
	}
}

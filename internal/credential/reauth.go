package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/presencectl/internal/cookies"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// grant is the token set carried by a successful reauth redirect.
type grant struct {
	AccessToken string
	IDToken     string
	ExpiresAt   time.Time
}

// reauth performs one cookie reauthentication attempt. Set-Cookie values
// are merged into jar only when the redirect is accepted.
func (m *Manager) reauth(ctx context.Context, jar *cookies.Jar) (grant, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, m.cfg.AuthorizeURL, nil)
	if err != nil {
		return grant{}, err
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Cookie", jar.Header(m.clock.Now()))

	resp, err := m.client.Do(req)
	if err != nil {
		return grant{}, fmt.Errorf("credential: reauth request: %w", err)
	}
	defer drainClose(resp.Body)

	log.Debug().
		Int("status", resp.StatusCode).
		Interface("headers", resp.Header).
		Msg("credential.Manager.reauth response")

	location := resp.Header.Get("Location")
	if location == "" {
		return grant{}, fmt.Errorf("%w: status=%d", ErrReauthRedirectMissing, resp.StatusCode)
	}
	if !strings.HasPrefix(location, m.cfg.CallbackPrefix) {
		log.Error().Str("location", location).Msg("credential.Manager.reauth unexpected redirect")
		return grant{}, fmt.Errorf("%w: location=%q", ErrReauthRedirectInvalid, location)
	}

	now := m.clock.Now()
	g, err := parseRedirect(location, now, m.cfg.SafetyMargin)
	if err != nil {
		return grant{}, err
	}

	issued, err := cookies.ParseSetCookie(resp.Header.Values("Set-Cookie"), now)
	if err != nil {
		log.Warn().Err(err).Msg("credential.Manager.reauth ignoring malformed set-cookie")
	}
	jar.Merge(issued)
	return g, nil
}

// parseRedirect reads access_token, id_token and expires_in from the
// callback URL fragment.
func parseRedirect(location string, now time.Time, margin time.Duration) (grant, error) {
	u, err := url.Parse(location)
	if err != nil {
		return grant{}, fmt.Errorf("%w: %w", ErrReauthRedirectInvalid, err)
	}
	params, err := url.ParseQuery(u.EscapedFragment())
	if err != nil {
		return grant{}, fmt.Errorf("%w: fragment: %w", ErrReauthRedirectInvalid, err)
	}
	access := params.Get("access_token")
	if access == "" {
		return grant{}, fmt.Errorf("%w: missing access_token", ErrReauthRedirectInvalid)
	}
	expiresIn, err := strconv.ParseInt(params.Get("expires_in"), 10, 64)
	if err != nil || expiresIn <= 0 {
		return grant{}, fmt.Errorf("%w: expires_in=%q", ErrReauthRedirectInvalid, params.Get("expires_in"))
	}
	expiresAt := now.Add(time.Duration(expiresIn) * time.Second).Add(-margin)
	if !now.Before(expiresAt) {
		return grant{}, fmt.Errorf("%w: expires_in=%d within safety margin", ErrReauthRedirectInvalid, expiresIn)
	}
	return grant{
		AccessToken: access,
		IDToken:     params.Get("id_token"),
		ExpiresAt:   expiresAt,
	}, nil
}

type entitlementResponse struct {
	EntitlementsToken string `json:"entitlements_token"`
}

func (m *Manager) exchangeEntitlement(ctx context.Context, token string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.cfg.EntitlementURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntitlementExchange, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntitlementExchange, err)
	}
	defer drainClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status=%d", ErrEntitlementExchange, resp.StatusCode)
	}

	var body entitlementResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %w", ErrEntitlementExchange, err)
	}
	if body.EntitlementsToken == "" {
		return "", fmt.Errorf("%w: empty entitlements_token", ErrEntitlementExchange)
	}
	return body.EntitlementsToken, nil
}

// tokenExpiry peeks at the exp claim of a JWT without verifying it.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}

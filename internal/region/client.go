package region

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAssignmentURL   = "https://riot-geo.pas.si.riotgames.com/pas/v1/service/chat"
	DefaultPlayerConfigURL = "https://clientconfig.rpg.riotgames.com/api/v1/config/player?app=Riot%20Client"
)

// Config is the player config subset needed to route a chat session.
type Config struct {
	Affinities      map[string]string `json:"chat.affinities"`
	AffinityDomains map[string]string `json:"chat.affinity_domains"`
}

// Client performs the HTTP calls behind region resolution.
type Client struct {
	AssignmentURL   string
	PlayerConfigURL string
	UserAgent       string
	Timeout         time.Duration
	HTTP            *http.Client
}

func NewClient() *Client {
	return &Client{
		AssignmentURL:   DefaultAssignmentURL,
		PlayerConfigURL: DefaultPlayerConfigURL,
		Timeout:         30 * time.Second,
		HTTP:            http.DefaultClient,
	}
}

// FetchAssignment returns the raw region-assignment token for token.
func (c *Client) FetchAssignment(ctx context.Context, token string) (string, error) {
	body, err := c.get(ctx, c.AssignmentURL, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// FetchConfig loads the player config used to map affinities.
func (c *Client) FetchConfig(ctx context.Context, token, entitlement string) (Config, error) {
	body, err := c.get(ctx, c.PlayerConfigURL, map[string]string{
		"Authorization":           "Bearer " + token,
		"X-Riot-Entitlements-JWT": entitlement,
	})
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode player config: %w", ErrFetchFailed, err)
	}
	return cfg, nil
}

func (c *Client) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrFetchFailed, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s status=%d", ErrFetchFailed, url, resp.StatusCode)
	}
	return body, nil
}

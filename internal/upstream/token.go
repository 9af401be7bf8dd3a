package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenSafetyMargin is how long before the advertised expiry a cached token
// is already considered unusable. Upstream clocks drift and a token that
// expires mid-pagination wastes a whole page round trip.
const tokenSafetyMargin = 60 * time.Second

const maxErrorBodyBytes = 32 << 10

// TokenBrokerConfig carries the client-credentials grant parameters.
type TokenBrokerConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	Timeout      time.Duration
}

// TokenBroker owns a single client-credentials token and refreshes it on
// demand. All callers share one cached token; the mutex guarantees at most
// one refresh request is in flight at a time, with concurrent callers
// blocking until it completes and then reusing its result.
type TokenBroker struct {
	cfg        TokenBrokerConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewTokenBroker creates a broker for the given token endpoint.
func NewTokenBroker(cfg TokenBrokerConfig, logger *slog.Logger) *TokenBroker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &TokenBroker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Token returns a bearer token, reusing the cached one while it has more
// than the safety margin left on its lifetime.
func (b *TokenBroker) Token(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != "" && b.expiresAt.Sub(b.now()) > tokenSafetyMargin {
		return b.token, nil
	}

	return b.refreshLocked(ctx)
}

// ForceRefresh discards the cached token and fetches a new one. Callers use
// it after a 401 that suggests the token was revoked before its expiry.
func (b *TokenBroker) ForceRefresh(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.token = ""

	return b.refreshLocked(ctx)
}

// refreshLocked performs the client-credentials POST. Callers must hold mu.
func (b *TokenBroker) refreshLocked(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", b.cfg.ClientID)
	form.Set("client_secret", b.cfg.ClientSecret)
	if b.cfg.Scope != "" {
		form.Set("scope", b.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &AuthError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if grant.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty access_token")
	}
	if grant.ExpiresIn <= 0 {
		return "", fmt.Errorf("token endpoint returned a non-positive expires_in: %d", grant.ExpiresIn)
	}

	b.token = grant.AccessToken
	b.expiresAt = b.now().Add(time.Duration(grant.ExpiresIn) * time.Second)

	b.logger.Debug("Acquired upstream token",
		slog.Time("expires_at", b.expiresAt),
	)

	return b.token, nil
}

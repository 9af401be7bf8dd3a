package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// defaultMaxRecords caps how many records a single paginated fetch may
// accumulate before it is treated as a runaway continuation chain.
const defaultMaxRecords = 1_000_000

// TokenSource supplies bearer tokens for upstream requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// ClientConfig configures the paginated resource client.
type ClientConfig struct {
	// BaseURL is the collection root, e.g. https://api.example.com/odata.
	BaseURL string
	// PageDelay is the pause between successive page fetches. The first
	// page of a fetch is never delayed.
	PageDelay time.Duration
	// MaxRecords overrides the runaway ceiling when positive.
	MaxRecords int
	Timeout    time.Duration
}

// Client fetches complete result sets from the upstream collection,
// following continuation links until exhaustion. Fetches are sequential on
// purpose: continuation links are opaque and each one is only known after
// the previous page arrives.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// Query describes one collection query in upstream terms.
type Query struct {
	Filter  Expr
	Select  []string
	OrderBy string
	Expand  string
	Top     int
	Count   bool
}

func (q Query) encode() string {
	params := url.Values{}
	if q.Filter != nil {
		params.Set("$filter", Render(q.Filter))
	}
	if len(q.Select) > 0 {
		params.Set("$select", strings.Join(q.Select, ","))
	}
	if q.OrderBy != "" {
		params.Set("$orderby", q.OrderBy)
	}
	if q.Expand != "" {
		params.Set("$expand", q.Expand)
	}
	if q.Top > 0 {
		params.Set("$top", strconv.Itoa(q.Top))
	}
	if q.Count {
		params.Set("$count", "true")
	}

	return params.Encode()
}

type envelope struct {
	Count    *int64           `json:"@odata.count"`
	Value    []map[string]any `json:"value"`
	NextLink string           `json:"@odata.nextLink"`
}

// NewClient creates a paginated client over the given token source.
func NewClient(cfg ClientConfig, tokens TokenSource, logger *slog.Logger) *Client {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxRecords
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// FetchAll retrieves every record matching the query, following
// continuation links until the upstream stops providing one. The returned
// count is the upstream's total hint, or -1 when the response never carried
// one. On error the records fetched so far are returned alongside it.
func (c *Client) FetchAll(ctx context.Context, resource string, q Query) ([]map[string]any, int64, error) {
	first, err := url.Parse(strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + resource)
	if err != nil {
		return nil, -1, fmt.Errorf("failed to parse collection url: %w", err)
	}
	first.RawQuery = q.encode()

	// Burst 1 means the first Wait returns immediately and every later
	// page waits out the configured delay.
	limiter := rate.NewLimiter(rate.Every(c.cfg.PageDelay), 1)

	var (
		records []map[string]any
		count   = int64(-1)
		pageURL = first
		pages   int
	)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return records, count, fmt.Errorf("pagination interrupted: %w", err)
		}

		page, err := c.fetchPage(ctx, pageURL.String())
		if err != nil {
			return records, count, err
		}

		records = append(records, page.Value...)
		if page.Count != nil {
			count = *page.Count
		}
		pages++

		if len(records) > c.cfg.MaxRecords {
			return records, count, &RunawayError{Resource: resource, Count: len(records), Limit: c.cfg.MaxRecords}
		}

		if page.NextLink == "" {
			break
		}
		next, err := url.Parse(page.NextLink)
		if err != nil {
			return records, count, fmt.Errorf("failed to parse continuation link %q: %w", page.NextLink, err)
		}
		pageURL = pageURL.ResolveReference(next)
	}

	c.logger.Debug("Fetched upstream collection",
		slog.String("resource", resource),
		slog.Int("records", len(records)),
		slog.Int("pages", pages),
	)

	return records, count, nil
}

// fetchPage retrieves a single page. A 401 triggers exactly one forced
// token refresh and one retry of the same page before the error surfaces.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (*envelope, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	page, err := c.doPage(ctx, pageURL, token)

	var qe *QueryError
	if errors.As(err, &qe) && qe.Status == http.StatusUnauthorized {
		c.logger.Warn("Upstream rejected token, refreshing once",
			slog.String("url", pageURL),
		)

		token, err = c.tokens.ForceRefresh(ctx)
		if err != nil {
			return nil, err
		}

		return c.doPage(ctx, pageURL, token)
	}

	return page, err
}

func (c *Client) doPage(ctx context.Context, pageURL, token string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build page request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &QueryError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var page envelope
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode page response: %w", err)
	}

	return &page, nil
}

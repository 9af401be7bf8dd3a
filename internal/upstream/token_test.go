package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTokenServer(t *testing.T, calls *atomic.Int64, expiresIn int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))

		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":%d}`, n, expiresIn)
	}))
}

func newTestBroker(url string) *TokenBroker {
	return NewTokenBroker(TokenBrokerConfig{
		TokenURL:     url,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
	}, testLogger())
}

func TestTokenBroker_ReusesCachedToken(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := newTokenServer(t, &calls, 3600)
	defer srv.Close()

	broker := newTestBroker(srv.URL)

	first, err := broker.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", first)

	second, err := broker.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenBroker_RefreshesInsideSafetyMargin(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := newTokenServer(t, &calls, 90)
	defer srv.Close()

	broker := newTestBroker(srv.URL)
	now := time.Now()
	broker.now = func() time.Time { return now }

	_, err := broker.Token(context.Background())
	require.NoError(t, err)

	// 59s of lifetime left is inside the 60s margin, so the cached token
	// must not be reused.
	now = now.Add(31 * time.Second)

	token, err := broker.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
	assert.Equal(t, int64(2), calls.Load())
}

func TestTokenBroker_SingleRefreshUnderConcurrency(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"shared","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	broker := newTestBroker(srv.URL)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := broker.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	for _, token := range tokens {
		assert.Equal(t, "shared", token)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenBroker_ForceRefreshDiscardsCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := newTokenServer(t, &calls, 3600)
	defer srv.Close()

	broker := newTestBroker(srv.URL)

	_, err := broker.Token(context.Background())
	require.NoError(t, err)

	forced, err := broker.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", forced)

	cached, err := broker.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, forced, cached)
	assert.Equal(t, int64(2), calls.Load())
}

func TestTokenBroker_SurfacesAuthError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	defer srv.Close()

	broker := newTestBroker(srv.URL)

	_, err := broker.Token(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusForbidden, authErr.Status)
	assert.Contains(t, authErr.Body, "invalid_client")
}

func TestTokenBroker_RejectsMalformedGrant(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	broker := newTestBroker(srv.URL)

	_, err := broker.Token(context.Background())
	assert.ErrorContains(t, err, "empty access_token")
}

package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlito03/rets/internal/api/handler"
	"github.com/carlito03/rets/internal/assets"
	"github.com/carlito03/rets/internal/listing"
	"github.com/carlito03/rets/internal/store"
)

type stubStore struct{}

func (stubStore) QueryByCity(context.Context, store.ListingFilter) ([]listing.Record, string, error) {
	return nil, "", nil
}

func (stubStore) GetByKey(context.Context, string) (*listing.Record, error) {
	return nil, store.ErrNotFound
}

type stubDispatcher struct{}

func (stubDispatcher) StaleJobs([]listing.Record) []assets.ImageBuildJob { return nil }
func (stubDispatcher) EnqueueDetached([]assets.ImageBuildJob)            {}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, records []listing.Record) []assets.Gallery {
	return make([]assets.Gallery, len(records))
}

func testDeps() *handler.Dependencies {
	gin.SetMode(gin.TestMode)

	return &handler.Dependencies{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:      stubStore{},
		Dispatcher: stubDispatcher{},
		Resolver:   stubResolver{},
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		queueUp    bool
		wantStatus int
	}{
		{
			name:       "all dependencies healthy",
			dbErr:      nil,
			queueUp:    true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "database down",
			dbErr:      errors.New("connection refused"),
			queueUp:    true,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "queue down",
			dbErr:      nil,
			queueUp:    false,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			deps.DBHealth = func(context.Context) error { return tt.dbErr }
			deps.QueueHealth = func() bool { return tt.queueUp }

			r := SetupRouter(deps)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAPIKeyGate(t *testing.T) {
	deps := testDeps()
	deps.APIKey = "sekrit"

	r := SetupRouter(deps)

	t.Run("missing key is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/TX-1", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/TX-1", nil)
		req.Header.Set("X-API-Key", "guess")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid key reaches the handler", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/TX-1", nil)
		req.Header.Set("X-API-Key", "sekrit")
		r.ServeHTTP(w, req)

		// The stub store has no rows, so passing the gate means a 404
		// from the handler rather than a 401 from the middleware.
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("health stays open", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestNoKeyConfiguredLeavesRoutesOpen(t *testing.T) {
	r := SetupRouter(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/TX-1", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := SetupRouter(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/listings", nil)
	req.Header.Set("Origin", "https://app.example.com")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

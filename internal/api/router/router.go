package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carlito03/rets/internal/api/handler"
)

const healthCheckTimeout = 2 * time.Second

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint; stays open even when the API key gate is on
	r.GET("/health", healthHandler(deps))

	listingHandler := handler.NewListingHandler(deps)
	ingestHandler := handler.NewIngestHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	if deps.APIKey != "" {
		v1.Use(APIKeyMiddleware(deps.APIKey))
	}
	{
		listings := v1.Group("/listings")
		{
			// GET /api/v1/listings - List cached listings for a city
			listings.GET("", listingHandler.ListListings)

			// GET /api/v1/listings/:listing_key - Get listing details
			listings.GET("/:listing_key", listingHandler.GetListing)
		}

		// POST /api/v1/ingest - Trigger a synchronous ingest pass
		v1.POST("/ingest", ingestHandler.TriggerIngest)
	}

	return r
}

func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "healthy"
		queueStatus := "healthy"
		healthy := true

		if deps.DBHealth != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			defer cancel()

			if err := deps.DBHealth(ctx); err != nil {
				dbStatus = "unhealthy: " + err.Error()
				healthy = false
			}
		}

		if deps.QueueHealth != nil && !deps.QueueHealth() {
			queueStatus = "unhealthy"
			healthy = false
		}

		status := http.StatusOK
		overall := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":   overall,
			"service":  "listings-api-service",
			"database": dbStatus,
			"queue":    queueStatus,
		})
	}
}

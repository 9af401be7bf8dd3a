package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carlito03/rets/internal/api/dto"
	"github.com/carlito03/rets/internal/ingest"
	"github.com/carlito03/rets/internal/upstream"
)

// TriggerIngest handles POST /api/v1/ingest
// Runs one synchronous ingest pass over the requested scope
func (h *IngestHandler) TriggerIngest(c *gin.Context) {
	h.logger.Info("TriggerIngest called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: city is required",
		})
		return
	}

	scope := ingest.Scope{
		City:             req.City,
		Statuses:         req.Statuses,
		PropertyType:     req.PropertyType,
		SpecialCondition: req.SpecialCondition,
	}
	if req.ModifiedSinceHours > 0 {
		scope.ModifiedSince = time.Now().Add(-time.Duration(req.ModifiedSinceHours) * time.Hour)
	}

	result, err := h.ingester.Ingest(c.Request.Context(), scope)
	if err != nil {
		h.logger.Error("Ingest pass failed",
			slog.String("scope", scope.Describe()),
			slog.String("error", err.Error()),
		)

		c.JSON(ingestStatus(err), gin.H{
			"error":   "Ingest failed: " + err.Error(),
			"fetched": result.Fetched,
			"written": result.Written,
			"skipped": result.Skipped,
			"dropped": result.Dropped,
		})
		return
	}

	c.JSON(http.StatusOK, dto.IngestResponse{
		Fetched: result.Fetched,
		Written: result.Written,
		Skipped: result.Skipped,
		Dropped: result.Dropped,
	})
}

// ingestStatus maps an ingest failure to a response code: upstream auth or
// query rejections are a bad gateway, everything else is on us.
func ingestStatus(err error) int {
	var authErr *upstream.AuthError
	var queryErr *upstream.QueryError
	if errors.As(err, &authErr) || errors.As(err, &queryErr) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carlito03/rets/internal/api/dto"
	"github.com/carlito03/rets/internal/assets"
	"github.com/carlito03/rets/internal/listing"
	"github.com/carlito03/rets/internal/store"
)

// ListListings handles GET /api/v1/listings
// Serves one page of cached listings for a city, newest modification first
func (h *ListingHandler) ListListings(c *gin.Context) {
	h.logger.Info("ListListings called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
	)

	// 1. Parse and validate query parameters
	var req dto.ListListingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters: city is required",
		})
		return
	}

	cityNorm := listing.NormalizeCity(req.City)
	if cityNorm == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "city must not be blank",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	// 2. Decode cursor for pagination
	cursor, err := store.DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	// 3. Query one page from the cache
	filter := store.ListingFilter{
		CityNorm:     cityNorm,
		Status:       req.Status,
		PropertyType: req.PropertyType,
		PageSize:     req.PageSize,
		Cursor:       cursor,
	}

	records, nextCursor, err := h.store.QueryByCity(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list listings", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list listings",
		})
		return
	}

	// 4. Decorate with CDN galleries and queue rebuilds for stale rows.
	// The dispatch is detached: this response never waits on the broker.
	galleries := h.resolver.Resolve(c.Request.Context(), records)
	h.dispatcher.EnqueueDetached(h.dispatcher.StaleJobs(records))

	response := make([]dto.ListingDTO, len(records))
	for i, rec := range records {
		response[i] = toListingDTO(&rec, galleries[i])
	}

	c.JSON(http.StatusOK, dto.ListListingsResponse{
		Listings:   response,
		NextCursor: nextCursor,
	})
}

// GetListing handles GET /api/v1/listings/:listing_key
// Retrieves a single cached listing
func (h *ListingHandler) GetListing(c *gin.Context) {
	listingKey := c.Param("listing_key")

	h.logger.Info("GetListing called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("listing_key", listingKey),
	)

	rec, err := h.store.GetByKey(c.Request.Context(), listingKey)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Listing not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get listing", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get listing",
		})
		return
	}

	records := []listing.Record{*rec}
	galleries := h.resolver.Resolve(c.Request.Context(), records)
	h.dispatcher.EnqueueDetached(h.dispatcher.StaleJobs(records))

	c.JSON(http.StatusOK, toListingDTO(rec, galleries[0]))
}

func toListingDTO(rec *listing.Record, images assets.Gallery) dto.ListingDTO {
	galleryURLs := images.GalleryURLs
	if galleryURLs == nil {
		galleryURLs = []string{}
	}

	return dto.ListingDTO{
		ListingKey:      rec.ListingKey,
		City:            rec.City,
		StateOrProvince: rec.StateOrProvince,
		PostalCode:      rec.PostalCode,
		UnparsedAddress: rec.UnparsedAddress,
		Latitude:        rec.Latitude,
		Longitude:       rec.Longitude,

		StandardStatus:  rec.StandardStatus,
		ListPrice:       rec.ListPrice,
		BedroomsTotal:   rec.BedroomsTotal,
		BathroomsTotal:  rec.BathroomsTotal,
		LivingArea:      rec.LivingArea,
		YearBuilt:       rec.YearBuilt,
		PropertyType:    rec.PropertyType,
		PropertySubType: rec.PropertySubType,
		PublicRemarks:   rec.PublicRemarks,
		ListOfficeName:  rec.ListOfficeName,

		SpecialListingConditions: rec.SpecialListingConditions,
		PhotosCount:              rec.PhotosCount,
		ModifiedAt:               time.Unix(rec.ModEpoch, 0).UTC().Format(time.RFC3339),

		Images: dto.ListingImagesDTO{
			PrimaryURL:  images.PrimaryURL,
			GalleryURLs: galleryURLs,
		},
	}
}

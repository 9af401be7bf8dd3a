package imageworker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	defaultJPEGQuality = 85

	// maxSourceBytes caps how much of a source photo is read. Listing feeds
	// occasionally link multi-hundred-megabyte originals by mistake.
	maxSourceBytes = 50 << 20

	downloadTimeout = 60 * time.Second
)

// ImageBuilder downloads a source photo and re-encodes it as a JPEG
// derivative no wider than the requested width.
type ImageBuilder struct {
	httpClient *http.Client
	quality    int
	logger     *slog.Logger
}

// NewImageBuilder creates a builder emitting JPEGs at the given quality.
// Qualities outside 1..100 fall back to the default.
func NewImageBuilder(quality int, logger *slog.Logger) *ImageBuilder {
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}

	return &ImageBuilder{
		httpClient: &http.Client{Timeout: downloadTimeout},
		quality:    quality,
		logger:     logger,
	}
}

// Build fetches srcURL, scales it down to width pixels wide when the source
// is wider, and returns the JPEG bytes. Sources that are already narrow
// enough are re-encoded without upscaling. A 404 or 410 from the photo host
// means the source is gone for good; other failures along the network path
// are worth a retry.
func (b *ImageBuilder) Build(ctx context.Context, srcURL string, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: width %d", ErrMalformedJob, width)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, NewRetryableError(fmt.Errorf("failed to download %s: %w", srcURL, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s returned %d", ErrSourceGone, srcURL, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, NewRetryableError(fmt.Errorf("download of %s returned %d", srcURL, resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, NewRetryableError(fmt.Errorf("failed to read %s: %w", srcURL, err))
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// A corrupt source stays corrupt; requeueing cannot fix it.
		return nil, fmt.Errorf("failed to decode %s: %w", srcURL, err)
	}

	out := scaleToWidth(src, width)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: b.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode derivative: %w", err)
	}

	b.logger.Debug("Built image derivative",
		slog.String("source_format", format),
		slog.Int("source_width", src.Bounds().Dx()),
		slog.Int("width", out.Bounds().Dx()),
		slog.Int("bytes", buf.Len()),
	)

	return buf.Bytes(), nil
}

// scaleToWidth resizes src preserving its aspect ratio. Sources at or below
// the target width pass through untouched.
func scaleToWidth(src image.Image, width int) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() <= width {
		return src
	}

	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	return dst
}

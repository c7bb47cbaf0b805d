package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"
)

// ErrDownload wraps transport failures after download retries are
// exhausted.
var ErrDownload = errors.New("photo download failed")

// ValidationError reports every rule the source photo violated, not
// just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid photo: " + strings.Join(e.Violations, "; ")
}

// Fetcher downloads a photo by its gateway file reference.
type Fetcher interface {
	DownloadFile(ctx context.Context, fileRef string) ([]byte, error)
}

// Options bound what the normalizer accepts and produces.
type Options struct {
	MaxDownloadBytes int64
	MinSidePx        int
	MaxSidePx        int
	MaxAspectRatio   float64
	TargetBytes      int
}

// Image is a normalized photo ready for the sticker pipeline: decoded
// once, bounded to the square limit, re-encoded to the sticker output
// format.
type Image struct {
	Data          []byte
	Width         int
	Height        int
	Format        string
	SizeCompliant bool
}

// Normalizer downloads, validates, and converts user photos.
type Normalizer struct {
	fetch Fetcher
	opts  Options
}

// downloadBackoffs is the fixed retry ladder for transient download
// failures.
var downloadBackoffs = []time.Duration{time.Second, 2 * time.Second}

func NewNormalizer(fetch Fetcher, opts Options) *Normalizer {
	if opts.MinSidePx <= 0 {
		opts.MinSidePx = 128
	}
	if opts.MaxSidePx <= 0 {
		opts.MaxSidePx = 512
	}
	if opts.MaxAspectRatio <= 0 {
		opts.MaxAspectRatio = 3.0
	}
	if opts.TargetBytes <= 0 {
		opts.TargetBytes = 512 * 1024
	}
	return &Normalizer{fetch: fetch, opts: opts}
}

// Normalize downloads the referenced photo, validates it against every
// rule, and returns it resized within the square bound and re-encoded
// to the sticker output format. Validation failures carry the full list
// of violated rules.
func (n *Normalizer) Normalize(ctx context.Context, photoRef string) (*Image, error) {
	data, err := n.download(ctx, photoRef)
	if err != nil {
		return nil, err
	}

	var violations []string
	if n.opts.MaxDownloadBytes > 0 && int64(len(data)) > n.opts.MaxDownloadBytes {
		violations = append(violations, fmt.Sprintf("photo is %d bytes, max %d", len(data), n.opts.MaxDownloadBytes))
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		violations = append(violations, "format must be JPEG or PNG")
		return nil, &ValidationError{Violations: violations}
	}
	if format != "jpeg" && format != "png" {
		violations = append(violations, fmt.Sprintf("format must be JPEG or PNG, got %s", format))
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < n.opts.MinSidePx || h < n.opts.MinSidePx {
		violations = append(violations, fmt.Sprintf("photo is %dx%d, both sides must be at least %d px", w, h, n.opts.MinSidePx))
	}
	if skew := aspectSkew(w, h); skew > n.opts.MaxAspectRatio {
		violations = append(violations, fmt.Sprintf("aspect ratio %.2f exceeds max %.2f", skew, n.opts.MaxAspectRatio))
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	scaled := fitWithin(src, n.opts.MaxSidePx)
	out, compliant, err := encodeToTarget(scaled, n.opts.TargetBytes)
	if err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}

	sb := scaled.Bounds()
	if !compliant {
		slog.Warn("normalized photo above target size",
			"bytes", len(out),
			"target", n.opts.TargetBytes,
		)
	}
	return &Image{
		Data:          out,
		Width:         sb.Dx(),
		Height:        sb.Dy(),
		Format:        outputFormat,
		SizeCompliant: compliant,
	}, nil
}

// download fetches the photo with a bounded fixed-backoff retry ladder.
func (n *Normalizer) download(ctx context.Context, photoRef string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		data, err := n.fetch.DownloadFile(ctx, photoRef)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt >= len(downloadBackoffs) {
			break
		}
		slog.Debug("photo download retry",
			"attempt", attempt+1,
			"error", err,
		)
		select {
		case <-time.After(downloadBackoffs[attempt]):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrDownload, ctx.Err())
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrDownload, lastErr)
}

func aspectSkew(w, h int) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	if w > h {
		return float64(w) / float64(h)
	}
	return float64(h) / float64(w)
}

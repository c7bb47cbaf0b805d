package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"strings"
	"testing"
	"time"
)

type fakeFetcher struct {
	data     []byte
	failures int
	calls    int
}

func (f *fakeFetcher) DownloadFile(ctx context.Context, fileRef string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	if f.data == nil {
		return nil, errors.New("no data")
	}
	return f.data, nil
}

func testImage(t *testing.T, w, h int) image.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(t, w, h)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(t, w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func fastBackoffs(t *testing.T) {
	t.Helper()
	saved := downloadBackoffs
	downloadBackoffs = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { downloadBackoffs = saved })
}

func TestNormalize_JPEGWithinBounds(t *testing.T) {
	fetch := &fakeFetcher{data: encodeJPEG(t, 300, 300)}
	n := NewNormalizer(fetch, Options{})

	img, err := n.Normalize(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if img.Width != 300 || img.Height != 300 {
		t.Errorf("expected 300x300, got %dx%d", img.Width, img.Height)
	}
	if img.Format != "jpeg" {
		t.Errorf("expected jpeg output, got %s", img.Format)
	}
	if !img.SizeCompliant {
		t.Error("expected size compliance for a small image")
	}
}

func TestNormalize_ResizesToFit(t *testing.T) {
	fetch := &fakeFetcher{data: encodePNG(t, 1024, 768)}
	n := NewNormalizer(fetch, Options{MaxSidePx: 512})

	img, err := n.Normalize(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if img.Width != 512 || img.Height != 384 {
		t.Errorf("expected 512x384, got %dx%d", img.Width, img.Height)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	fetch := &fakeFetcher{data: encodePNG(t, 900, 600)}
	n := NewNormalizer(fetch, Options{})

	first, err := n.Normalize(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	again := NewNormalizer(&fakeFetcher{data: first.Data}, Options{})
	second, err := again.Normalize(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	if second.Width != first.Width || second.Height != first.Height {
		t.Errorf("dimensions changed on re-pass: %dx%d -> %dx%d",
			first.Width, first.Height, second.Width, second.Height)
	}
	if second.Format != first.Format {
		t.Errorf("format changed on re-pass: %s -> %s", first.Format, second.Format)
	}
}

func TestNormalize_ReportsAllViolations(t *testing.T) {
	// 2000x100: too short on one side and skewed past any sane ratio.
	fetch := &fakeFetcher{data: encodePNG(t, 2000, 100)}
	n := NewNormalizer(fetch, Options{MinSidePx: 128, MaxAspectRatio: 3.0})

	_, err := n.Normalize(context.Background(), "file-1")
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if len(verr.Violations) != 2 {
		t.Errorf("expected 2 violations, got %v", verr.Violations)
	}
}

func TestNormalize_RejectsUnknownFormat(t *testing.T) {
	fetch := &fakeFetcher{data: []byte("certainly not an image")}
	n := NewNormalizer(fetch, Options{})

	_, err := n.Normalize(context.Background(), "file-1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Error(), "JPEG or PNG") {
		t.Errorf("unexpected violation: %v", verr)
	}
}

func TestNormalize_RejectsOversizeDownload(t *testing.T) {
	data := encodePNG(t, 400, 400)
	fetch := &fakeFetcher{data: data}
	n := NewNormalizer(fetch, Options{MaxDownloadBytes: int64(len(data) - 1)})

	_, err := n.Normalize(context.Background(), "file-1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Error(), "max") {
		t.Errorf("unexpected violation: %v", verr)
	}
}

func TestNormalize_RetriesTransientDownload(t *testing.T) {
	fastBackoffs(t)
	fetch := &fakeFetcher{data: encodeJPEG(t, 300, 300), failures: 2}
	n := NewNormalizer(fetch, Options{})

	_, err := n.Normalize(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if fetch.calls != 3 {
		t.Errorf("expected 3 download attempts, got %d", fetch.calls)
	}
}

func TestNormalize_DownloadExhaustion(t *testing.T) {
	fastBackoffs(t)
	fetch := &fakeFetcher{failures: 100}
	n := NewNormalizer(fetch, Options{})

	_, err := n.Normalize(context.Background(), "file-1")
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("expected ErrDownload, got %v", err)
	}
	if fetch.calls != len(downloadBackoffs)+1 {
		t.Errorf("expected %d attempts, got %d", len(downloadBackoffs)+1, fetch.calls)
	}
}

func TestEncodeToTarget_BestEffortWhenOverCeiling(t *testing.T) {
	// Random noise compresses poorly; a tiny ceiling cannot be met.
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255})
		}
	}

	data, compliant, err := encodeToTarget(img, 64)
	if err != nil {
		t.Fatalf("encodeToTarget failed: %v", err)
	}
	if compliant {
		t.Error("expected non-compliant result for a 64-byte ceiling")
	}
	if len(data) == 0 {
		t.Error("expected best attempt bytes even over ceiling")
	}
}

func TestFitWithin_NoUpscale(t *testing.T) {
	src := testImage(t, 200, 100)
	out := fitWithin(src, 512)
	if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 100 {
		t.Errorf("small images must not be upscaled, got %v", out.Bounds())
	}
}

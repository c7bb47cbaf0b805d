package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strconv"

	"github.com/user/stickersmith/internal/types"
)

// Synthesizer produces the deterministic, non-AI sticker used when the
// synthesis job client is unavailable or has failed for a template. It
// must never fail the pipeline: on any internal error it returns the
// normalized bytes unchanged.
type Synthesizer struct {
	quality int
}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{quality: 85}
}

// Synthesize re-encodes the normalized user image to the sticker output
// format, framed with a border whose color derives deterministically
// from the template id. Identical inputs yield identical bytes.
func (s *Synthesizer) Synthesize(tpl *types.Template, img *Image) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img.Data, nil
	}

	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)

	frame := colorFromSeed(deterministicSeed(string(tpl.ID)), 0)
	t := max(4, b.Dx()/32)
	w, h := b.Dx(), b.Dy()
	edges := []image.Rectangle{
		image.Rect(0, 0, w, t),
		image.Rect(0, h-t, w, h),
		image.Rect(0, 0, t, h),
		image.Rect(w-t, 0, w, h),
	}
	for _, edge := range edges {
		draw.Draw(out, edge, &image.Uniform{frame}, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: s.quality}); err != nil {
		return img.Data, nil
	}
	return buf.Bytes(), nil
}

// deterministicSeed hashes its parts into a short stable hex seed.
func deterministicSeed(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v|", part)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// colorFromSeed derives an opaque RGB color from a hex seed. Shift
// selects a different window into the seed so one seed can yield
// several related colors.
func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

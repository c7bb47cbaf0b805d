package imaging

import (
	"bytes"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// outputFormat is the sticker output format produced by the pipeline.
// JPEG keeps a usable quality ladder; inputs are accepted as JPEG or PNG.
const outputFormat = "jpeg"

// qualityLadder is walked top-down until the encoded size fits the
// target ceiling.
var qualityLadder = []int{90, 80, 70, 60, 50}

// fitWithin scales src to fit inside a maxSide square, preserving
// aspect ratio. Images already inside the bound are returned as-is.
func fitWithin(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}

	scale := float64(maxSide) / float64(max(w, h))
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// encodeToTarget encodes src at progressively lower quality until the
// byte size is under targetBytes or the ladder is exhausted. The best
// (smallest) attempt is returned either way; the bool reports target
// compliance.
func encodeToTarget(src image.Image, targetBytes int) ([]byte, bool, error) {
	var best []byte
	for _, q := range qualityLadder {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: q}); err != nil {
			return nil, false, err
		}
		data := buf.Bytes()
		if len(data) <= targetBytes {
			return data, true, nil
		}
		if best == nil || len(data) < len(best) {
			best = data
		}
	}
	return best, false, nil
}

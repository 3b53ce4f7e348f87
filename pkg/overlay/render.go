package overlay

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/png"
	"math"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"
	"letterbox/pkg/domain"
)

// MaxDimension bounds either side of a rendered overlay.
const MaxDimension = 4096

// NewRand returns a generator seeded from key, so one letter always gets the
// same jitter.
func NewRand(key string) *rand.Rand {
	sum := blake2b.Sum256([]byte(key))
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(sum[0:8]), binary.LittleEndian.Uint64(sum[8:16])))
}

// Size returns the smallest canvas that holds every drawable stroke, capped
// at MaxDimension. It is 0x0 when nothing is drawable.
func Size(strokes []domain.Stroke) (width, height int) {
	maxX, maxY := 0.0, 0.0
	found := false
	for _, s := range strokes {
		if !s.Type.Drawable() || !finite(s.X, s.Y, s.Size) {
			continue
		}
		found = true
		reach := math.Abs(s.Size)*1.2 + 2
		maxX = math.Max(maxX, s.X+reach)
		maxY = math.Max(maxY, s.Y+reach)
	}
	if !found {
		return 0, 0
	}
	return clampDim(maxX), clampDim(maxY)
}

func clampDim(v float64) int {
	n := int(math.Ceil(v))
	if n < 1 {
		return 1
	}
	if n > MaxDimension {
		return MaxDimension
	}
	return n
}

// RenderPNG draws strokes onto a width x height transparent canvas and
// encodes it as PNG. seed keys the jitter generator. A zero-sized canvas
// returns nil without error.
func RenderPNG(strokes []domain.Stroke, width, height int, seed string) ([]byte, error) {
	img := Rasterize(Plan(strokes, NewRand(seed)), width, height)
	if img == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderLetter renders a letter's strokes on a canvas sized to fit them,
// seeded by the letter id. It returns nil when nothing is drawable.
func RenderLetter(l domain.Letter) ([]byte, error) {
	w, h := Size(l.BrushStrokes)
	return RenderPNG(l.BrushStrokes, w, h, l.ID)
}

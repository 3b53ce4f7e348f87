package overlay

import (
	"image/color"
	"math/rand/v2"

	"letterbox/pkg/domain"
)

type Shape int

const (
	ShapePolyline Shape = iota + 1
	ShapeDisc
	ShapeRing
)

type Point struct {
	X, Y float64
}

// Op is one drawing primitive. Polylines use Points and Width; discs and
// rings use Center and Radius, rings also Width. Alpha multiplies the color's
// own alpha.
type Op struct {
	Shape  Shape
	Points []Point
	Center Point
	Radius float64
	Width  float64
	Color  color.NRGBA
	Alpha  float64
}

// Plan turns strokes into primitives in paint order. rng supplies the
// per-sample alpha jitter of fingerprint and lip prints.
func Plan(strokes []domain.Stroke, rng *rand.Rand) []Op {
	var ops []Op
	for _, g := range Group(strokes) {
		switch g.Type {
		case domain.StrokeFingerprint:
			ops = appendFingerprint(ops, g.Strokes, rng)
		case domain.StrokeLip:
			ops = appendLip(ops, g.Strokes, rng)
		default:
			ops = appendBrush(ops, g.Strokes)
		}
	}
	return ops
}

func appendBrush(ops []Op, strokes []domain.Stroke) []Op {
	first := strokes[0]
	pts := make([]Point, 0, len(strokes))
	for _, s := range strokes {
		pts = append(pts, Point{s.X, s.Y})
	}
	return append(ops, Op{
		Shape:  ShapePolyline,
		Points: pts,
		Width:  first.Size,
		Color:  ParseColor(first.Color),
		Alpha:  1,
	})
}

func appendFingerprint(ops []Op, strokes []domain.Stroke, rng *rand.Rand) []Op {
	for _, s := range strokes {
		a := 0.6 + rng.Float64()*0.3
		c := ParseColor(s.Color)
		center := Point{s.X, s.Y}
		r := s.Size * 0.6
		ops = append(ops,
			Op{Shape: ShapeDisc, Center: center, Radius: r, Color: c, Alpha: a},
			Op{Shape: ShapeRing, Center: center, Radius: r, Width: 1, Color: c, Alpha: a * 0.5},
		)
	}
	return ops
}

func appendLip(ops []Op, strokes []domain.Stroke, rng *rand.Rand) []Op {
	for _, s := range strokes {
		a := 0.5 + rng.Float64()*0.4
		c := ParseColor(s.Color)
		center := Point{s.X, s.Y}
		ops = append(ops, Op{Shape: ShapeDisc, Center: center, Radius: s.Size * 0.8, Color: c, Alpha: a})
		for layer := 1; layer <= 2; layer++ {
			ops = append(ops, Op{
				Shape:  ShapeDisc,
				Center: center,
				Radius: s.Size * (0.8 + 0.2*float64(layer)),
				Color:  c,
				Alpha:  a * 0.3 / float64(layer),
			})
		}
		ops = append(ops, Op{
			Shape:  ShapeDisc,
			Center: Point{s.X - s.Size*0.2, s.Y - s.Size*0.2},
			Radius: s.Size * 0.3,
			Color:  c,
			Alpha:  a * 0.8,
		})
	}
	return ops
}

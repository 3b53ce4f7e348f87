package overlay

import (
	"image"
	"image/color"
	"math"
)

// Rasterize paints ops onto a transparent canvas. A canvas with a zero or
// negative side cannot be drawn and yields nil.
func Rasterize(ops []Op, width, height int) *image.RGBA {
	if width <= 0 || height <= 0 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for _, op := range ops {
		switch op.Shape {
		case ShapeDisc:
			fillCircle(img, op.Center, op.Color, op.Alpha, func(d float64) float64 {
				return op.Radius + 0.5 - d
			}, op.Radius+1)
		case ShapeRing:
			hw := lineWidth(op.Width) / 2
			fillCircle(img, op.Center, op.Color, op.Alpha, func(d float64) float64 {
				return hw + 0.5 - math.Abs(d-op.Radius)
			}, op.Radius+hw+1)
		case ShapePolyline:
			strokePolyline(img, op)
		}
	}
	return img
}

// canvas ignores non-positive widths and keeps its default of 1
func lineWidth(w float64) float64 {
	if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return 1
	}
	return w
}

func clamp01(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return v
}

// clipRect returns the pixel rectangle covering [x0,x1]x[y0,y1] inside b.
func clipRect(b image.Rectangle, x0, y0, x1, y1 float64) image.Rectangle {
	r := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1))+1, int(math.Ceil(y1))+1)
	return r.Intersect(b)
}

func fillCircle(img *image.RGBA, c Point, col color.NRGBA, alpha float64, coverage func(d float64) float64, extent float64) {
	if !finite(c.X, c.Y, extent) {
		return
	}
	r := clipRect(img.Bounds(), c.X-extent, c.Y-extent, c.X+extent, c.Y+extent)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			d := math.Hypot(float64(x)+0.5-c.X, float64(y)+0.5-c.Y)
			blend(img, x, y, col, alpha*clamp01(coverage(d)))
		}
	}
}

// strokePolyline draws a round-capped, round-joined path. Coverage is the max
// over segments so overlapping segments of one path do not darken.
func strokePolyline(img *image.RGBA, op Op) {
	if len(op.Points) == 0 {
		return
	}
	hw := lineWidth(op.Width) / 2
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range op.Points {
		if !finite(p.X, p.Y) {
			return
		}
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	box := clipRect(img.Bounds(), minX-hw-1, minY-hw-1, maxX+hw+1, maxY+hw+1)
	if box.Empty() {
		return
	}
	mask := make([]float64, box.Dx()*box.Dy())
	segment := func(a, b Point) {
		r := clipRect(box, math.Min(a.X, b.X)-hw-1, math.Min(a.Y, b.Y)-hw-1, math.Max(a.X, b.X)+hw+1, math.Max(a.Y, b.Y)+hw+1)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				d := distToSegment(Point{float64(x) + 0.5, float64(y) + 0.5}, a, b)
				cov := clamp01(hw + 0.5 - d)
				i := (y-box.Min.Y)*box.Dx() + (x - box.Min.X)
				if cov > mask[i] {
					mask[i] = cov
				}
			}
		}
	}
	if len(op.Points) == 1 {
		segment(op.Points[0], op.Points[0])
	}
	for i := 1; i < len(op.Points); i++ {
		segment(op.Points[i-1], op.Points[i])
	}
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			blend(img, x, y, op.Color, op.Alpha*mask[(y-box.Min.Y)*box.Dx()+(x-box.Min.X)])
		}
	}
}

func distToSegment(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// blend composites col at coverage a over the premultiplied pixel (source-over).
func blend(img *image.RGBA, x, y int, col color.NRGBA, a float64) {
	sa := clamp01(a) * float64(col.A) / 0xff
	if sa == 0 {
		return
	}
	i := img.PixOffset(x, y)
	p := img.Pix[i : i+4 : i+4]
	inv := 1 - sa
	p[0] = uint8(math.Round(float64(col.R)*sa + float64(p[0])*inv))
	p[1] = uint8(math.Round(float64(col.G)*sa + float64(p[1])*inv))
	p[2] = uint8(math.Round(float64(col.B)*sa + float64(p[2])*inv))
	p[3] = uint8(math.Round(0xff*sa + float64(p[3])*inv))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

package compose

import (
	"math"
	"math/rand/v2"

	"letterbox/pkg/domain"
)

// Fingerprint stamps a thumbprint centred on (x, y): an oval of ridges, a
// whorl around the centre and scattered texture dots. All points share
// strokeID.
func Fingerprint(x, y, size float64, color, strokeID string, ts int64, rng *rand.Rand) []domain.Stroke {
	const (
		ovalPoints  = 100
		ridgeCount  = 8
		whorlPoints = 30
		dots        = 40
	)
	width, height := size*6, size*4
	out := make([]domain.Stroke, 0, ovalPoints*ridgeCount+whorlPoints+dots)
	point := func(px, py, s float64) domain.Stroke {
		return domain.Stroke{
			X: px, Y: py, Size: s, Color: color,
			Type: domain.StrokeFingerprint, Timestamp: ts, StrokeID: strokeID,
		}
	}

	for i := 0; i < ovalPoints; i++ {
		angle := float64(i) / ovalPoints * 2 * math.Pi
		ox := x + width*math.Cos(angle)
		oy := y + height*math.Sin(angle)
		for ridge := 0; ridge < ridgeCount; ridge++ {
			offset := float64(ridge-ridgeCount/2) * size * 0.3
			ridgeAngle := angle + math.Sin(angle*3)*0.1
			rx := ox + math.Cos(ridgeAngle+math.Pi/2)*offset
			ry := oy + math.Sin(ridgeAngle+math.Pi/2)*offset
			out = append(out, point(rx, ry, size*0.6*(0.8+rng.Float64()*0.4)))
		}
	}

	for i := 0; i < whorlPoints; i++ {
		angle := float64(i) / whorlPoints * 2 * math.Pi
		r := size*1.2 + math.Sin(angle*5)*size*0.4
		out = append(out, point(x+math.Cos(angle)*r, y+math.Sin(angle)*r, size*0.7+rng.Float64()*size*0.3))
	}

	for i := 0; i < dots; i++ {
		angle := rng.Float64() * 2 * math.Pi
		r := rng.Float64() * width * 0.6
		out = append(out, point(x+math.Cos(angle)*r, y+math.Sin(angle)*r*0.7, size*0.3+rng.Float64()*size*0.4))
	}
	return out
}

// LipPrint stamps a kiss centred on (x, y): upper and lower lip contours,
// inner texture, highlights and smudges.
func LipPrint(x, y, size float64, color, strokeID string, ts int64, rng *rand.Rand) []domain.Stroke {
	const (
		halfPoints = 60
		highlights = 25
		texture    = 60
		smudges    = 20
	)
	width, height := size*7, size*4
	out := make([]domain.Stroke, 0, (halfPoints+1)*11+texture+highlights+smudges)
	point := func(px, py, s float64) domain.Stroke {
		return domain.Stroke{
			X: px, Y: py, Size: s, Color: color,
			Type: domain.StrokeLip, Timestamp: ts, StrokeID: strokeID,
		}
	}

	// upper lip, cupid's bow
	for i := 0; i <= halfPoints; i++ {
		angle := float64(i) / halfPoints * math.Pi
		bow := math.Sin(angle*2) * 0.5
		kiss := math.Sin(angle*3) * 0.2
		lx := x + width*math.Cos(angle)*(1-bow+kiss)
		ly := y - height*math.Sin(angle)*(1-bow)*1.2
		const thickness = 5
		for j := 0; j < thickness; j++ {
			offset := (float64(j) - thickness/2.0) * size * 0.12
			out = append(out, point(lx+offset, ly, size*(1.4-float64(j)*0.08)*(0.9+rng.Float64()*0.2)))
		}
	}

	// lower lip
	for i := 0; i <= halfPoints; i++ {
		angle := float64(i) / halfPoints * math.Pi
		fullness := math.Sin(angle) * 0.6
		kiss := math.Cos(angle*2) * 0.1
		lx := x + width*math.Cos(angle)*(1-fullness+kiss)
		ly := y + height*math.Sin(angle)*(1-fullness)*2.2
		const thickness = 6
		for j := 0; j < thickness; j++ {
			offset := (float64(j) - thickness/2.0) * size * 0.1
			out = append(out, point(lx+offset, ly, size*(1.8-float64(j)*0.06)*(0.95+rng.Float64()*0.1)))
		}
	}

	for i := 0; i < texture; i++ {
		angle := float64(i) / texture * 2 * math.Pi
		r := (0.3 + math.Sin(angle*5)*0.12) * width
		out = append(out, point(x+math.Cos(angle)*r, y+math.Sin(angle)*r*0.8, size*0.8+rng.Float64()*size*0.3))
	}

	for i := 0; i < highlights; i++ {
		angle := float64(i) / highlights * 2 * math.Pi
		r := (0.2 + math.Sin(angle*4)*0.06) * width
		out = append(out, point(x+math.Cos(angle)*r, y+math.Sin(angle)*r*0.6, size*(1+rng.Float64()*0.3)))
	}

	for i := 0; i < smudges; i++ {
		angle := rng.Float64() * 2 * math.Pi
		r := rng.Float64() * width * 0.7
		out = append(out, point(x+math.Cos(angle)*r, y+math.Sin(angle)*r*0.9, size*(0.4+rng.Float64()*0.5)))
	}
	return out
}

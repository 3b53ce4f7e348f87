package overlay

import "letterbox/pkg/domain"

const defaultStrokeID = "default"

// StrokeGroup is the run of samples drawn as one mark.
type StrokeGroup struct {
	Type     domain.StrokeType
	StrokeID string
	Strokes  []domain.Stroke
}

// Group partitions drawable strokes by (type, stroke id). Groups keep the
// order in which their first sample appears; samples keep input order.
// Text and unknown types are dropped.
func Group(strokes []domain.Stroke) []StrokeGroup {
	type key struct {
		typ domain.StrokeType
		id  string
	}
	index := make(map[key]int)
	var groups []StrokeGroup
	for _, s := range strokes {
		if !s.Type.Drawable() {
			continue
		}
		id := s.StrokeID
		if id == "" {
			id = defaultStrokeID
		}
		k := key{s.Type, id}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, StrokeGroup{Type: s.Type, StrokeID: id})
		}
		groups[i].Strokes = append(groups[i].Strokes, s)
	}
	return groups
}

// HasDrawable reports whether any stroke would produce pixels.
func HasDrawable(strokes []domain.Stroke) bool {
	for _, s := range strokes {
		if s.Type.Drawable() {
			return true
		}
	}
	return false
}

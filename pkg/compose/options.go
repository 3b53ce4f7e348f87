package compose

import "letterbox/pkg/letterclient"

// Preset is a named delivery delay offered by the composer.
type Preset struct {
	Label string
	Days  letterclient.DelayDays
}

// DeliveryPresets are listed shortest first. The sub-hour values are rounded
// day fractions, so "15 Seconds" is really about six minutes.
var DeliveryPresets = []Preset{
	{Label: "15 Seconds", Days: 0.0042},
	{Label: "30 Minutes", Days: 0.0208},
	{Label: "1 Hour", Days: 0.0417},
	{Label: "12 Hours", Days: 0.5},
	{Label: "1 Day", Days: 1},
	{Label: "2 Days", Days: 2},
	{Label: "3 Days", Days: 3},
	{Label: "1 Week", Days: 7},
	{Label: "2 Weeks", Days: 14},
}

// PresetByLabel looks a preset up by its label.
func PresetByLabel(label string) (Preset, bool) {
	for _, p := range DeliveryPresets {
		if p.Label == label {
			return p, true
		}
	}
	return Preset{}, false
}

var (
	StampDesigns     = []string{"classic", "nature", "modern", "vintage", "floral", "geometric", "custom"}
	EnvelopeDesigns  = []string{"standard", "elegant", "casual", "premium"}
	HandwritingFonts = []string{"cursive", "handwriting", "calligraphy", "casual"}
	PaperTextures    = []string{"smooth", "textured", "linen", "kraft", "vellum", "embossed"}
	EnvelopeTextures = []string{"smooth", "textured", "patterned", "leather", "metallic"}
	PaperTypes       = []string{"standard", "premium", "parchment", "cotton"}
	FoldStyles       = []string{"classic", "accordion", "triangular", "origami"}
	BrushSizes       = []float64{1, 2, 3, 5, 8, 12, 16, 20}
	LipstickColors   = []string{"#DC143C", "#B22222", "#FF6B6B", "#8B0000", "#DEB887", "#FF1493", "#800020", "#FF4500"}
)

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

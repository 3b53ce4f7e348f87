package domain

import "time"

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
)

type StrokeType string

const (
	StrokeBrush       StrokeType = "brush"
	StrokeFingerprint StrokeType = "fingerprint"
	StrokeLip         StrokeType = "lip"
	StrokeText        StrokeType = "text"
)

// Drawable reports whether strokes of this type produce pixels.
func (t StrokeType) Drawable() bool {
	switch t {
	case StrokeBrush, StrokeFingerprint, StrokeLip:
		return true
	default:
		return false
	}
}

// Readiness is the derived delivery state of a letter.
type Readiness string

const (
	NotReady      Readiness = "not-ready"
	ReadyUnopened Readiness = "ready-unopened"
	ReadyOpened   Readiness = "ready-opened"
)

type User struct {
	ID              string    `json:"id"`
	Pincode         string    `json:"pincode"`
	CreatedAt       time.Time `json:"createdAt"`
	SentLetters     []Letter  `json:"sentLetters"`
	ReceivedLetters []Letter  `json:"receivedLetters"`
}

// LetterStyle holds the presentation choices made while composing.
type LetterStyle struct {
	LetterColor     string `json:"letterColor"`
	EnvelopeColor   string `json:"envelopeColor"`
	StampColor      string `json:"stampColor"`
	StampDesign     string `json:"stampDesign"`
	EnvelopeDesign  string `json:"envelopeDesign"`
	HandwritingFont string `json:"handwritingFont"`
	InkColor        string `json:"inkColor"`
	PaperTexture    string `json:"paperTexture"`
	PaperType       string `json:"paperType"`
	FoldStyle       string `json:"foldStyle"`
	EnvelopeTexture string `json:"envelopeTexture"`
	CustomStamp     string `json:"customStamp,omitempty"`
}

// DefaultLetterStyle returns the style applied to fields a sender leaves empty.
func DefaultLetterStyle() LetterStyle {
	return LetterStyle{
		LetterColor:     "#FEFEFE",
		EnvelopeColor:   "#8B4513",
		StampColor:      "#D97706",
		StampDesign:     "classic",
		EnvelopeDesign:  "standard",
		HandwritingFont: "cursive",
		InkColor:        "#2D3748",
		PaperTexture:    "smooth",
		PaperType:       "standard",
		FoldStyle:       "classic",
		EnvelopeTexture: "smooth",
	}
}

// WithDefaults fills every empty field from DefaultLetterStyle.
func (s LetterStyle) WithDefaults() LetterStyle {
	d := DefaultLetterStyle()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.LetterColor, d.LetterColor)
	fill(&s.EnvelopeColor, d.EnvelopeColor)
	fill(&s.StampColor, d.StampColor)
	fill(&s.StampDesign, d.StampDesign)
	fill(&s.EnvelopeDesign, d.EnvelopeDesign)
	fill(&s.HandwritingFont, d.HandwritingFont)
	fill(&s.InkColor, d.InkColor)
	fill(&s.PaperTexture, d.PaperTexture)
	fill(&s.PaperType, d.PaperType)
	fill(&s.FoldStyle, d.FoldStyle)
	fill(&s.EnvelopeTexture, d.EnvelopeTexture)
	return s
}

// Stroke is one sample point of a freehand overlay.
type Stroke struct {
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Size        float64    `json:"size"`
	Color       string     `json:"color"`
	Type        StrokeType `json:"type"`
	ID          string     `json:"id,omitempty"`
	Timestamp   int64      `json:"timestamp,omitempty"`
	StrokeID    string     `json:"strokeId,omitempty"`
	IsNewStroke bool       `json:"isNewStroke,omitempty"`
}

type Delivery struct {
	ID          string         `json:"id"`
	LetterID    string         `json:"letterId"`
	Status      DeliveryStatus `json:"status"`
	DeliveredAt *time.Time     `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type Letter struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	SenderID        string    `json:"senderId"`
	ReceiverID      string    `json:"receiverId"`
	ReceiverAddress string    `json:"receiverAddress"`
	DeliveryTime    time.Time `json:"deliveryTime"`
	IsDelivered     bool      `json:"isDelivered"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	LetterStyle
	BrushStrokes []Stroke  `json:"brushStrokes"`
	Sender       *User     `json:"sender,omitempty"`
	Receiver     *User     `json:"receiver,omitempty"`
	Delivery     *Delivery `json:"delivery,omitempty"`
}

// Ready reports whether the letter may be opened at now.
func (l Letter) Ready(now time.Time) bool {
	return !now.Before(l.DeliveryTime)
}

// Readiness derives the letter state at now. Only the opened flag is stored;
// the not-ready to ready edge is never written.
func (l Letter) Readiness(now time.Time) Readiness {
	if !l.Ready(now) {
		return NotReady
	}
	if l.IsDelivered {
		return ReadyOpened
	}
	return ReadyUnopened
}

// Remaining returns the wait until delivery, or zero once ready.
func (l Letter) Remaining(now time.Time) time.Duration {
	if l.Ready(now) {
		return 0
	}
	return l.DeliveryTime.Sub(now)
}

type Sticker struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Scale    float64 `json:"scale"`
}

type Decoration struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

// Postbox is a user's mailbox customization.
type Postbox struct {
	Pincode     string       `json:"pincode"`
	Color       string       `json:"color"`
	Pattern     string       `json:"pattern"`
	Glow        bool         `json:"glow"`
	Stickers    []Sticker    `json:"stickers"`
	Decorations []Decoration `json:"decorations"`
	UpdatedAt   time.Time    `json:"updatedAt,omitempty"`
}

// DefaultPostbox returns the customization shown before a user saves one.
func DefaultPostbox(pincode string) Postbox {
	return Postbox{
		Pincode:     pincode,
		Color:       "#dc2626",
		Pattern:     "solid",
		Stickers:    []Sticker{},
		Decorations: []Decoration{},
	}
}

// Package compose holds the letter composer as an explicit state machine:
// stage navigation, drawing tools, stroke history and request assembly.
package compose

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"letterbox/pkg/domain"
	"letterbox/pkg/letterclient"
)

type Stage int

const (
	StageWrite Stage = iota + 1
	StageFold
	StageEnvelope
	StageStamp
	StagePost
)

func (s Stage) String() string {
	switch s {
	case StageWrite:
		return "write"
	case StageFold:
		return "fold"
	case StageEnvelope:
		return "envelope"
	case StageStamp:
		return "stamp"
	case StagePost:
		return "post"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type Tool string

const (
	ToolText        Tool = "text"
	ToolBrush       Tool = "brush"
	ToolFingerprint Tool = "fingerprint"
	ToolLip         Tool = "lip"
)

func (t Tool) drawing() bool {
	return t == ToolBrush || t == ToolFingerprint || t == ToolLip
}

const (
	// MaxFold is the fold count after which the letter goes into the envelope.
	MaxFold = 2
	// MaxHistory bounds the undo snapshots kept, counting the empty canvas.
	MaxHistory = 50

	defaultBrushSize  = 3
	defaultBrushColor = "#2D3748"
)

var (
	ErrTitleContentRequired = errors.New("title and content are required")
	ErrReceiverRequired     = errors.New("receiver pincode is required")
	ErrAddressRequired      = errors.New("receiver address is required")
	ErrSenderRequired       = errors.New("sender pincode is required")
	ErrFirstStage           = errors.New("already at the first stage")
	ErrLastStage            = errors.New("already at the last stage")
	ErrNotFolding           = errors.New("letter can only be folded in the fold stage")
	ErrNotDrawingTool       = errors.New("selected tool does not draw")
	ErrNoStroke             = errors.New("no stroke in progress")
	ErrInvalidOption        = errors.New("invalid option")
	ErrInvalidDelay         = errors.New("invalid delivery delay")
)

// Draft is one letter being composed. It is not safe for concurrent use.
type Draft struct {
	Title           string
	Content         string
	ReceiverPincode string
	ReceiverAddress string
	Style           domain.LetterStyle

	stage      Stage
	fold       int
	delay      letterclient.DelayDays
	tool       Tool
	brushSize  float64
	brushColor string

	strokes  []domain.Stroke
	history  [][]domain.Stroke
	index    int
	drawing  bool
	strokeID string

	rng *rand.Rand
	now func() time.Time
}

type Option func(*Draft)

// WithRand fixes the randomness used by print patterns.
func WithRand(rng *rand.Rand) Option {
	return func(d *Draft) {
		if rng != nil {
			d.rng = rng
		}
	}
}

// WithClock replaces time.Now for stroke timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Draft) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDraft starts at the write stage with the text tool and a one day delay.
func NewDraft(opts ...Option) *Draft {
	d := &Draft{
		Style:      domain.DefaultLetterStyle(),
		stage:      StageWrite,
		delay:      1,
		tool:       ToolText,
		brushSize:  defaultBrushSize,
		brushColor: defaultBrushColor,
		history:    [][]domain.Stroke{{}},
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Draft) Stage() Stage { return d.stage }

func (d *Draft) FoldStage() int { return d.fold }

func (d *Draft) Delay() letterclient.DelayDays { return d.delay }

func (d *Draft) Tool() Tool { return d.tool }

func (d *Draft) BrushSize() float64 { return d.brushSize }

func (d *Draft) BrushColor() string { return d.brushColor }

// Next advances one stage. Every stage needs a title and content; moving
// to post also needs the receiver pincode.
func (d *Draft) Next() error {
	if d.stage >= StagePost {
		return ErrLastStage
	}
	if err := d.checkWritten(); err != nil {
		return err
	}
	if d.stage == StageStamp && strings.TrimSpace(d.ReceiverPincode) == "" {
		return ErrReceiverRequired
	}
	if d.stage == StageFold {
		d.fold = MaxFold
	}
	d.stage++
	return nil
}

// Back returns to the previous stage. Folds are kept.
func (d *Draft) Back() error {
	if d.stage <= StageWrite {
		return ErrFirstStage
	}
	d.stage--
	return nil
}

// Fold applies one fold. The second fold moves the letter to the envelope
// stage.
func (d *Draft) Fold() error {
	if d.stage != StageFold {
		return ErrNotFolding
	}
	d.fold++
	if d.fold >= MaxFold {
		d.fold = MaxFold
		d.stage = StageEnvelope
	}
	return nil
}

func (d *Draft) SetTool(t Tool) error {
	if t != ToolText && !t.drawing() {
		return fmt.Errorf("%w: tool %q", ErrInvalidOption, t)
	}
	d.endStroke()
	d.tool = t
	return nil
}

func (d *Draft) SetBrushSize(size float64) error {
	if !contains(BrushSizes, size) {
		return fmt.Errorf("%w: brush size %v", ErrInvalidOption, size)
	}
	d.brushSize = size
	return nil
}

func (d *Draft) SetBrushColor(color string) error {
	if !strings.HasPrefix(color, "#") || len(color) < 4 {
		return fmt.Errorf("%w: color %q", ErrInvalidOption, color)
	}
	d.brushColor = color
	return nil
}

// SetDelay sets the delivery delay in days. Zero delivers immediately.
func (d *Draft) SetDelay(days letterclient.DelayDays) error {
	f := float64(days)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDelay, days)
	}
	d.delay = days
	return nil
}

// SetDelayPreset selects one of DeliveryPresets by label.
func (d *Draft) SetDelayPreset(label string) error {
	p, ok := PresetByLabel(label)
	if !ok {
		return fmt.Errorf("%w: preset %q", ErrInvalidDelay, label)
	}
	d.delay = p.Days
	return nil
}

// BeginStroke starts input at (x, y) with the selected tool. Print tools
// stamp their whole pattern at once.
func (d *Draft) BeginStroke(x, y float64) error {
	if !d.tool.drawing() {
		return ErrNotDrawingTool
	}
	d.endStroke()
	d.strokeID = uuid.NewString()
	d.drawing = true
	ts := d.now().UnixMilli()
	switch d.tool {
	case ToolFingerprint:
		d.strokes = append(d.strokes, Fingerprint(x, y, d.brushSize, d.brushColor, d.strokeID, ts, d.rng)...)
	case ToolLip:
		d.strokes = append(d.strokes, LipPrint(x, y, d.brushSize, d.brushColor, d.strokeID, ts, d.rng)...)
	default:
		d.strokes = append(d.strokes, d.brushPoint(x, y, true))
	}
	return nil
}

// AddPoint extends the current brush stroke. Prints ignore movement.
func (d *Draft) AddPoint(x, y float64) error {
	if !d.drawing {
		return ErrNoStroke
	}
	if d.tool == ToolBrush {
		d.strokes = append(d.strokes, d.brushPoint(x, y, false))
	}
	return nil
}

// EndStroke commits the current stroke to the undo history.
func (d *Draft) EndStroke() error {
	if !d.drawing {
		return ErrNoStroke
	}
	d.endStroke()
	return nil
}

func (d *Draft) endStroke() {
	if !d.drawing {
		return
	}
	d.drawing = false
	d.strokeID = ""
	d.record()
}

func (d *Draft) brushPoint(x, y float64, first bool) domain.Stroke {
	return domain.Stroke{
		X:           x,
		Y:           y,
		Size:        d.brushSize,
		Color:       d.brushColor,
		Type:        domain.StrokeBrush,
		ID:          uuid.NewString()[:8],
		Timestamp:   d.now().UnixMilli(),
		StrokeID:    d.strokeID,
		IsNewStroke: first,
	}
}

func (d *Draft) record() {
	d.history = append(d.history[:d.index+1], cloneStrokes(d.strokes))
	if len(d.history) > MaxHistory {
		d.history = d.history[len(d.history)-MaxHistory:]
	}
	d.index = len(d.history) - 1
}

func (d *Draft) CanUndo() bool { return !d.drawing && d.index > 0 }

func (d *Draft) CanRedo() bool { return !d.drawing && d.index < len(d.history)-1 }

// Undo restores the previous snapshot. It reports false when there is none.
func (d *Draft) Undo() bool {
	if !d.CanUndo() {
		return false
	}
	d.index--
	d.strokes = cloneStrokes(d.history[d.index])
	return true
}

func (d *Draft) Redo() bool {
	if !d.CanRedo() {
		return false
	}
	d.index++
	d.strokes = cloneStrokes(d.history[d.index])
	return true
}

// Clear drops every stroke and the history.
func (d *Draft) Clear() {
	d.drawing = false
	d.strokeID = ""
	d.strokes = nil
	d.history = [][]domain.Stroke{{}}
	d.index = 0
}

// Strokes returns a copy of the current canvas.
func (d *Draft) Strokes() []domain.Stroke {
	return cloneStrokes(d.strokes)
}

// ValidateStyle checks the named style choices against the option lists.
// Empty fields are allowed and take server defaults.
func ValidateStyle(s domain.LetterStyle) error {
	checks := []struct {
		name  string
		value string
		list  []string
	}{
		{"stampDesign", s.StampDesign, StampDesigns},
		{"envelopeDesign", s.EnvelopeDesign, EnvelopeDesigns},
		{"handwritingFont", s.HandwritingFont, HandwritingFonts},
		{"paperTexture", s.PaperTexture, PaperTextures},
		{"envelopeTexture", s.EnvelopeTexture, EnvelopeTextures},
		{"paperType", s.PaperType, PaperTypes},
		{"foldStyle", s.FoldStyle, FoldStyles},
	}
	for _, c := range checks {
		if c.value != "" && !contains(c.list, c.value) {
			return fmt.Errorf("%w: %s %q", ErrInvalidOption, c.name, c.value)
		}
	}
	return nil
}

// Build assembles the create request. Any stroke in progress is committed.
func (d *Draft) Build(senderPincode string) (letterclient.CreateLetterRequest, error) {
	if strings.TrimSpace(senderPincode) == "" {
		return letterclient.CreateLetterRequest{}, ErrSenderRequired
	}
	if err := d.checkWritten(); err != nil {
		return letterclient.CreateLetterRequest{}, err
	}
	if strings.TrimSpace(d.ReceiverPincode) == "" {
		return letterclient.CreateLetterRequest{}, ErrReceiverRequired
	}
	if strings.TrimSpace(d.ReceiverAddress) == "" {
		return letterclient.CreateLetterRequest{}, ErrAddressRequired
	}
	if err := ValidateStyle(d.Style); err != nil {
		return letterclient.CreateLetterRequest{}, err
	}
	d.endStroke()
	style := d.Style
	if style.StampDesign != "custom" {
		style.CustomStamp = ""
	}
	return letterclient.CreateLetterRequest{
		Title:           d.Title,
		Content:         d.Content,
		SenderPincode:   senderPincode,
		ReceiverPincode: d.ReceiverPincode,
		ReceiverAddress: d.ReceiverAddress,
		DeliveryTime:    d.delay,
		LetterStyle:     style,
		BrushStrokes:    cloneStrokes(d.strokes),
	}, nil
}

func (d *Draft) checkWritten() error {
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Content) == "" {
		return ErrTitleContentRequired
	}
	return nil
}

func cloneStrokes(in []domain.Stroke) []domain.Stroke {
	if len(in) == 0 {
		return nil
	}
	return append([]domain.Stroke(nil), in...)
}

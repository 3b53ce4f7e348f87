package domain

import (
	"testing"
	"time"
)

func TestLetterReadiness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		letter    Letter
		want      Readiness
		remaining time.Duration
	}{
		{
			name:      "future delivery is not ready",
			letter:    Letter{DeliveryTime: now.Add(time.Minute)},
			want:      NotReady,
			remaining: time.Minute,
		},
		{
			name:   "delivery time equal to now is ready",
			letter: Letter{DeliveryTime: now},
			want:   ReadyUnopened,
		},
		{
			name:   "opened letter stays opened",
			letter: Letter{DeliveryTime: now.Add(-time.Hour), IsDelivered: true},
			want:   ReadyOpened,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.letter.Readiness(now); got != tc.want {
				t.Fatalf("readiness = %q, want %q", got, tc.want)
			}
			if got := tc.letter.Remaining(now); got != tc.remaining {
				t.Fatalf("remaining = %v, want %v", got, tc.remaining)
			}
		})
	}
}

func TestLetterStyleWithDefaults(t *testing.T) {
	style := LetterStyle{InkColor: "#000000", FoldStyle: "tri"}.WithDefaults()
	if style.InkColor != "#000000" || style.FoldStyle != "tri" {
		t.Fatalf("explicit values overwritten: %+v", style)
	}
	if style.LetterColor != "#FEFEFE" || style.EnvelopeColor != "#8B4513" || style.HandwritingFont != "cursive" {
		t.Fatalf("defaults not applied: %+v", style)
	}
	if style.CustomStamp != "" {
		t.Fatalf("custom stamp should have no default, got %q", style.CustomStamp)
	}
}

func TestStrokeTypeDrawable(t *testing.T) {
	for _, typ := range []StrokeType{StrokeBrush, StrokeFingerprint, StrokeLip} {
		if !typ.Drawable() {
			t.Fatalf("%q should be drawable", typ)
		}
	}
	for _, typ := range []StrokeType{StrokeText, "eraser", ""} {
		if typ.Drawable() {
			t.Fatalf("%q should not be drawable", typ)
		}
	}
}

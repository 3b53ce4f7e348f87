// Package viewer drives the reading of a received letter: breaking the seal,
// unfolding and reading. Opening a ready letter for the first time marks it
// delivered on the server.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"letterbox/pkg/domain"
)

type State int

const (
	Sealed State = iota
	EnvelopeOpen
	Unfolded
	Reading
)

func (s State) String() string {
	switch s {
	case Sealed:
		return "sealed"
	case EnvelopeOpen:
		return "envelope-open"
	case Unfolded:
		return "unfolded"
	case Reading:
		return "reading"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNotReady          = errors.New("letter is not ready to be opened")
	ErrInvalidTransition = errors.New("invalid viewer transition")
)

// Deliverer marks a letter opened. letterclient.Client satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, id string) (domain.Letter, error)
}

// Session is one viewing of a letter. It is safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	letter    domain.Letter
	state     State
	deliverer Deliverer
	now       func() time.Time
}

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSession(letter domain.Letter, deliverer Deliverer, opts ...Option) *Session {
	s := &Session{letter: letter, deliverer: deliverer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Letter returns the letter as last seen, including the delivered flag.
func (s *Session) Letter() domain.Letter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.letter
}

// OpenEnvelope breaks the seal. A ready letter that was never opened is
// delivered first; if that fails the envelope stays sealed.
func (s *Session) OpenEnvelope(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Sealed {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, s.state)
	}
	switch s.letter.Readiness(s.now()) {
	case domain.NotReady:
		return ErrNotReady
	case domain.ReadyUnopened:
		if s.deliverer == nil {
			return errors.New("no deliverer configured")
		}
		updated, err := s.deliverer.Deliver(ctx, s.letter.ID)
		if err != nil {
			return fmt.Errorf("deliver letter: %w", err)
		}
		if updated.ID == s.letter.ID {
			s.letter = updated
		}
		s.letter.IsDelivered = true
	}
	s.state = EnvelopeOpen
	return nil
}

func (s *Session) Unfold() error {
	return s.advance(EnvelopeOpen, Unfolded)
}

func (s *Session) StartReading() error {
	return s.advance(Unfolded, Reading)
}

// Reset puts the letter back in its envelope. It does not deliver again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Sealed
}

func (s *Session) advance(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("%w: %s to %s from %s", ErrInvalidTransition, from, to, s.state)
	}
	s.state = to
	return nil
}

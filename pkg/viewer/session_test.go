package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"letterbox/pkg/domain"
)

type fakeDeliverer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDeliverer) Deliver(_ context.Context, id string) (domain.Letter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Letter{}, f.err
	}
	return domain.Letter{ID: id, IsDelivered: true, Title: "from server"}, nil
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestOpenReadyLetterDeliversOnce(t *testing.T) {
	d := &fakeDeliverer{}
	s := NewSession(domain.Letter{ID: "l1", DeliveryTime: now.Add(-time.Minute)}, d, WithClock(clock))

	if err := s.OpenEnvelope(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.State() != EnvelopeOpen || !s.Letter().IsDelivered || s.Letter().Title != "from server" {
		t.Fatalf("unexpected state after open: %v %+v", s.State(), s.Letter())
	}
	if err := s.Unfold(); err != nil {
		t.Fatalf("unfold: %v", err)
	}
	if err := s.StartReading(); err != nil || s.State() != Reading {
		t.Fatalf("expected reading, got %v %v", s.State(), err)
	}

	s.Reset()
	if err := s.OpenEnvelope(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if d.calls != 1 {
		t.Fatalf("expected exactly one deliver call, got %d", d.calls)
	}
}

func TestOpenAlreadyDeliveredSkipsDeliver(t *testing.T) {
	d := &fakeDeliverer{}
	s := NewSession(domain.Letter{ID: "l1", DeliveryTime: now, IsDelivered: true}, d, WithClock(clock))
	if err := s.OpenEnvelope(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if d.calls != 0 {
		t.Fatalf("expected no deliver call, got %d", d.calls)
	}
}

func TestOpenNotReadyLetter(t *testing.T) {
	d := &fakeDeliverer{}
	s := NewSession(domain.Letter{ID: "l1", DeliveryTime: now.Add(time.Second)}, d, WithClock(clock))
	if err := s.OpenEnvelope(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if s.State() != Sealed || d.calls != 0 {
		t.Fatalf("not-ready letter must stay sealed without delivering")
	}
}

func TestDeliverFailureKeepsSeal(t *testing.T) {
	boom := errors.New("boom")
	d := &fakeDeliverer{err: boom}
	s := NewSession(domain.Letter{ID: "l1", DeliveryTime: now}, d, WithClock(clock))
	if err := s.OpenEnvelope(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped deliver error, got %v", err)
	}
	if s.State() != Sealed || s.Letter().IsDelivered {
		t.Fatalf("failed deliver must leave the letter sealed")
	}
}

func TestInvalidTransitions(t *testing.T) {
	s := NewSession(domain.Letter{ID: "l1", DeliveryTime: now, IsDelivered: true}, nil, WithClock(clock))
	if err := s.Unfold(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if err := s.StartReading(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	_ = s.OpenEnvelope(context.Background())
	if err := s.OpenEnvelope(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected double open to fail, got %v", err)
	}
}

func TestConcurrentOpenDeliversOnce(t *testing.T) {
	d := &fakeDeliverer{}
	s := NewSession(domain.Letter{ID: "l1", DeliveryTime: now}, d, WithClock(clock))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.OpenEnvelope(context.Background())
		}()
	}
	wg.Wait()
	if d.calls != 1 {
		t.Fatalf("expected one deliver call, got %d", d.calls)
	}
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"letterbox/pkg/domain"
	"letterbox/pkg/queue"
	"letterbox/pkg/storage"
	"letterbox/pkg/store"
)

type fakeQueue struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (f *fakeQueue) Enqueue(_ context.Context, letterID string) (queue.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return queue.RenderJob{}, errors.New("redis down")
	}
	f.ids = append(f.ids, letterID)
	return queue.RenderJob{ID: "job-" + letterID, LetterID: letterID, Status: queue.StatusQueued}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	app     *App
	store   *store.MemoryStore
	objects *storage.MemoryStore
	queue   *fakeQueue
	clock   *testClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		store:   store.NewMemoryStore(),
		objects: storage.NewMemoryStore(),
		queue:   &fakeQueue{},
		clock:   &testClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	a, err := New(Config{
		Store:   f.store,
		Objects: f.objects,
		Renders: f.queue,
		Now:     f.clock.Now,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	f.app = a
	return f
}

func letterInput(delay string) CreateLetterInput {
	return CreateLetterInput{
		Title:           "Hi",
		Content:         "Hello",
		SenderPincode:   "100001",
		ReceiverPincode: "200002",
		ReceiverAddress: "X",
		DeliveryTime:    json.RawMessage(delay),
	}
}

func TestCreateLetter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.app.CreateLetter(ctx, letterInput(`"0.0042"`))
	if err != nil {
		t.Fatalf("create letter: %v", err)
	}
	if created.DeliverySeconds != 363 {
		t.Fatalf("deliverySeconds = %d, want 363", created.DeliverySeconds)
	}
	want := f.clock.Now().Add(363 * time.Second)
	if !created.Letter.DeliveryTime.Equal(want) {
		t.Fatalf("deliveryTime = %v, want %v", created.Letter.DeliveryTime, want)
	}
	if created.Letter.IsDelivered {
		t.Fatalf("new letter must not be delivered")
	}
	if created.Letter.Delivery == nil || created.Letter.Delivery.Status != domain.DeliveryPending {
		t.Fatalf("expected pending delivery, got %+v", created.Letter.Delivery)
	}
	if created.Letter.LetterColor != "#FEFEFE" || created.Letter.StampDesign != "classic" {
		t.Fatalf("expected style defaults, got %+v", created.Letter.LetterStyle)
	}
	if created.Letter.BrushStrokes == nil {
		t.Fatalf("strokes must default to an empty list")
	}
	if _, ok, _ := f.store.GetUserByPincode(ctx, "200002"); !ok {
		t.Fatalf("receiver should be created on first letter")
	}
	if len(f.queue.ids) != 0 {
		t.Fatalf("letters without drawable strokes must not be queued")
	}
}

func TestCreateLetterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := letterInput(`1`)
	missing.ReceiverAddress = ""
	if _, err := f.app.CreateLetter(ctx, missing); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected missing fields, got %v", err)
	}

	for _, raw := range []string{``, `null`, `""`, `"abc"`, `"2026-05-01T10:00:00Z"`, `"NaN"`, `"Infinity"`, `"1e300"`, `true`} {
		t.Run(raw, func(t *testing.T) {
			if _, err := f.app.CreateLetter(ctx, letterInput(raw)); !errors.Is(err, ErrInvalidDeliveryTime) {
				t.Fatalf("expected invalid delivery time for %q, got %v", raw, err)
			}
		})
	}

	created, err := f.app.CreateLetter(ctx, letterInput(`0`))
	if err != nil {
		t.Fatalf("zero delay: %v", err)
	}
	if created.DeliverySeconds != 0 || !created.Letter.Ready(f.clock.Now()) {
		t.Fatalf("zero delay must be ready immediately")
	}
}

func TestCreateLetterQueuesDrawableStrokes(t *testing.T) {
	f := newFixture(t)
	in := letterInput(`1`)
	in.BrushStrokes = []domain.Stroke{{X: 1, Y: 1, Size: 3, Color: "#000", Type: domain.StrokeBrush}}
	created, err := f.app.CreateLetter(context.Background(), in)
	if err != nil {
		t.Fatalf("create letter: %v", err)
	}
	if len(f.queue.ids) != 1 || f.queue.ids[0] != created.Letter.ID {
		t.Fatalf("expected render job for %s, got %v", created.Letter.ID, f.queue.ids)
	}

	f.queue.fail = true
	if _, err := f.app.CreateLetter(context.Background(), in); err != nil {
		t.Fatalf("queue failure must not fail the request: %v", err)
	}
}

func TestListLettersReadiness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.app.CreateLetter(ctx, letterInput(`0.0042`)); err != nil {
		t.Fatalf("create: %v", err)
	}

	ready, err := f.app.ListLetters(ctx, LetterQuery{ReceiverPincode: "200002"})
	if err != nil || len(ready) != 0 {
		t.Fatalf("pending letter must be hidden, got %d err=%v", len(ready), err)
	}
	all, err := f.app.ListLetters(ctx, LetterQuery{ReceiverPincode: "200002", IncludePending: true})
	if err != nil || len(all) != 1 {
		t.Fatalf("includePending should return the letter, got %d err=%v", len(all), err)
	}
	sent, err := f.app.ListLetters(ctx, LetterQuery{SenderPincode: "100001"})
	if err != nil || len(sent) != 1 {
		t.Fatalf("sender listing should include pending letters, got %d err=%v", len(sent), err)
	}

	f.clock.Advance(363 * time.Second)
	ready, _ = f.app.ListLetters(ctx, LetterQuery{ReceiverPincode: "200002"})
	if len(ready) != 1 {
		t.Fatalf("letter should be ready at its delivery time")
	}

	unknown, err := f.app.ListLetters(ctx, LetterQuery{ReceiverPincode: "999999"})
	if err != nil || unknown == nil || len(unknown) != 0 {
		t.Fatalf("unknown pincode should give an empty list, got %v err=%v", unknown, err)
	}
	if _, err := f.app.ListLetters(ctx, LetterQuery{}); !errors.Is(err, ErrPincodeFilterRequired) {
		t.Fatalf("expected filter error, got %v", err)
	}
}

func TestDeliver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.app.CreateLetter(ctx, letterInput(`1`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Letter.ID

	_, err = f.app.Deliver(ctx, id)
	var notReady *NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if !notReady.DeliveryTime.Equal(created.Letter.DeliveryTime) || !notReady.CurrentTime.Equal(f.clock.Now()) {
		t.Fatalf("unexpected not-ready times: %+v", notReady)
	}
	if got, _ := f.app.GetLetter(ctx, id); got.IsDelivered {
		t.Fatalf("not-ready deliver must not write")
	}

	f.clock.Advance(24 * time.Hour)
	first, err := f.app.Deliver(ctx, id)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !first.IsDelivered || first.Delivery == nil || first.Delivery.Status != domain.DeliveryDelivered {
		t.Fatalf("expected delivered letter, got %+v", first)
	}
	openedAt := *first.Delivery.DeliveredAt

	f.clock.Advance(time.Hour)
	second, err := f.app.Deliver(ctx, id)
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if !second.Delivery.DeliveredAt.Equal(openedAt) {
		t.Fatalf("redeliver must keep the first timestamp")
	}

	if _, err := f.app.Deliver(ctx, "missing"); !errors.Is(err, ErrLetterNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeliverRepairsMissingDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.app.CreateLetter(ctx, letterInput(`0`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.store.RemoveDelivery(created.Letter.ID)
	got, err := f.app.Deliver(ctx, created.Letter.ID)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.Delivery == nil || got.Delivery.Status != domain.DeliveryDelivered {
		t.Fatalf("expected a delivered record to be created, got %+v", got.Delivery)
	}
}

func TestUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.app.UpsertUser(ctx, "12345"); !errors.Is(err, ErrInvalidPincode) {
		t.Fatalf("expected invalid pincode, got %v", err)
	}
	user, created, err := f.app.UpsertUser(ctx, "100001")
	if err != nil || !created {
		t.Fatalf("expected new user, got created=%v err=%v", created, err)
	}
	again, created, err := f.app.UpsertUser(ctx, "100001")
	if err != nil || created || again.ID != user.ID {
		t.Fatalf("expected existing user, got %+v created=%v err=%v", again, created, err)
	}

	if _, err := f.app.GetUser(ctx, ""); !errors.Is(err, ErrPincodeRequired) {
		t.Fatalf("expected pincode required, got %v", err)
	}
	if _, err := f.app.GetUser(ctx, "999999"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if _, err := f.app.CreateLetter(ctx, letterInput(`1`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := f.app.GetUser(ctx, "100001")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(got.SentLetters) != 1 || got.ReceivedLetters == nil || len(got.ReceivedLetters) != 0 {
		t.Fatalf("unexpected letters: sent=%d received=%v", len(got.SentLetters), got.ReceivedLetters)
	}
}

func TestMailbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.app.CreateLetter(ctx, letterInput(`0`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.app.CreateLetter(ctx, letterInput(`2`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	view, err := f.app.Mailbox(ctx, "200002")
	if err != nil {
		t.Fatalf("mailbox: %v", err)
	}
	if len(view.Ready) != 1 || len(view.Pending) != 1 || view.UnreadCount != 1 {
		t.Fatalf("unexpected view: ready=%d pending=%d unread=%d", len(view.Ready), len(view.Pending), view.UnreadCount)
	}
	if view.Pending[0].RemainingSeconds != 2*86400 {
		t.Fatalf("remainingSeconds = %d", view.Pending[0].RemainingSeconds)
	}
	if _, err := f.app.Mailbox(ctx, " "); !errors.Is(err, ErrPincodeRequired) {
		t.Fatalf("expected pincode required, got %v", err)
	}
}

func TestPostbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	box, err := f.app.GetPostbox(ctx, "100001")
	if err != nil {
		t.Fatalf("get default postbox: %v", err)
	}
	if box.Color != "#dc2626" || box.Pattern != "solid" || box.Glow {
		t.Fatalf("unexpected default postbox: %+v", box)
	}
	if _, err := f.app.GetPostbox(ctx, "1"); !errors.Is(err, ErrInvalidPincode) {
		t.Fatalf("expected invalid pincode, got %v", err)
	}

	if _, err := f.app.SavePostbox(ctx, domain.Postbox{Pincode: "100001"}); !errors.Is(err, ErrInvalidPostbox) {
		t.Fatalf("expected invalid postbox for empty color, got %v", err)
	}
	tooMany := domain.Postbox{Pincode: "100001", Color: "#000000", Stickers: make([]domain.Sticker, 51)}
	if _, err := f.app.SavePostbox(ctx, tooMany); !errors.Is(err, ErrInvalidPostbox) {
		t.Fatalf("expected invalid postbox for too many stickers, got %v", err)
	}

	saved, err := f.app.SavePostbox(ctx, domain.Postbox{
		Pincode:  "100001",
		Color:    "#123456",
		Glow:     true,
		Stickers: []domain.Sticker{{ID: "s1", Type: "star", X: 10, Y: 20, Scale: 1}},
	})
	if err != nil {
		t.Fatalf("save postbox: %v", err)
	}
	if saved.Pattern != "solid" || saved.Decorations == nil {
		t.Fatalf("expected defaults on save, got %+v", saved)
	}
	got, err := f.app.GetPostbox(ctx, "100001")
	if err != nil {
		t.Fatalf("get postbox: %v", err)
	}
	if got.Color != "#123456" || !got.Glow || len(got.Stickers) != 1 {
		t.Fatalf("unexpected stored postbox: %+v", got)
	}
	if _, ok, _ := f.store.GetUserByPincode(ctx, "100001"); !ok {
		t.Fatalf("saving a postbox should register the pincode")
	}
}

func TestOverlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain, err := f.app.CreateLetter(ctx, letterInput(`1`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.app.Overlay(ctx, plain.Letter.ID); !errors.Is(err, ErrOverlayNotFound) {
		t.Fatalf("expected overlay not found, got %v", err)
	}
	if _, err := f.app.Overlay(ctx, "missing"); !errors.Is(err, ErrLetterNotFound) {
		t.Fatalf("expected letter not found, got %v", err)
	}

	in := letterInput(`1`)
	in.BrushStrokes = []domain.Stroke{
		{X: 10, Y: 10, Size: 4, Color: "#ff0000", Type: domain.StrokeBrush, StrokeID: "a"},
		{X: 40, Y: 30, Size: 4, Color: "#ff0000", Type: domain.StrokeBrush, StrokeID: "a"},
	}
	drawn, err := f.app.CreateLetter(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := f.app.Overlay(ctx, drawn.Letter.ID)
	if err != nil || len(first) == 0 {
		t.Fatalf("overlay: %d bytes err=%v", len(first), err)
	}
	if f.objects.Puts() != 1 {
		t.Fatalf("expected overlay to be cached, puts=%d", f.objects.Puts())
	}
	second, err := f.app.Overlay(ctx, drawn.Letter.ID)
	if err != nil || string(second) != string(first) {
		t.Fatalf("cached overlay differs: err=%v", err)
	}
	if f.objects.Puts() != 1 {
		t.Fatalf("cache hit must not render again, puts=%d", f.objects.Puts())
	}
}

func TestParseDelayDays(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`1`, 1},
		{`"0.5"`, 0.5},
		{`" 2 "`, 2},
		{`0.0042`, 0.0042},
		{`365`, 365},
		{`"400"`, 400},
		{`-1`, -1},
		{`"-0.5"`, -0.5},
	}
	for _, tt := range tests {
		got, err := parseDelayDays(json.RawMessage(tt.raw))
		if err != nil {
			t.Fatalf("parseDelayDays(%s): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("parseDelayDays(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
	if delaySeconds(0.0042) != 363 || delaySeconds(1) != 86400 {
		t.Fatalf("unexpected delay rounding")
	}
}

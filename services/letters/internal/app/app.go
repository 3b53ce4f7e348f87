package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"letterbox/internal/metrics"
	"letterbox/internal/util"
	"letterbox/internal/validation"
	"letterbox/pkg/domain"
	"letterbox/pkg/mailbox"
	"letterbox/pkg/overlay"
	"letterbox/pkg/queue"
	"letterbox/pkg/storage"
	"letterbox/pkg/store"
)

// RenderQueue hands letters with drawable strokes to the overlay renderer.
type RenderQueue interface {
	Enqueue(ctx context.Context, letterID string) (queue.RenderJob, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	Store          store.Store
	Objects        storage.ObjectStore
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	Renders        RenderQueue
	MailboxClamp   time.Duration
	Now            func() time.Time
}

// App is the letters service core: letter creation, delivery, listings,
// users, postboxes and overlays.
type App struct {
	store        store.Store
	objects      storage.ObjectStore
	renders      RenderQueue
	clamp        time.Duration
	now          func() time.Time
	overlays     singleflight.Group
}

// New constructs the application. Without a store it opens DatabaseURL;
// without an object store it connects to MinIO when an endpoint is given and
// otherwise renders overlays on every request.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil && cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		objects = minioStore
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:        dataStore,
		objects:      objects,
		renders:      cfg.Renders,
		clamp:        cfg.MailboxClamp,
		now:          func() time.Time { return now().UTC() },
	}, nil
}

// Close releases the store when it holds resources.
func (a *App) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CreateLetterInput is the body of a create request. DeliveryTime stays raw
// so both numbers and numeric strings are accepted.
type CreateLetterInput struct {
	Title           string          `json:"title" validate:"required"`
	Content         string          `json:"content" validate:"required"`
	SenderPincode   string          `json:"senderPincode" validate:"required"`
	ReceiverPincode string          `json:"receiverPincode" validate:"required"`
	ReceiverAddress string          `json:"receiverAddress" validate:"required"`
	DeliveryTime    json.RawMessage `json:"deliveryTime"`
	domain.LetterStyle
	BrushStrokes []domain.Stroke `json:"brushStrokes"`
}

// CreatedLetter is the outcome of CreateLetter.
type CreatedLetter struct {
	Letter          domain.Letter
	DeliverySeconds int64
}

// CreateLetter validates the input, upserts both users and stores the letter
// with its pending delivery in one transaction.
func (a *App) CreateLetter(ctx context.Context, in CreateLetterInput) (CreatedLetter, error) {
	if err := validation.Struct(in); err != nil {
		return CreatedLetter{}, fmt.Errorf("%w: %v", ErrMissingFields, err)
	}
	days, err := parseDelayDays(in.DeliveryTime)
	if err != nil {
		return CreatedLetter{}, err
	}
	sender, _, err := a.store.EnsureUser(ctx, in.SenderPincode)
	if err != nil {
		return CreatedLetter{}, fmt.Errorf("ensure sender: %w", err)
	}
	receiver, _, err := a.store.EnsureUser(ctx, in.ReceiverPincode)
	if err != nil {
		return CreatedLetter{}, fmt.Errorf("ensure receiver: %w", err)
	}

	now := a.now()
	strokes := in.BrushStrokes
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	letter, err := a.store.CreateLetter(ctx, domain.Letter{
		ID:              util.NewID(),
		Title:           in.Title,
		Content:         in.Content,
		SenderID:        sender.ID,
		ReceiverID:      receiver.ID,
		ReceiverAddress: in.ReceiverAddress,
		DeliveryTime:    now.Add(delayDuration(days)),
		CreatedAt:       now,
		UpdatedAt:       now,
		LetterStyle:     in.LetterStyle.WithDefaults(),
		BrushStrokes:    strokes,
	})
	if err != nil {
		return CreatedLetter{}, fmt.Errorf("create letter: %w", err)
	}
	metrics.LettersCreated.Inc()

	if a.renders != nil && overlay.HasDrawable(letter.BrushStrokes) {
		if _, err := a.renders.Enqueue(ctx, letter.ID); err != nil {
			util.LoggerFromContext(ctx).Warn("render enqueue failed", "letter_id", letter.ID, "err", err)
		}
	}
	return CreatedLetter{Letter: letter, DeliverySeconds: delaySeconds(days)}, nil
}

// LetterQuery selects a listing. ReceiverPincode wins when both are set.
type LetterQuery struct {
	ReceiverPincode string
	SenderPincode   string
	IncludePending  bool
}

// ListLetters returns letters newest first. Receiver listings hide letters
// still in transit unless IncludePending is set. Unknown pincodes yield an
// empty list.
func (a *App) ListLetters(ctx context.Context, q LetterQuery) ([]domain.Letter, error) {
	var filter store.LetterFilter
	switch {
	case q.ReceiverPincode != "":
		user, ok, err := a.store.GetUserByPincode(ctx, q.ReceiverPincode)
		if err != nil {
			return nil, fmt.Errorf("get receiver: %w", err)
		}
		if !ok {
			return []domain.Letter{}, nil
		}
		filter.ReceiverID = user.ID
		if !q.IncludePending {
			now := a.now()
			filter.DueBy = &now
		}
	case q.SenderPincode != "":
		user, ok, err := a.store.GetUserByPincode(ctx, q.SenderPincode)
		if err != nil {
			return nil, fmt.Errorf("get sender: %w", err)
		}
		if !ok {
			return []domain.Letter{}, nil
		}
		filter.SenderID = user.ID
	default:
		return nil, ErrPincodeFilterRequired
	}
	letters, err := a.store.ListLetters(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list letters: %w", err)
	}
	if letters == nil {
		letters = []domain.Letter{}
	}
	return letters, nil
}

// GetLetter retrieves a letter by id.
func (a *App) GetLetter(ctx context.Context, id string) (domain.Letter, error) {
	letter, ok, err := a.store.GetLetter(ctx, id)
	if err != nil {
		return domain.Letter{}, fmt.Errorf("get letter: %w", err)
	}
	if !ok {
		return domain.Letter{}, ErrLetterNotFound
	}
	return letter, nil
}

// Deliver marks a ready letter opened. Repeated calls converge on the same
// delivered state and keep the first delivery timestamp.
func (a *App) Deliver(ctx context.Context, id string) (domain.Letter, error) {
	letter, ok, err := a.store.GetLetter(ctx, id)
	if err != nil {
		return domain.Letter{}, fmt.Errorf("get letter: %w", err)
	}
	if !ok {
		metrics.RecordDelivery("not_found")
		return domain.Letter{}, ErrLetterNotFound
	}
	now := a.now()
	if !letter.Ready(now) {
		metrics.RecordDelivery("not_ready")
		return domain.Letter{}, &NotReadyError{DeliveryTime: letter.DeliveryTime, CurrentTime: now}
	}
	updated, ok, err := a.store.MarkDelivered(ctx, id, now)
	if err != nil {
		return domain.Letter{}, fmt.Errorf("mark delivered: %w", err)
	}
	if !ok {
		metrics.RecordDelivery("not_found")
		return domain.Letter{}, ErrLetterNotFound
	}
	metrics.RecordDelivery("delivered")
	return updated, nil
}

type userInput struct {
	Pincode string `json:"pincode" validate:"required,pincode"`
}

// UpsertUser registers a pincode. created is false when it already existed.
func (a *App) UpsertUser(ctx context.Context, pincode string) (domain.User, bool, error) {
	if err := validation.Struct(userInput{Pincode: pincode}); err != nil {
		return domain.User{}, false, ErrInvalidPincode
	}
	user, created, err := a.store.EnsureUser(ctx, pincode)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("ensure user: %w", err)
	}
	return user, created, nil
}

// GetUser returns the user with every letter they sent or received.
func (a *App) GetUser(ctx context.Context, pincode string) (domain.User, error) {
	if strings.TrimSpace(pincode) == "" {
		return domain.User{}, ErrPincodeRequired
	}
	user, ok, err := a.store.GetUserByPincode(ctx, pincode)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	sent, err := a.store.ListLetters(ctx, store.LetterFilter{SenderID: user.ID})
	if err != nil {
		return domain.User{}, fmt.Errorf("list sent letters: %w", err)
	}
	received, err := a.store.ListLetters(ctx, store.LetterFilter{ReceiverID: user.ID})
	if err != nil {
		return domain.User{}, fmt.Errorf("list received letters: %w", err)
	}
	user.SentLetters = nonNil(sent)
	user.ReceivedLetters = nonNil(received)
	return user, nil
}

// Mailbox partitions every letter addressed to pincode into ready and
// pending.
func (a *App) Mailbox(ctx context.Context, pincode string) (mailbox.View, error) {
	if strings.TrimSpace(pincode) == "" {
		return mailbox.View{}, ErrPincodeRequired
	}
	letters, err := a.ListLetters(ctx, LetterQuery{ReceiverPincode: pincode, IncludePending: true})
	if err != nil {
		return mailbox.View{}, err
	}
	return mailbox.Partition(letters, a.now(), a.clamp), nil
}

// GetPostbox returns the saved customization or the default one.
func (a *App) GetPostbox(ctx context.Context, pincode string) (domain.Postbox, error) {
	if err := validation.Struct(userInput{Pincode: pincode}); err != nil {
		return domain.Postbox{}, ErrInvalidPincode
	}
	box, ok, err := a.store.GetPostbox(ctx, pincode)
	if err != nil {
		return domain.Postbox{}, fmt.Errorf("get postbox: %w", err)
	}
	if !ok {
		return domain.DefaultPostbox(pincode), nil
	}
	return box, nil
}

type postboxInput struct {
	Color       string              `json:"color" validate:"required"`
	Stickers    []domain.Sticker    `json:"stickers" validate:"max=50"`
	Decorations []domain.Decoration `json:"decorations" validate:"max=50"`
}

// SavePostbox replaces the customization of box.Pincode, registering the
// pincode when needed.
func (a *App) SavePostbox(ctx context.Context, box domain.Postbox) (domain.Postbox, error) {
	if err := validation.Struct(userInput{Pincode: box.Pincode}); err != nil {
		return domain.Postbox{}, ErrInvalidPincode
	}
	err := validation.Struct(postboxInput{
		Color:       box.Color,
		Stickers:    box.Stickers,
		Decorations: box.Decorations,
	})
	if err != nil {
		return domain.Postbox{}, &InvalidPostboxError{Reason: err.Error()}
	}
	if box.Pattern == "" {
		box.Pattern = "solid"
	}
	if box.Stickers == nil {
		box.Stickers = []domain.Sticker{}
	}
	if box.Decorations == nil {
		box.Decorations = []domain.Decoration{}
	}
	if _, _, err := a.store.EnsureUser(ctx, box.Pincode); err != nil {
		return domain.Postbox{}, fmt.Errorf("ensure user: %w", err)
	}
	box.UpdatedAt = a.now()
	if err := a.store.SavePostbox(ctx, box); err != nil {
		return domain.Postbox{}, fmt.Errorf("save postbox: %w", err)
	}
	return box, nil
}

// Overlay returns the PNG of a letter's strokes, from the object store when
// cached. Concurrent misses for one letter render once.
func (a *App) Overlay(ctx context.Context, id string) ([]byte, error) {
	letter, err := a.GetLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	if !overlay.HasDrawable(letter.BrushStrokes) {
		metrics.RecordOverlay("empty")
		return nil, ErrOverlayNotFound
	}
	key := storage.OverlayKey(letter.ID)
	if a.objects != nil {
		data, found, err := a.objects.Get(ctx, key)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("overlay cache read failed", "letter_id", letter.ID, "err", err)
		} else if found {
			metrics.RecordOverlay("hit")
			return data, nil
		}
	}

	v, err, _ := a.overlays.Do(letter.ID, func() (any, error) {
		data, err := overlay.RenderLetter(letter)
		if err != nil {
			return nil, fmt.Errorf("render overlay: %w", err)
		}
		if data == nil {
			return nil, ErrOverlayNotFound
		}
		if a.objects != nil {
			if err := a.objects.Put(context.WithoutCancel(ctx), key, data, "image/png"); err != nil {
				util.LoggerFromContext(ctx).Warn("overlay cache write failed", "letter_id", letter.ID, "err", err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordOverlay("miss")
	return v.([]byte), nil
}

func nonNil(letters []domain.Letter) []domain.Letter {
	if letters == nil {
		return []domain.Letter{}
	}
	return letters
}

package store

import (
	"context"
	"time"

	"letterbox/pkg/domain"
)

// LetterFilter selects letters for a listing. Exactly one of ReceiverID or
// SenderID is expected. A non-nil DueBy keeps only letters whose delivery time
// is at or before it.
type LetterFilter struct {
	ReceiverID string
	SenderID   string
	DueBy      *time.Time
}

// Store defines persistence operations for users, letters, deliveries and postboxes.
type Store interface {
	// users. EnsureUser reports whether the row was created by this call.
	EnsureUser(ctx context.Context, pincode string) (domain.User, bool, error)
	GetUserByPincode(ctx context.Context, pincode string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)

	// letters
	CreateLetter(ctx context.Context, letter domain.Letter) (domain.Letter, error)
	GetLetter(ctx context.Context, id string) (domain.Letter, bool, error)
	ListLetters(ctx context.Context, filter LetterFilter) ([]domain.Letter, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) (domain.Letter, bool, error)

	// postboxes
	GetPostbox(ctx context.Context, pincode string) (domain.Postbox, bool, error)
	SavePostbox(ctx context.Context, box domain.Postbox) error
}

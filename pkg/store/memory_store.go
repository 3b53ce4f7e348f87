package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"letterbox/pkg/domain"
)

// MemoryStore is an in-process Store for tests and single-node demos.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User // by id
	byPincode  map[string]string      // pincode -> user id
	letters    map[string]domain.Letter
	deliveries map[string]domain.Delivery // by letter id
	postboxes  map[string]domain.Postbox
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		byPincode:  make(map[string]string),
		letters:    make(map[string]domain.Letter),
		deliveries: make(map[string]domain.Delivery),
		postboxes:  make(map[string]domain.Postbox),
	}
}

func (s *MemoryStore) EnsureUser(_ context.Context, pincode string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPincode[pincode]; ok {
		return s.users[id], false, nil
	}
	u := domain.User{ID: uuid.NewString(), Pincode: pincode, CreatedAt: time.Now().UTC()}
	s.users[u.ID] = u
	s.byPincode[pincode] = u.ID
	return u, true, nil
}

func (s *MemoryStore) GetUserByPincode(_ context.Context, pincode string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPincode[pincode]
	if !ok {
		return domain.User{}, false, nil
	}
	return s.users[id], true, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) CreateLetter(_ context.Context, letter domain.Letter) (domain.Letter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[letter.SenderID]; !ok {
		return domain.Letter{}, errors.New("create letter: unknown sender")
	}
	if _, ok := s.users[letter.ReceiverID]; !ok {
		return domain.Letter{}, errors.New("create letter: unknown receiver")
	}
	if _, ok := s.letters[letter.ID]; ok {
		return domain.Letter{}, errors.New("create letter: duplicate id")
	}
	letter.Sender, letter.Receiver, letter.Delivery = nil, nil, nil
	if letter.BrushStrokes == nil {
		letter.BrushStrokes = []domain.Stroke{}
	} else {
		letter.BrushStrokes = append([]domain.Stroke(nil), letter.BrushStrokes...)
	}
	s.letters[letter.ID] = letter
	s.deliveries[letter.ID] = domain.Delivery{
		ID:        uuid.NewString(),
		LetterID:  letter.ID,
		Status:    domain.DeliveryPending,
		CreatedAt: letter.CreatedAt,
		UpdatedAt: letter.CreatedAt,
	}
	return s.hydrate(letter), nil
}

func (s *MemoryStore) GetLetter(_ context.Context, id string) (domain.Letter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.letters[id]
	if !ok {
		return domain.Letter{}, false, nil
	}
	return s.hydrate(l), true, nil
}

func (s *MemoryStore) ListLetters(_ context.Context, filter LetterFilter) ([]domain.Letter, error) {
	if filter.ReceiverID == "" && filter.SenderID == "" {
		return nil, errors.New("list letters: receiver or sender is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Letter, 0)
	for _, l := range s.letters {
		if filter.ReceiverID != "" {
			if l.ReceiverID != filter.ReceiverID {
				continue
			}
		} else if l.SenderID != filter.SenderID {
			continue
		}
		if filter.DueBy != nil && l.DeliveryTime.After(*filter.DueBy) {
			continue
		}
		res = append(res, s.hydrate(l))
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id string, at time.Time) (domain.Letter, bool, error) {
	at = at.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.letters[id]
	if !ok {
		return domain.Letter{}, false, nil
	}
	l.IsDelivered = true
	l.UpdatedAt = at
	s.letters[id] = l
	d, ok := s.deliveries[id]
	if !ok {
		d = domain.Delivery{ID: uuid.NewString(), LetterID: id, CreatedAt: at}
	}
	d.Status = domain.DeliveryDelivered
	if d.DeliveredAt == nil {
		stamp := at
		d.DeliveredAt = &stamp
	}
	d.UpdatedAt = at
	s.deliveries[id] = d
	return s.hydrate(l), true, nil
}

func (s *MemoryStore) GetPostbox(_ context.Context, pincode string) (domain.Postbox, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.postboxes[pincode]
	if !ok {
		return domain.Postbox{}, false, nil
	}
	return clonePostbox(b), true, nil
}

func (s *MemoryStore) SavePostbox(_ context.Context, box domain.Postbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postboxes[box.Pincode] = clonePostbox(box)
	return nil
}

// hydrate attaches relations; callers hold the lock.
func (s *MemoryStore) hydrate(l domain.Letter) domain.Letter {
	if u, ok := s.users[l.SenderID]; ok {
		l.Sender = &u
	}
	if u, ok := s.users[l.ReceiverID]; ok {
		l.Receiver = &u
	}
	if d, ok := s.deliveries[l.ID]; ok {
		if d.DeliveredAt != nil {
			at := *d.DeliveredAt
			d.DeliveredAt = &at
		}
		l.Delivery = &d
	}
	l.BrushStrokes = append([]domain.Stroke{}, l.BrushStrokes...)
	return l
}

func clonePostbox(b domain.Postbox) domain.Postbox {
	b.Stickers = append([]domain.Sticker{}, b.Stickers...)
	b.Decorations = append([]domain.Decoration{}, b.Decorations...)
	return b
}

// RemoveDelivery drops the delivery record of a letter, leaving the letter in
// place. It exists to reproduce rows written before deliveries were created
// transactionally.
func (s *MemoryStore) RemoveDelivery(letterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deliveries, letterID)
}

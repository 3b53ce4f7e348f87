package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"letterbox/pkg/domain"
)

const migrateLockID int64 = 53881104

// GormStore implements Store using GORM on Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations. DSNs starting with
// "sqlite:" select the SQLite driver; anything else is handed to Postgres.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	dialector, isSQLite := openDialector(dsn)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &LetterModel{}, &DeliveryModel{}, &PostboxModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// an in-memory database lives and dies with its connection
		sqlDB.SetMaxOpenConns(1)
		if err := migrate(db); err != nil {
			return nil, err
		}
		return &GormStore{db: db}, nil
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func openDialector(dsn string) (gorm.Dialector, bool) {
	dsn = strings.TrimSpace(dsn)
	if rest, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		rest = strings.TrimPrefix(rest, "//")
		if rest == "" {
			rest = ":memory:"
		}
		return sqlite.Open(rest), true
	}
	return postgres.Open(dsn), false
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// EnsureUser inserts a user for pincode unless one exists, then reads it back.
// The unique index on pincode settles concurrent first-time inserts.
func (s *GormStore) EnsureUser(ctx context.Context, pincode string) (domain.User, bool, error) {
	model := UserModel{
		ID:        uuid.NewString(),
		Pincode:   pincode,
		CreatedAt: time.Now().UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pincode"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return domain.User{}, false, res.Error
	}
	created := res.RowsAffected == 1
	user, found, err := s.GetUserByPincode(ctx, pincode)
	if err != nil {
		return domain.User{}, false, err
	}
	if !found {
		return domain.User{}, false, fmt.Errorf("user %s vanished after upsert", pincode)
	}
	return user, created, nil
}

// GetUserByPincode looks up a user by pincode.
func (s *GormStore) GetUserByPincode(ctx context.Context, pincode string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("pincode = ?", pincode).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateLetter writes the letter and its pending delivery record in one
// transaction, so a letter never exists without its delivery.
func (s *GormStore) CreateLetter(ctx context.Context, letter domain.Letter) (domain.Letter, error) {
	model, err := letterToModel(letter)
	if err != nil {
		return domain.Letter{}, err
	}
	delivery := DeliveryModel{
		ID:        uuid.NewString(),
		LetterID:  model.ID,
		Status:    string(domain.DeliveryPending),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.CreatedAt,
	}
	var out domain.Letter
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&model).Error; err != nil {
			return fmt.Errorf("insert letter: %w", err)
		}
		if err := tx.Create(&delivery).Error; err != nil {
			return fmt.Errorf("insert delivery: %w", err)
		}
		loaded, found, err := loadLetter(tx, model.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("letter %s missing after insert", model.ID)
		}
		out = loaded
		return nil
	})
	if err != nil {
		return domain.Letter{}, err
	}
	return out, nil
}

// GetLetter returns one letter with its sender, receiver and delivery.
func (s *GormStore) GetLetter(ctx context.Context, id string) (domain.Letter, bool, error) {
	return loadLetter(s.db.WithContext(ctx), id)
}

// ListLetters returns letters matching filter, newest first.
func (s *GormStore) ListLetters(ctx context.Context, filter LetterFilter) ([]domain.Letter, error) {
	tx := withLetterRelations(s.db.WithContext(ctx)).Order("created_at DESC")
	switch {
	case filter.ReceiverID != "":
		tx = tx.Where("receiver_id = ?", filter.ReceiverID)
	case filter.SenderID != "":
		tx = tx.Where("sender_id = ?", filter.SenderID)
	default:
		return nil, errors.New("list letters: receiver or sender is required")
	}
	if filter.DueBy != nil {
		tx = tx.Where("delivery_time <= ?", filter.DueBy.UTC())
	}
	var models []LetterModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Letter, 0, len(models))
	for _, m := range models {
		res = append(res, letterFromModel(m))
	}
	return res, nil
}

// MarkDelivered flips the opened flag and the companion delivery record in one
// transaction. The first delivered_at wins; a missing delivery row is created.
func (s *GormStore) MarkDelivered(ctx context.Context, id string, at time.Time) (domain.Letter, bool, error) {
	at = at.UTC()
	var out domain.Letter
	var found bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&LetterModel{}).Where("id = ?", id).Updates(map[string]any{
			"is_delivered": true,
			"updated_at":   at,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		found = true
		var count int64
		if err := tx.Model(&DeliveryModel{}).Where("letter_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			delivery := DeliveryModel{
				ID:          uuid.NewString(),
				LetterID:    id,
				Status:      string(domain.DeliveryDelivered),
				DeliveredAt: &at,
				CreatedAt:   at,
				UpdatedAt:   at,
			}
			if err := tx.Create(&delivery).Error; err != nil {
				return fmt.Errorf("insert delivery: %w", err)
			}
		} else {
			if err := tx.Model(&DeliveryModel{}).Where("letter_id = ?", id).Updates(map[string]any{
				"status":       string(domain.DeliveryDelivered),
				"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
				"updated_at":   at,
			}).Error; err != nil {
				return fmt.Errorf("update delivery: %w", err)
			}
		}
		loaded, ok, err := loadLetter(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("letter %s missing after update", id)
		}
		out = loaded
		return nil
	})
	if err != nil {
		return domain.Letter{}, false, err
	}
	return out, found, nil
}

// GetPostbox returns the saved customization for pincode.
func (s *GormStore) GetPostbox(ctx context.Context, pincode string) (domain.Postbox, bool, error) {
	var model PostboxModel
	if err := s.db.WithContext(ctx).First(&model, "pincode = ?", pincode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Postbox{}, false, nil
		}
		return domain.Postbox{}, false, err
	}
	box, err := postboxFromModel(model)
	if err != nil {
		return domain.Postbox{}, false, err
	}
	return box, true, nil
}

// SavePostbox stores or replaces a postbox customization.
func (s *GormStore) SavePostbox(ctx context.Context, box domain.Postbox) error {
	model, err := postboxToModel(box)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pincode"}},
		DoUpdates: clause.AssignmentColumns([]string{"color", "pattern", "glow", "stickers", "decorations", "updated_at"}),
	}).Create(&model).Error
}

func withLetterRelations(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Sender").Preload("Receiver").Preload("Delivery")
}

func loadLetter(tx *gorm.DB, id string) (domain.Letter, bool, error) {
	var model LetterModel
	if err := withLetterRelations(tx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Letter{}, false, nil
		}
		return domain.Letter{}, false, err
	}
	return letterFromModel(model), true, nil
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Pincode:   m.Pincode,
		CreatedAt: m.CreatedAt,
	}
}

func letterToModel(l domain.Letter) (LetterModel, error) {
	strokes := l.BrushStrokes
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	rawStrokes, err := json.Marshal(strokes)
	if err != nil {
		return LetterModel{}, fmt.Errorf("encode strokes: %w", err)
	}
	return LetterModel{
		ID:              l.ID,
		Title:           l.Title,
		Content:         l.Content,
		SenderID:        l.SenderID,
		ReceiverID:      l.ReceiverID,
		ReceiverAddress: l.ReceiverAddress,
		DeliveryTime:    l.DeliveryTime.UTC(),
		IsDelivered:     l.IsDelivered,
		LetterColor:     l.LetterColor,
		EnvelopeColor:   l.EnvelopeColor,
		StampColor:      l.StampColor,
		StampDesign:     l.StampDesign,
		EnvelopeDesign:  l.EnvelopeDesign,
		HandwritingFont: l.HandwritingFont,
		InkColor:        l.InkColor,
		PaperTexture:    l.PaperTexture,
		PaperType:       l.PaperType,
		FoldStyle:       l.FoldStyle,
		EnvelopeTexture: l.EnvelopeTexture,
		CustomStamp:     l.CustomStamp,
		BrushStrokes:    rawStrokes,
		CreatedAt:       l.CreatedAt.UTC(),
		UpdatedAt:       l.UpdatedAt.UTC(),
	}, nil
}

func letterFromModel(m LetterModel) domain.Letter {
	letter := domain.Letter{
		ID:              m.ID,
		Title:           m.Title,
		Content:         m.Content,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		ReceiverAddress: m.ReceiverAddress,
		DeliveryTime:    m.DeliveryTime.UTC(),
		IsDelivered:     m.IsDelivered,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
		LetterStyle: domain.LetterStyle{
			LetterColor:     m.LetterColor,
			EnvelopeColor:   m.EnvelopeColor,
			StampColor:      m.StampColor,
			StampDesign:     m.StampDesign,
			EnvelopeDesign:  m.EnvelopeDesign,
			HandwritingFont: m.HandwritingFont,
			InkColor:        m.InkColor,
			PaperTexture:    m.PaperTexture,
			PaperType:       m.PaperType,
			FoldStyle:       m.FoldStyle,
			EnvelopeTexture: m.EnvelopeTexture,
			CustomStamp:     m.CustomStamp,
		},
		BrushStrokes: DecodeStrokes(m.BrushStrokes),
	}
	if m.Sender != nil {
		u := userFromModel(*m.Sender)
		letter.Sender = &u
	}
	if m.Receiver != nil {
		u := userFromModel(*m.Receiver)
		letter.Receiver = &u
	}
	if m.Delivery != nil {
		d := deliveryFromModel(*m.Delivery)
		letter.Delivery = &d
	}
	return letter
}

// DecodeStrokes parses a stored overlay blob. Empty or unreadable blobs yield
// an empty slice.
func DecodeStrokes(raw []byte) []domain.Stroke {
	strokes := []domain.Stroke{}
	if len(raw) == 0 {
		return strokes
	}
	if err := json.Unmarshal(raw, &strokes); err != nil || strokes == nil {
		return []domain.Stroke{}
	}
	return strokes
}

func deliveryFromModel(m DeliveryModel) domain.Delivery {
	d := domain.Delivery{
		ID:        m.ID,
		LetterID:  m.LetterID,
		Status:    domain.DeliveryStatus(m.Status),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.DeliveredAt != nil {
		at := m.DeliveredAt.UTC()
		d.DeliveredAt = &at
	}
	return d
}

func postboxToModel(b domain.Postbox) (PostboxModel, error) {
	stickers := b.Stickers
	if stickers == nil {
		stickers = []domain.Sticker{}
	}
	decorations := b.Decorations
	if decorations == nil {
		decorations = []domain.Decoration{}
	}
	rawStickers, err := json.Marshal(stickers)
	if err != nil {
		return PostboxModel{}, fmt.Errorf("encode stickers: %w", err)
	}
	rawDecorations, err := json.Marshal(decorations)
	if err != nil {
		return PostboxModel{}, fmt.Errorf("encode decorations: %w", err)
	}
	return PostboxModel{
		Pincode:     b.Pincode,
		Color:       b.Color,
		Pattern:     b.Pattern,
		Glow:        b.Glow,
		Stickers:    rawStickers,
		Decorations: rawDecorations,
		UpdatedAt:   b.UpdatedAt.UTC(),
	}, nil
}

// postboxFromModel fails on unreadable sticker or decoration blobs. Unlike
// strokes, a postbox is rewritten as a whole on save, so a corrupt row is
// reported instead of silently reset.
func postboxFromModel(m PostboxModel) (domain.Postbox, error) {
	box := domain.Postbox{
		Pincode:     m.Pincode,
		Color:       m.Color,
		Pattern:     m.Pattern,
		Glow:        m.Glow,
		Stickers:    []domain.Sticker{},
		Decorations: []domain.Decoration{},
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
	if len(m.Stickers) > 0 {
		if err := json.Unmarshal(m.Stickers, &box.Stickers); err != nil {
			return domain.Postbox{}, fmt.Errorf("decode stickers for %s: %w", m.Pincode, err)
		}
	}
	if len(m.Decorations) > 0 {
		if err := json.Unmarshal(m.Decorations, &box.Decorations); err != nil {
			return domain.Postbox{}, fmt.Errorf("decode decorations for %s: %w", m.Pincode, err)
		}
	}
	if box.Stickers == nil {
		box.Stickers = []domain.Sticker{}
	}
	if box.Decorations == nil {
		box.Decorations = []domain.Decoration{}
	}
	return box, nil
}

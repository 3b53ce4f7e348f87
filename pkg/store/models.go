package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        string    `gorm:"primaryKey"`
	Pincode   string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type LetterModel struct {
	ID              string         `gorm:"primaryKey"`
	Title           string         `gorm:"not null"`
	Content         string         `gorm:"type:text;not null"`
	SenderID        string         `gorm:"not null;index"`
	ReceiverID      string         `gorm:"not null;index"`
	ReceiverAddress string         `gorm:"not null"`
	DeliveryTime    time.Time      `gorm:"not null;index"`
	IsDelivered     bool           `gorm:"not null;default:false"`
	LetterColor     string
	EnvelopeColor   string
	StampColor      string
	StampDesign     string
	EnvelopeDesign  string
	HandwritingFont string
	InkColor        string
	PaperTexture    string
	PaperType       string
	FoldStyle       string
	EnvelopeTexture string
	CustomStamp     string
	BrushStrokes    datatypes.JSON
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`

	Sender   *UserModel     `gorm:"foreignKey:SenderID;constraint:OnDelete:RESTRICT"`
	Receiver *UserModel     `gorm:"foreignKey:ReceiverID;constraint:OnDelete:RESTRICT"`
	Delivery *DeliveryModel `gorm:"foreignKey:LetterID;constraint:OnDelete:CASCADE"`
}

type DeliveryModel struct {
	ID          string `gorm:"primaryKey"`
	LetterID    string `gorm:"uniqueIndex;not null"`
	Status      string `gorm:"not null"`
	DeliveredAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type PostboxModel struct {
	Pincode     string `gorm:"primaryKey"`
	Color       string `gorm:"not null"`
	Pattern     string `gorm:"not null"`
	Glow        bool   `gorm:"not null;default:false"`
	Stickers    datatypes.JSON
	Decorations datatypes.JSON
	UpdatedAt   time.Time `gorm:"not null"`
}

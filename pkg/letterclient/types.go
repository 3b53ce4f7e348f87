package letterclient

import (
	"strconv"
	"time"

	"letterbox/pkg/domain"
)

// DelayDays is a delivery delay in fractional days. It is sent as a JSON
// number.
type DelayDays float64

// Seconds returns the delay rounded to whole seconds.
func (d DelayDays) Seconds() int64 {
	return int64(float64(d)*86400 + 0.5)
}

func (d DelayDays) String() string {
	return strconv.FormatFloat(float64(d), 'f', -1, 64)
}

// CreateLetterRequest is the body of POST /letters.
type CreateLetterRequest struct {
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	SenderPincode   string    `json:"senderPincode"`
	ReceiverPincode string    `json:"receiverPincode"`
	ReceiverAddress string    `json:"receiverAddress"`
	DeliveryTime    DelayDays `json:"deliveryTime"`
	domain.LetterStyle
	BrushStrokes []domain.Stroke `json:"brushStrokes,omitempty"`
}

// CreateLetterResponse is the 201 body of POST /letters.
type CreateLetterResponse struct {
	Message         string    `json:"message"`
	LetterID        string    `json:"letterId"`
	DeliveryTime    time.Time `json:"deliveryTime"`
	DeliverySeconds int64     `json:"deliverySeconds"`
}

// UserResponse is the body of POST /users.
type UserResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Created bool   `json:"-"`
}

// DeliverResponse is the 200 body of the deliver endpoints.
type DeliverResponse struct {
	Message string        `json:"message"`
	Letter  domain.Letter `json:"letter"`
}

package app

import (
	"errors"
	"time"
)

var (
	ErrMissingFields         = errors.New("missing required fields")
	ErrInvalidDeliveryTime   = errors.New("invalid delivery time")
	ErrInvalidPincode        = errors.New("invalid pincode")
	ErrPincodeRequired       = errors.New("pincode is required")
	ErrPincodeFilterRequired = errors.New("receiver or sender pincode is required")
	ErrLetterNotFound        = errors.New("letter not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrOverlayNotFound       = errors.New("overlay not found")
	ErrInvalidPostbox        = errors.New("invalid postbox")
)

// NotReadyError rejects a deliver call made before the delivery time.
type NotReadyError struct {
	DeliveryTime time.Time
	CurrentTime  time.Time
}

func (e *NotReadyError) Error() string {
	return "letter is not ready for delivery yet"
}

// InvalidPostboxError carries the validation messages of a postbox update.
type InvalidPostboxError struct {
	Reason string
}

func (e *InvalidPostboxError) Error() string {
	return "invalid postbox: " + e.Reason
}

func (e *InvalidPostboxError) Unwrap() error {
	return ErrInvalidPostbox
}

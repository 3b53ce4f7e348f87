package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 86400

// maxDelaySeconds is the widest offset a time.Duration can carry.
const maxDelaySeconds = float64(math.MaxInt64 / int64(time.Second))

// parseDelayDays accepts a JSON number or a numeric string of fractional
// days. Negative delays are allowed and make the letter ready at once.
// Timestamps, NaN, infinities and offsets beyond the time.Duration range are
// rejected.
func parseDelayDays(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: missing", ErrInvalidDeliveryTime)
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidDeliveryTime, err)
		}
	} else {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDeliveryTime)
	}
	days, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidDeliveryTime, text)
	}
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidDeliveryTime, text)
	}
	if math.Abs(days*secondsPerDay) > maxDelaySeconds {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidDeliveryTime, text)
	}
	return days, nil
}

// delaySeconds rounds a day count to whole seconds.
func delaySeconds(days float64) int64 {
	return int64(math.Round(days * secondsPerDay))
}

func delayDuration(days float64) time.Duration {
	return time.Duration(delaySeconds(days)) * time.Second
}

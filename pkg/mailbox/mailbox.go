// Package mailbox splits a receiver's letters into what can be opened now and
// what is still in transit.
package mailbox

import (
	"strconv"
	"time"

	"letterbox/pkg/domain"
)

// DefaultClamp is the longest wait, in whole hours, shown as pending. Letters
// further out were written with a wrong delay unit and are treated as ready.
const DefaultClamp = 8760 * time.Hour

// Pending is a letter still in transit.
type Pending struct {
	Letter    domain.Letter `json:"letter"`
	Remaining time.Duration `json:"-"`
	// RemainingSeconds mirrors Remaining for JSON clients.
	RemainingSeconds int64 `json:"remainingSeconds"`
}

// View is the partitioned mailbox.
type View struct {
	Ready       []domain.Letter `json:"ready"`
	Pending     []Pending       `json:"pending"`
	UnreadCount int             `json:"unreadCount"`
}

// Partition classifies letters at now. Input order is kept in both lists.
// A non-positive clamp selects DefaultClamp.
func Partition(letters []domain.Letter, now time.Time, clamp time.Duration) View {
	if clamp <= 0 {
		clamp = DefaultClamp
	}
	v := View{Ready: []domain.Letter{}, Pending: []Pending{}}
	for _, l := range letters {
		remaining := l.Remaining(now)
		if remaining > 0 && remaining.Truncate(time.Hour) <= clamp {
			v.Pending = append(v.Pending, Pending{
				Letter:           l,
				Remaining:        remaining,
				RemainingSeconds: int64((remaining + time.Second - 1) / time.Second),
			})
			continue
		}
		v.Ready = append(v.Ready, l)
		if !l.IsDelivered {
			v.UnreadCount++
		}
	}
	return v
}

// Countdown formats a wait as "5h 3m", "3m 20s" or "20s", flooring each
// unit. Hours are not folded into days.
func Countdown(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second
	switch {
	case hours > 0:
		return itoa(hours) + "h " + itoa(minutes) + "m"
	case minutes > 0:
		return itoa(minutes) + "m " + itoa(seconds) + "s"
	default:
		return itoa(seconds) + "s"
	}
}

func itoa(d time.Duration) string {
	return strconv.FormatInt(int64(d), 10)
}

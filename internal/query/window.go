package query

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/onnwee/geotrips/internal/keys"
)

// ErrInvalidWindow is returned when a days_back string does not parse as
// Nd or Nw with N >= 0.
var ErrInvalidWindow = errors.New("query: invalid window")

// Window is a trailing time range expressed as Nd (N days ending today) or
// Nw (N weeks ending this ISO week). N=0 denotes the current period only.
type Window struct {
	Days bool // true for Nd, false for Nw
	N    int
}

// ParseWindow parses a days_back string like "0d" or "3w".
func ParseWindow(s string) (Window, error) {
	if len(s) < 2 {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	switch unit {
	case 'd', 'D':
		return Window{Days: true, N: n}, nil
	case 'w', 'W':
		return Window{Days: false, N: n}, nil
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
}

// Periods renders the window's trailing sub-keys relative to now: the date
// keys for a day window, or the week keys for a week window. N=0 yields a
// single current-period entry; N>0 yields N entries, the current period and
// N-1 prior ones, stepping one day at a time for Nd and seven days at a
// time for Nw.
func (w Window) Periods(now time.Time) []string {
	count := w.N
	if count == 0 {
		count = 1
	}
	periods := make([]string, count)
	for i := 0; i < count; i++ {
		if w.Days {
			periods[i] = keys.DateKey(now.AddDate(0, 0, -i))
		} else {
			periods[i] = keys.WeekKey(now.AddDate(0, 0, -7*i))
		}
	}
	return periods
}

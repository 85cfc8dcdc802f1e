package dashboard

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownPeriod is returned for a period type other than day, week or
// month.
var ErrUnknownPeriod = errors.New("unknown period type")

// Period types.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// PeriodBounds returns the [start, end) window of the period containing ref,
// in ref's location. Weeks start on Monday.
func PeriodBounds(periodType string, ref time.Time) (time.Time, time.Time, error) {
	y, m, d := ref.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, ref.Location())
	switch periodType {
	case PeriodDay:
		return day, day.AddDate(0, 0, 1), nil
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, ref.Location())
		return start, start.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w %q (want day, week or month)", ErrUnknownPeriod, periodType)
}

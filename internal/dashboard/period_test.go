package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodBounds(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	tests := []struct {
		name       string
		period     string
		ref        time.Time
		start, end time.Time
	}{
		{"day", PeriodDay, time.Date(2025, 3, 5, 15, 4, 0, 0, loc),
			time.Date(2025, 3, 5, 0, 0, 0, 0, loc), time.Date(2025, 3, 6, 0, 0, 0, 0, loc)},
		{"week from wednesday", PeriodWeek, time.Date(2025, 3, 5, 15, 4, 0, 0, loc),
			time.Date(2025, 3, 3, 0, 0, 0, 0, loc), time.Date(2025, 3, 10, 0, 0, 0, 0, loc)},
		{"week from sunday", PeriodWeek, time.Date(2025, 3, 9, 23, 59, 0, 0, loc),
			time.Date(2025, 3, 3, 0, 0, 0, 0, loc), time.Date(2025, 3, 10, 0, 0, 0, 0, loc)},
		{"week from monday", PeriodWeek, time.Date(2025, 3, 10, 0, 0, 0, 0, loc),
			time.Date(2025, 3, 10, 0, 0, 0, 0, loc), time.Date(2025, 3, 17, 0, 0, 0, 0, loc)},
		{"month across year", PeriodMonth, time.Date(2024, 12, 31, 8, 0, 0, 0, loc),
			time.Date(2024, 12, 1, 0, 0, 0, 0, loc), time.Date(2025, 1, 1, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := PeriodBounds(tt.period, tt.ref)
			require.NoError(t, err)
			assert.True(t, start.Equal(tt.start), "start %s", start)
			assert.True(t, end.Equal(tt.end), "end %s", end)
			assert.False(t, tt.ref.Before(start))
			assert.True(t, tt.ref.Before(end))
		})
	}

	_, _, err := PeriodBounds("quarter", time.Now())
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

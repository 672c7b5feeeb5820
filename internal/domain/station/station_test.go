package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("08:30")
	require.NoError(t, err)
	assert.Equal(t, "08:30", tod.String())

	for _, bad := range []string{"", "8h30", "24:00", "12:60", "-1:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTime, "input %q", bad)
	}
}

func TestWithinHours(t *testing.T) {
	open, _ := ParseTimeOfDay("08:00")
	closeAt, _ := ParseTimeOfDay("20:00")
	s, err := NewStation(CreateParams{ID: "st-1", Name: "District 1", OpensAt: open, ClosesAt: closeAt})
	require.NoError(t, err)

	ok, _ := ParseTimeOfDay("08:00")
	assert.NoError(t, s.WithinHours(ok))
	ok, _ = ParseTimeOfDay("20:00")
	assert.NoError(t, s.WithinHours(ok))

	early, _ := ParseTimeOfDay("07:59")
	assert.ErrorIs(t, s.WithinHours(early), ErrStationClosed)
	late, _ := ParseTimeOfDay("20:01")
	assert.ErrorIs(t, s.WithinHours(late), ErrStationClosed)
}

func TestNewStationRejectsInvertedHours(t *testing.T) {
	open, _ := ParseTimeOfDay("20:00")
	closeAt, _ := ParseTimeOfDay("08:00")
	_, err := NewStation(CreateParams{ID: "st-1", Name: "District 1", OpensAt: open, ClosesAt: closeAt})
	assert.ErrorIs(t, err, ErrInvalidHours)
}

package station

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("station: not found")
	ErrNameRequired  = errors.New("station: name is required")
	ErrInvalidHours  = errors.New("station: closing time must be after opening time")
	ErrInvalidTime   = errors.New("station: invalid time of day, expected HH:MM")
	ErrStationClosed = errors.New("station: time falls outside operating hours")
)

type ID string

// TimeOfDay is a clock time within a day, stored as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.TrimSpace(value)
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, ErrInvalidTime
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, ErrInvalidTime
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Before(other TimeOfDay) bool { return t < other }

// OnDate anchors the time of day onto the given calendar date in UTC.
func (t TimeOfDay) OnDate(date time.Time) time.Time {
	date = date.UTC()
	return time.Date(date.Year(), date.Month(), date.Day(), int(t)/60, int(t)%60, 0, 0, time.UTC)
}

// Station is a physical pickup/return location with operating hours.
type Station struct {
	ID        ID
	Name      string
	Address   string
	OpensAt   TimeOfDay
	ClosesAt  TimeOfDay
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateParams struct {
	ID        ID
	Name      string
	Address   string
	OpensAt   TimeOfDay
	ClosesAt  TimeOfDay
	CreatedAt time.Time
}

func NewStation(params CreateParams) (*Station, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, ErrNameRequired
	}
	if params.ClosesAt <= params.OpensAt {
		return nil, ErrInvalidHours
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Station{
		ID:        params.ID,
		Name:      strings.TrimSpace(params.Name),
		Address:   strings.TrimSpace(params.Address),
		OpensAt:   params.OpensAt,
		ClosesAt:  params.ClosesAt,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// WithinHours checks a pickup or return time against operating hours.
func (s *Station) WithinHours(t TimeOfDay) error {
	if t < s.OpensAt || t > s.ClosesAt {
		return ErrStationClosed
	}
	return nil
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Station, error)
	Save(ctx context.Context, station *Station) error
}

// Package availability computes the bookable slot labels for a doctor on a
// given day. The grid depends only on configuration, never on the doctor.
package availability

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	labelLayout = "15:04"
)

var (
	ErrInvalidDate = errors.New("date must be formatted YYYY-MM-DD")
	ErrPastDate    = errors.New("date is in the past")
	ErrInvalidGrid = errors.New("invalid slot grid")
)

// Grid is the fixed daily list of slot labels, e.g. 09:00, 09:30, ... 16:30.
type Grid struct {
	labels []string
	index  map[string]int
}

// NewGrid builds labels from dayStart (inclusive) to dayEnd (exclusive) every step.
func NewGrid(dayStart, dayEnd string, step time.Duration) (Grid, error) {
	start, err := time.Parse(labelLayout, dayStart)
	if err != nil {
		return Grid{}, fmt.Errorf("%w: start %q", ErrInvalidGrid, dayStart)
	}
	end, err := time.Parse(labelLayout, dayEnd)
	if err != nil {
		return Grid{}, fmt.Errorf("%w: end %q", ErrInvalidGrid, dayEnd)
	}
	if step < time.Minute || step%time.Minute != 0 {
		return Grid{}, fmt.Errorf("%w: step must be a whole number of minutes", ErrInvalidGrid)
	}
	if !end.After(start) {
		return Grid{}, fmt.Errorf("%w: end must be after start", ErrInvalidGrid)
	}

	g := Grid{index: map[string]int{}}
	for t := start; t.Before(end); t = t.Add(step) {
		label := t.Format(labelLayout)
		g.index[label] = len(g.labels)
		g.labels = append(g.labels, label)
	}
	return g, nil
}

// DefaultGrid is 09:00 to 17:00 in 30 minute steps.
func DefaultGrid() Grid {
	g, _ := NewGrid("09:00", "17:00", 30*time.Minute)
	return g
}

func (g Grid) Labels() []string {
	return append([]string(nil), g.labels...)
}

func (g Grid) Contains(label string) bool {
	_, ok := g.index[label]
	return ok
}

// ParseDate parses a calendar date at midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

type options struct {
	now *time.Time
}

type Option func(*options)

// WithNow also drops slots that have already started when date is today.
func WithNow(now time.Time) Option {
	return func(o *options) { o.now = &now }
}

// AvailableSlots returns the grid minus booked labels in ascending order.
// Booked labels that are not on the grid are ignored. A date before today
// is rejected with ErrPastDate.
func (g Grid) AvailableSlots(date time.Time, booked []string, today time.Time, opts ...Option) ([]string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	day := truncateDay(date)
	if day.Before(truncateDay(today.In(date.Location()))) {
		return nil, ErrPastDate
	}

	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	var cutoff string
	if o.now != nil {
		now := o.now.In(date.Location())
		if truncateDay(now).Equal(day) {
			cutoff = now.Format(labelLayout)
		}
	}

	slots := make([]string, 0, len(g.labels))
	for _, label := range g.labels {
		if _, ok := taken[label]; ok {
			continue
		}
		// Labels are zero padded so lexical order matches clock order.
		if cutoff != "" && label <= cutoff {
			continue
		}
		slots = append(slots, label)
	}
	return slots, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

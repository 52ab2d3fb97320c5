package service

import (
	"fmt"
	"time"
)

// Period is the half-open range [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

func MonthPeriod(year int, month time.Month, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Period{From: from, To: from.AddDate(0, 1, 0)}
}

func (p Period) Validate() error {
	if p.From.IsZero() || p.To.IsZero() || !p.From.Before(p.To) {
		return fmt.Errorf("%w: period start must precede its end", ErrValidation)
	}
	return nil
}

// Days counts calendar days in the period; a partial day counts as one.
func (p Period) Days() int64 {
	if !p.From.Before(p.To) {
		return 0
	}
	span := p.To.Sub(p.From)
	days := int64(span / (24 * time.Hour))
	if span%(24*time.Hour) != 0 {
		days++
	}
	return days
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

package domain

import (
	"time"

	"equiprent-backend/internal/utils"
)

// DateRange is an inclusive range of calendar days. Both Start and End are
// normalised to UTC midnight.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange normalises start and end to calendar days and validates the result.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: utils.TruncateDay(start), End: utils.TruncateDay(end)}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// MustDateRange is NewDateRange for literals known to be valid.
func MustDateRange(start, end time.Time) DateRange {
	r, err := NewDateRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() || r.End.Before(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Days counts both boundary dates: a range starting and ending on the same day is one day long.
func (r DateRange) Days() int {
	return utils.RentalDays(r.Start, r.End)
}

func (r DateRange) Overlaps(o DateRange) bool {
	return !r.End.Before(o.Start) && !o.End.Before(r.Start)
}

func (r DateRange) Contains(day time.Time) bool {
	day = utils.TruncateDay(day)
	return !day.Before(r.Start) && !day.After(r.End)
}

// Intersect returns the days shared by both ranges.
func (r DateRange) Intersect(o DateRange) (DateRange, bool) {
	if !r.Overlaps(o) {
		return DateRange{}, false
	}
	out := r
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	if o.End.Before(out.End) {
		out.End = o.End
	}
	return out, true
}

// WithEnd returns a copy of r ending on end.
func (r DateRange) WithEnd(end time.Time) DateRange {
	return DateRange{Start: r.Start, End: utils.TruncateDay(end)}
}

func (r DateRange) String() string {
	return r.Start.Format(utils.DateLayout) + ".." + r.End.Format(utils.DateLayout)
}

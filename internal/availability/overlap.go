package availability

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"equiprent-backend/internal/domain"
)

// OverlapIndex answers overlap questions about the active commitments of one item.
type OverlapIndex struct {
	commitments []domain.Commitment
}

// NewOverlapIndex keeps the active commitments of cs, skipping any that belong to ignore.
func NewOverlapIndex(cs []domain.Commitment, ignore uuid.UUID) *OverlapIndex {
	kept := make([]domain.Commitment, 0, len(cs))
	for _, c := range cs {
		if !c.Active() {
			continue
		}
		if ignore != uuid.Nil && c.GroupID == ignore {
			continue
		}
		kept = append(kept, c)
	}
	return &OverlapIndex{commitments: kept}
}

type boundary struct {
	at    time.Time
	delta int
}

// PeakQuantity is the highest quantity committed on any single day of r.
// Commitments are clipped to r and swept in boundary order; a commitment
// stops counting the day after its end date, and releases at an instant are
// applied before starts so back-to-back rentals do not stack.
func (x *OverlapIndex) PeakQuantity(r domain.DateRange) int {
	events := make([]boundary, 0, 2*len(x.commitments))
	for _, c := range x.commitments {
		iv, ok := c.Range.Intersect(r)
		if !ok {
			continue
		}
		events = append(events,
			boundary{at: iv.Start, delta: c.Quantity},
			boundary{at: iv.End.AddDate(0, 0, 1), delta: -c.Quantity},
		)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].delta < events[j].delta
	})

	running, peak := 0, 0
	for _, e := range events {
		running += e.delta
		if running > peak {
			peak = running
		}
	}
	return peak
}

// ConsumedUnits returns the ids of units held by a commitment overlapping r.
func (x *OverlapIndex) ConsumedUnits(r domain.DateRange) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, c := range x.commitments {
		if c.UnitID == nil || !c.Range.Overlaps(r) {
			continue
		}
		out[*c.UnitID] = struct{}{}
	}
	return out
}

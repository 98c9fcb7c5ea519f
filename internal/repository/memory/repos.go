package memory

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"equiprent-backend/internal/domain"
)

type itemRepository struct {
	st *state
}

func (r *itemRepository) GetItem(_ context.Context, id int64) (*domain.RentableItem, error) {
	item, ok := r.st.items[id]
	if !ok {
		return nil, domain.ErrUnknownItem
	}
	return &item, nil
}

func (r *itemRepository) ListUnits(_ context.Context, itemID int64) ([]domain.InventoryUnit, error) {
	var out []domain.InventoryUnit
	for _, u := range r.st.units {
		if u.ItemID == itemID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *itemRepository) UpdateUnitStatus(_ context.Context, unitID int64, status domain.UnitStatus) error {
	u, ok := r.st.units[unitID]
	if !ok {
		return domain.ErrUnknownUnit
	}
	u.Status = status
	r.st.units[unitID] = u
	r.st.dirtyUnits[unitID] = true
	return nil
}

func (r *itemRepository) GetKit(_ context.Context, id int64) (*domain.Kit, error) {
	kit, ok := r.st.kits[id]
	if !ok {
		return nil, domain.ErrUnknownKit
	}
	return &kit, nil
}

func (r *itemRepository) GetVariant(_ context.Context, id int64) (*domain.Variant, error) {
	v, ok := r.st.variants[id]
	if !ok {
		return nil, domain.ErrUnknownVariant
	}
	return &v, nil
}

type ruleRepository struct {
	st *state
}

func (r *ruleRepository) ListRules(_ context.Context, scope domain.RuleScope) ([]domain.PricingRule, error) {
	var out []domain.PricingRule
	for _, rule := range r.st.rules {
		if rule.AppliesTo(scope) {
			out = append(out, rule)
		}
	}
	return out, nil
}

type commitmentRepository struct {
	st  *state
	ids *atomic.Int64
}

func sortedCommitments(cs map[int64]domain.Commitment, keep func(domain.Commitment) bool) []domain.Commitment {
	var out []domain.Commitment
	for _, c := range cs {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *commitmentRepository) ListActive(_ context.Context, itemID int64, rng domain.DateRange) ([]domain.Commitment, error) {
	return sortedCommitments(r.st.commitments, func(c domain.Commitment) bool {
		return c.ItemID == itemID && c.Active() && c.Range.Overlaps(rng)
	}), nil
}

func (r *commitmentRepository) ListByGroup(_ context.Context, groupID uuid.UUID) ([]domain.Commitment, error) {
	return sortedCommitments(r.st.commitments, func(c domain.Commitment) bool { return c.GroupID == groupID }), nil
}

func (r *commitmentRepository) ListByBooking(_ context.Context, bookingID int64) ([]domain.Commitment, error) {
	return sortedCommitments(r.st.commitments, func(c domain.Commitment) bool { return c.BookingID == bookingID }), nil
}

func (r *commitmentRepository) Create(_ context.Context, c *domain.Commitment) error {
	c.ID = r.ids.Add(1)
	if c.CreatedOn.IsZero() {
		c.CreatedOn = time.Now()
	}
	r.st.commitments[c.ID] = *c
	r.st.dirtyCommitments[c.ID] = true
	return nil
}

func (r *commitmentRepository) Update(_ context.Context, c *domain.Commitment) error {
	cur, ok := r.st.commitments[c.ID]
	if !ok {
		return domain.ErrUnknownCommitment
	}
	cur.UnitID = c.UnitID
	cur.Quantity = c.Quantity
	cur.LineQuantity = c.LineQuantity
	cur.Range = c.Range
	r.st.commitments[c.ID] = cur
	r.st.dirtyCommitments[c.ID] = true
	return nil
}

func (r *commitmentRepository) Release(_ context.Context, groupID uuid.UUID, at time.Time) (int64, error) {
	var n int64
	for id, c := range r.st.commitments {
		if c.GroupID != groupID || c.ReleasedOn != nil {
			continue
		}
		released := at
		c.ReleasedOn = &released
		r.st.commitments[id] = c
		r.st.dirtyCommitments[id] = true
		n++
	}
	return n, nil
}

func (r *commitmentRepository) UpdateBookingStatus(_ context.Context, bookingID int64, status domain.BookingStatus) error {
	for id, c := range r.st.commitments {
		if c.BookingID != bookingID {
			continue
		}
		c.BookingStatus = status
		r.st.commitments[id] = c
		r.st.dirtyCommitments[id] = true
	}
	return nil
}

func (r *commitmentRepository) ListCancelledGroups(_ context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, c := range sortedCommitments(r.st.commitments, func(c domain.Commitment) bool {
		return c.BookingStatus == domain.BookingStatusCancelled && c.ReleasedOn == nil
	}) {
		if !seen[c.GroupID] {
			seen[c.GroupID] = true
			out = append(out, c.GroupID)
		}
	}
	return out, nil
}

func (r *commitmentRepository) PurgeReleased(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, c := range r.st.commitments {
		if c.ReleasedOn != nil && c.ReleasedOn.Before(before) {
			delete(r.st.commitments, id)
			r.st.dirtyCommitments[id] = true
			n++
		}
	}
	return n, nil
}

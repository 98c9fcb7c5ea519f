package availability

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equiprent-backend/internal/domain"
)

type fakeInventory struct {
	items       map[int64]*domain.RentableItem
	units       map[int64][]domain.InventoryUnit
	commitments []domain.Commitment
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		items: make(map[int64]*domain.RentableItem),
		units: make(map[int64][]domain.InventoryUnit),
	}
}

func (f *fakeInventory) GetItem(_ context.Context, id int64) (*domain.RentableItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, domain.ErrUnknownItem
	}
	return item, nil
}

func (f *fakeInventory) ListUnits(_ context.Context, itemID int64) ([]domain.InventoryUnit, error) {
	return f.units[itemID], nil
}

func (f *fakeInventory) ListActive(_ context.Context, itemID int64, r domain.DateRange) ([]domain.Commitment, error) {
	var out []domain.Commitment
	for _, c := range f.commitments {
		if c.ItemID == itemID && c.Active() && c.Range.Overlaps(r) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeInventory) addPool(id int64, qty int) {
	f.items[id] = &domain.RentableItem{
		ID:           id,
		Name:         "pool item",
		TrackingMode: domain.TrackingModePool,
		PoolQuantity: qty,
		DailyRate:    decimal.NewFromInt(50),
		Currency:     "USD",
	}
}

func (f *fakeInventory) commit(itemID int64, qty int, r domain.DateRange) uuid.UUID {
	group := uuid.New()
	f.commitments = append(f.commitments, domain.Commitment{
		GroupID:       group,
		BookingStatus: domain.BookingStatusConfirmed,
		ItemID:        itemID,
		Quantity:      qty,
		Range:         r,
	})
	return group
}

func (f *fakeInventory) commitUnit(itemID, unitID int64, r domain.DateRange) {
	id := unitID
	f.commitments = append(f.commitments, domain.Commitment{
		GroupID:       uuid.New(),
		BookingStatus: domain.BookingStatusPending,
		ItemID:        itemID,
		UnitID:        &id,
		Quantity:      1,
		Range:         r,
	})
}

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func rng(m time.Month, from, to int) domain.DateRange {
	return domain.MustDateRange(day(m, from), day(m, to))
}

func TestEngine_AvailableQuantity_Pool(t *testing.T) {
	ctx := context.Background()

	t.Run("Only the overlapping days count", func(t *testing.T) {
		inv := newFakeInventory()
		inv.addPool(1, 3)
		inv.commit(1, 2, rng(time.March, 1, 5))
		e := NewEngine(inv, inv)

		avail, err := e.AvailableQuantity(ctx, 1, rng(time.March, 3, 10))
		require.NoError(t, err)
		assert.Equal(t, 1, avail)

		ok, err := e.IsAvailable(ctx, 1, rng(time.March, 3, 10), 2)
		require.NoError(t, err)
		assert.False(t, ok)

		avail, err = e.AvailableQuantity(ctx, 1, rng(time.March, 6, 10))
		require.NoError(t, err)
		assert.Equal(t, 3, avail)
	})

	t.Run("Staggered commitments use the peak, not the sum", func(t *testing.T) {
		inv := newFakeInventory()
		inv.addPool(1, 3)
		inv.commit(1, 2, rng(time.March, 1, 3))
		inv.commit(1, 2, rng(time.March, 4, 6))
		e := NewEngine(inv, inv)

		avail, err := e.AvailableQuantity(ctx, 1, rng(time.March, 1, 6))
		require.NoError(t, err)
		assert.Equal(t, 1, avail)
	})

	t.Run("Shared boundary day overlaps", func(t *testing.T) {
		inv := newFakeInventory()
		inv.addPool(1, 5)
		inv.commit(1, 2, rng(time.March, 1, 3))
		inv.commit(1, 2, rng(time.March, 3, 5))
		e := NewEngine(inv, inv)

		avail, err := e.AvailableQuantity(ctx, 1, rng(time.March, 1, 5))
		require.NoError(t, err)
		assert.Equal(t, 1, avail)
	})

	t.Run("Inactive commitments are ignored", func(t *testing.T) {
		inv := newFakeInventory()
		inv.addPool(1, 2)
		released := time.Now()
		inv.commitments = append(inv.commitments,
			domain.Commitment{ItemID: 1, Quantity: 2, Range: rng(time.March, 1, 5), BookingStatus: domain.BookingStatusCancelled},
			domain.Commitment{ItemID: 1, Quantity: 2, Range: rng(time.March, 1, 5), BookingStatus: domain.BookingStatusDraft},
			domain.Commitment{ItemID: 1, Quantity: 2, Range: rng(time.March, 1, 5), BookingStatus: domain.BookingStatusPaid, ReleasedOn: &released},
		)
		e := NewEngine(inv, inv)

		avail, err := e.AvailableQuantity(ctx, 1, rng(time.March, 1, 5))
		require.NoError(t, err)
		assert.Equal(t, 2, avail)
	})

	t.Run("Ignoring a group frees its quantity", func(t *testing.T) {
		inv := newFakeInventory()
		inv.addPool(1, 2)
		group := inv.commit(1, 2, rng(time.March, 1, 5))
		e := NewEngine(inv, inv)

		avail, err := e.Ignoring(group).AvailableQuantity(ctx, 1, rng(time.March, 1, 8))
		require.NoError(t, err)
		assert.Equal(t, 2, avail)
	})

	t.Run("Overcommitted pool reports zero", func(t *testing.T) {
		inv := newFakeInventory()
		inv.addPool(1, 1)
		inv.commit(1, 3, rng(time.March, 1, 5))
		e := NewEngine(inv, inv)

		avail, err := e.AvailableQuantity(ctx, 1, rng(time.March, 1, 5))
		require.NoError(t, err)
		assert.Equal(t, 0, avail)
	})
}

func TestEngine_InvalidInput(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInventory()
	inv.addPool(1, 3)
	e := NewEngine(inv, inv)

	_, err := e.AvailableQuantity(ctx, 1, domain.DateRange{Start: day(time.March, 5), End: day(time.March, 1)})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = e.IsAvailable(ctx, 1, rng(time.March, 1, 5), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = e.AllocateUnits(ctx, 1, rng(time.March, 1, 5), -1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = e.AvailableQuantity(ctx, 99, rng(time.March, 1, 5))
	assert.ErrorIs(t, err, domain.ErrUnknownItem)
}

func serializedInventory() *fakeInventory {
	inv := newFakeInventory()
	inv.items[7] = &domain.RentableItem{ID: 7, TrackingMode: domain.TrackingModeSerialized, PoolQuantity: 99, DailyRate: decimal.NewFromInt(80)}
	inv.units[7] = []domain.InventoryUnit{
		{ID: 14, ItemID: 7, Status: domain.UnitStatusAvailable},
		{ID: 11, ItemID: 7, Status: domain.UnitStatusAvailable},
		{ID: 12, ItemID: 7, Status: domain.UnitStatusInMaintenance},
		{ID: 13, ItemID: 7, Status: domain.UnitStatusCommitted},
		{ID: 15, ItemID: 7, Status: domain.UnitStatusRetired},
	}
	return inv
}

func TestEngine_Serialized(t *testing.T) {
	ctx := context.Background()

	t.Run("Counts free in-service units", func(t *testing.T) {
		inv := serializedInventory()
		inv.commitUnit(7, 13, rng(time.April, 1, 3))
		e := NewEngine(inv, inv)

		avail, err := e.AvailableQuantity(ctx, 7, rng(time.April, 2, 4))
		require.NoError(t, err)
		assert.Equal(t, 2, avail) // 11 and 14

		avail, err = e.AvailableQuantity(ctx, 7, rng(time.April, 4, 6))
		require.NoError(t, err)
		assert.Equal(t, 3, avail) // 13 is free again
	})

	t.Run("Allocation is deterministic", func(t *testing.T) {
		inv := serializedInventory()
		e := NewEngine(inv, inv)

		first, err := e.AllocateUnits(ctx, 7, rng(time.April, 1, 3), 2)
		require.NoError(t, err)
		again, err := e.AllocateUnits(ctx, 7, rng(time.April, 1, 3), 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{11, 13}, first)
		assert.Equal(t, first, again)
	})

	t.Run("Preferred units are kept", func(t *testing.T) {
		inv := serializedInventory()
		e := NewEngine(inv, inv)

		units, err := e.AllocatePreferring(ctx, 7, rng(time.April, 1, 3), 2, []int64{14})
		require.NoError(t, err)
		assert.Equal(t, []int64{14, 11}, units)
	})

	t.Run("Insufficient units", func(t *testing.T) {
		inv := serializedInventory()
		inv.commitUnit(7, 11, rng(time.April, 1, 10))
		e := NewEngine(inv, inv)

		units, err := e.AllocateUnits(ctx, 7, rng(time.April, 5, 6), 3)
		assert.Nil(t, units)
		var insufficient *domain.InsufficientInventoryError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, 2, insufficient.Available)
		assert.Equal(t, 3, insufficient.Requested)
		assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	})

	t.Run("Pool items allocate without units", func(t *testing.T) {
		inv := newFakeInventory()
		inv.addPool(1, 2)
		e := NewEngine(inv, inv)

		units, err := e.AllocateUnits(ctx, 1, rng(time.April, 1, 2), 2)
		require.NoError(t, err)
		assert.Nil(t, units)

		_, err = e.AllocateUnits(ctx, 1, rng(time.April, 1, 2), 3)
		assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	})
}

func TestEngine_KitComposition(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInventory()
	inv.addPool(1, 5)
	inv.addPool(2, 7)
	e := NewEngine(inv, inv)
	r := rng(time.May, 1, 3)

	t.Run("Minimum of floored component availability", func(t *testing.T) {
		kit := domain.KitBookable{Kit: &domain.Kit{ID: 1, Components: []domain.KitComponent{
			{ItemID: 1, Multiplier: 2},
			{ItemID: 2, Multiplier: 3},
		}}}
		avail, err := e.AvailableForDemand(ctx, kit.Demand(), r)
		require.NoError(t, err)
		assert.Equal(t, 2, avail) // min(5/2, 7/3)

		ok, err := e.IsAvailableForDemand(ctx, kit.Demand(), r, 3)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Duplicate components are merged", func(t *testing.T) {
		kit := domain.KitBookable{Kit: &domain.Kit{ID: 2, Components: []domain.KitComponent{
			{ItemID: 1, Multiplier: 1},
			{ItemID: 1, Multiplier: 1},
		}}}
		avail, err := e.AvailableForDemand(ctx, kit.Demand(), r)
		require.NoError(t, err)
		assert.Equal(t, 2, avail)
	})

	t.Run("Empty kit is never available", func(t *testing.T) {
		kit := domain.KitBookable{Kit: &domain.Kit{ID: 3}}
		avail, err := e.AvailableForDemand(ctx, kit.Demand(), r)
		require.NoError(t, err)
		assert.Equal(t, 0, avail)
	})

	t.Run("Ceiling follows component commitments", func(t *testing.T) {
		inv.commit(2, 4, r)
		kit := domain.KitBookable{Kit: &domain.Kit{ID: 4, Components: []domain.KitComponent{
			{ItemID: 1, Multiplier: 2},
			{ItemID: 2, Multiplier: 3},
		}}}
		avail, err := e.AvailableForDemand(ctx, kit.Demand(), r)
		require.NoError(t, err)
		assert.Equal(t, 1, avail) // min(5/2, 3/3)
	})
}

func TestEngine_Monotonicity(t *testing.T) {
	ctx := context.Background()
	random := rand.New(rand.NewSource(42))
	inv := newFakeInventory()
	inv.addPool(1, 20)
	e := NewEngine(inv, inv)
	window := rng(time.June, 5, 20)

	prev, err := e.AvailableQuantity(ctx, 1, window)
	require.NoError(t, err)
	var groups []uuid.UUID
	for i := 0; i < 40; i++ {
		start := 1 + random.Intn(25)
		end := start + random.Intn(5)
		groups = append(groups, inv.commit(1, 1+random.Intn(3), rng(time.June, start, end)))

		cur, err := e.AvailableQuantity(ctx, 1, window)
		require.NoError(t, err)
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}

	now := time.Now()
	for _, g := range groups {
		for i := range inv.commitments {
			if inv.commitments[i].GroupID == g {
				inv.commitments[i].ReleasedOn = &now
			}
		}
		cur, err := e.AvailableQuantity(ctx, 1, window)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 20, prev)
}

func TestEngine_Utilization(t *testing.T) {
	inv := newFakeInventory()
	inv.addPool(1, 4)
	inv.commit(1, 1, rng(time.July, 1, 2))
	inv.commit(1, 2, rng(time.July, 2, 3))
	inv.commit(1, 2, rng(time.July, 5, 6))
	e := NewEngine(inv, inv)

	u, err := e.Utilization(context.Background(), 1, rng(time.July, 1, 6))
	require.NoError(t, err)
	assert.Equal(t, 4, u.PoolSize)
	assert.Equal(t, 3, u.Peak)
	assert.Equal(t, 1, u.Available)
}

package service

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/idempotency"
	"equiprent-backend/internal/logger"
	"equiprent-backend/internal/pricing"
	"equiprent-backend/internal/repository"
	"equiprent-backend/internal/repository/memory"
)

const company = int64(1)

type mapIdempotencyStore struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMapIdempotencyStore() *mapIdempotencyStore {
	return &mapIdempotencyStore{vals: make(map[string]string)}
}

func (m *mapIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok {
		return "", idempotency.ErrKeyNotFound
	}
	return v, nil
}

func (m *mapIdempotencyStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; ok {
		return false, nil
	}
	m.vals[key] = value
	return true, nil
}

func (m *mapIdempotencyStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}

func (m *mapIdempotencyStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
	return nil
}

type fixture struct {
	svc   BookingService
	store   *memory.Store
	idem    *mapIdempotencyStore
	tenants *memory.Tenants
}

func newFixture() *fixture {
	tenants := memory.NewTenants()
	idem := newMapIdempotencyStore()
	clock := func() time.Time { return time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC) }
	svc := NewBookingService(tenants, pricing.NewEngine(pricing.WithClock(clock)), idem, nil, time.Hour)
	return &fixture{svc: svc, store: tenants.ForCompany(company), idem: idem, tenants: tenants}
}

func (f *fixture) poolItem(qty int, daily string) int64 {
	return f.store.AddItem(domain.RentableItem{
		Name:         "Camera-A",
		TrackingMode: domain.TrackingModePool,
		PoolQuantity: qty,
		DailyRate:    decimal.RequireFromString(daily),
		Currency:     "USD",
	})
}

func (f *fixture) serializedItem(units int) (int64, []int64) {
	item := f.store.AddItem(domain.RentableItem{
		Name:         "Drone",
		TrackingMode: domain.TrackingModeSerialized,
		DailyRate:    decimal.NewFromInt(80),
		Currency:     "USD",
	})
	var ids []int64
	for i := 0; i < units; i++ {
		ids = append(ids, f.store.AddUnit(domain.InventoryUnit{ItemID: item, Serial: uuid.NewString()}))
	}
	return item, ids
}

func (f *fixture) unitStatus(t *testing.T, id int64) domain.UnitStatus {
	t.Helper()
	u, ok := f.store.Unit(id)
	require.True(t, ok)
	return u.Status
}

func (f *fixture) groupRows(group uuid.UUID) []domain.Commitment {
	var out []domain.Commitment
	for _, c := range f.store.Commitments() {
		if c.GroupID == group {
			out = append(out, c)
		}
	}
	return out
}

func march(from, to int) domain.DateRange {
	return domain.MustDateRange(
		time.Date(2024, time.March, from, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, to, 0, 0, 0, 0, time.UTC),
	)
}

func itemRef(id int64) domain.BookableRef {
	return domain.BookableRef{Kind: domain.BookableKindItem, ID: id}
}

func line(booking int64, ref domain.BookableRef, r domain.DateRange, qty int) *domain.LineItem {
	return &domain.LineItem{
		BookingID:     booking,
		BookingStatus: domain.BookingStatusConfirmed,
		Bookable:      ref,
		Range:         r,
		Quantity:      qty,
		State:         domain.LineStateProposed,
	}
}

func TestBookingService_CameraScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	camera := f.poolItem(3, "50")

	x := line(1, itemRef(camera), march(1, 5), 2)
	group, err := f.svc.Commit(ctx, company, x)
	require.NoError(t, err)
	assert.Equal(t, domain.LineStateCommitted, x.State)
	assert.Equal(t, group, x.CommitmentID)
	require.NotNil(t, x.Quote)
	assert.True(t, decimal.NewFromInt(500).Equal(x.Quote.Total), x.Quote.Total.String())

	avail, err := f.svc.CheckAvailability(ctx, company, itemRef(camera), march(3, 10), 2)
	require.NoError(t, err)
	assert.False(t, avail.Available)
	assert.Equal(t, 1, avail.MaxQuantity)

	y := line(2, itemRef(camera), march(3, 10), 2)
	_, err = f.svc.Commit(ctx, company, y)
	var insufficient *domain.InsufficientInventoryError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Available)
	assert.Equal(t, domain.LineStateRejected, y.State)
	assert.Len(t, f.store.Commitments(), 1, "a rejected commit leaves nothing behind")
}

func TestBookingService_Release(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	camera := f.poolItem(3, "50")

	group, err := f.svc.Commit(ctx, company, line(1, itemRef(camera), march(1, 5), 2))
	require.NoError(t, err)

	require.NoError(t, f.svc.Release(ctx, company, group))
	require.NoError(t, f.svc.Release(ctx, company, group), "second release is a no-op")
	require.NoError(t, f.svc.Release(ctx, company, uuid.New()), "unknown commitment is a no-op")

	avail, err := f.svc.CheckAvailability(ctx, company, itemRef(camera), march(1, 5), 3)
	require.NoError(t, err)
	assert.True(t, avail.Available)
	assert.Equal(t, 3, avail.MaxQuantity)
}

func TestBookingService_Serialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	drone, units := f.serializedItem(3)

	group, err := f.svc.Commit(ctx, company, line(1, itemRef(drone), march(1, 5), 2))
	require.NoError(t, err)

	rows := f.groupRows(group)
	require.Len(t, rows, 2)
	assert.Equal(t, units[0], *rows[0].UnitID)
	assert.Equal(t, units[1], *rows[1].UnitID)
	assert.Equal(t, domain.UnitStatusCommitted, f.unitStatus(t, units[0]))
	assert.Equal(t, domain.UnitStatusAvailable, f.unitStatus(t, units[2]))

	require.NoError(t, f.svc.Release(ctx, company, group))
	assert.Equal(t, domain.UnitStatusAvailable, f.unitStatus(t, units[0]))
	assert.Equal(t, domain.UnitStatusAvailable, f.unitStatus(t, units[1]))
}

func TestBookingService_Extend(t *testing.T) {
	ctx := context.Background()

	t.Run("Widened range is checked in full", func(t *testing.T) {
		f := newFixture()
		camera := f.poolItem(3, "50")
		x, err := f.svc.Commit(ctx, company, line(1, itemRef(camera), march(1, 5), 2))
		require.NoError(t, err)
		_, err = f.svc.Commit(ctx, company, line(2, itemRef(camera), march(6, 10), 2))
		require.NoError(t, err)

		_, err = f.svc.Extend(ctx, company, x, time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC))
		var insufficient *domain.InsufficientInventoryError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, 1, insufficient.Available)

		rows := f.groupRows(x)
		require.Len(t, rows, 1)
		assert.Equal(t, march(1, 5), rows[0].Range, "failed extend leaves the commitment untouched")
	})

	t.Run("Extension into free days", func(t *testing.T) {
		f := newFixture()
		camera := f.poolItem(3, "50")
		x, err := f.svc.Commit(ctx, company, line(1, itemRef(camera), march(1, 5), 2))
		require.NoError(t, err)

		q, err := f.svc.Extend(ctx, company, x, time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, 8, q.Days)
		assert.True(t, decimal.NewFromInt(800).Equal(q.Total), q.Total.String())
		assert.Equal(t, march(1, 8), f.groupRows(x)[0].Range)
	})

	t.Run("Serialized unit is swapped when taken", func(t *testing.T) {
		f := newFixture()
		drone, units := f.serializedItem(2)
		x, err := f.svc.Commit(ctx, company, line(1, itemRef(drone), march(1, 5), 1))
		require.NoError(t, err)
		y, err := f.svc.Commit(ctx, company, line(2, itemRef(drone), march(6, 10), 1))
		require.NoError(t, err)
		assert.Equal(t, units[0], *f.groupRows(y)[0].UnitID)

		_, err = f.svc.Extend(ctx, company, x, time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		row := f.groupRows(x)[0]
		assert.Equal(t, units[1], *row.UnitID)
		assert.Equal(t, march(1, 7), row.Range)
		assert.Equal(t, domain.UnitStatusCommitted, f.unitStatus(t, units[0]), "still held by the other booking")
		assert.Equal(t, domain.UnitStatusCommitted, f.unitStatus(t, units[1]))
	})

	t.Run("Unknown commitment", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Extend(ctx, company, uuid.New(), time.Now())
		assert.ErrorIs(t, err, domain.ErrUnknownCommitment)
	})

	t.Run("Reschedule validates the range", func(t *testing.T) {
		f := newFixture()
		camera := f.poolItem(1, "50")
		x, err := f.svc.Commit(ctx, company, line(1, itemRef(camera), march(10, 12), 1))
		require.NoError(t, err)

		_, err = f.svc.Extend(ctx, company, x, time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC))
		assert.ErrorIs(t, err, domain.ErrInvalidRange)

		q, err := f.svc.Reschedule(ctx, company, x, march(20, 21))
		require.NoError(t, err)
		assert.Equal(t, 2, q.Days)
	})
}

func TestBookingService_Kit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	camera := f.poolItem(5, "50")
	light := f.poolItem(3, "20")
	kit := f.store.AddKit(domain.Kit{
		Name:       "Interview kit",
		DailyRate:  decimal.NewFromInt(100),
		Currency:   "USD",
		Components: []domain.KitComponent{{ItemID: camera, Multiplier: 2}, {ItemID: light, Multiplier: 1}},
	})
	ref := domain.BookableRef{Kind: domain.BookableKindKit, ID: kit}

	avail, err := f.svc.CheckAvailability(ctx, company, ref, march(1, 2), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, avail.MaxQuantity)

	group, err := f.svc.Commit(ctx, company, line(1, ref, march(1, 2), 2))
	require.NoError(t, err)
	rows := f.groupRows(group)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[0].Quantity)
	assert.Equal(t, 2, rows[1].Quantity)

	_, err = f.svc.Commit(ctx, company, line(2, ref, march(2, 3), 1))
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)

	one, err := f.svc.CheckAvailability(ctx, company, itemRef(camera), march(1, 2), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, one.MaxQuantity)
}

func TestBookingService_QuoteWithRulesAndVariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	camera := f.poolItem(3, "50")
	variant := f.store.AddVariant(domain.Variant{ItemID: camera, Name: "with lens kit", DailyRate: decimalPtr("70")})
	override := decimal.NewFromInt(400)
	discount := decimal.NewFromInt(20)
	f.store.AddRule(domain.PricingRule{ItemID: &camera, Kind: domain.RuleKindSeasonal, Active: true, Priority: 10, PriceOverride: &override})
	f.store.AddRule(domain.PricingRule{ItemID: &camera, Kind: domain.RuleKindVolumeDiscount, Active: true, Priority: 5, DiscountPercent: &discount})

	q, err := f.svc.Quote(ctx, company, itemRef(camera), march(1, 10), 3, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, override.Equal(q.UnitPrice))
	assert.True(t, decimal.NewFromInt(1200).Equal(q.Subtotal))

	vq, err := f.svc.Quote(ctx, company, domain.BookableRef{Kind: domain.BookableKindVariant, ID: variant}, march(1, 2), 1, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(140).Equal(vq.BaseUnitPrice))

	_, err = f.svc.Quote(ctx, company, itemRef(999), march(1, 2), 1, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrUnknownItem)
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestBookingService_CommitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	camera := f.poolItem(3, "50")

	draft := line(1, itemRef(camera), march(1, 2), 1)
	draft.BookingStatus = domain.BookingStatusDraft
	_, err := f.svc.Commit(ctx, company, draft)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	bad := line(1, itemRef(camera), march(1, 2), 1)
	bad.LineDiscountPercent = decimal.NewFromInt(150)
	_, err = f.svc.Commit(ctx, company, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidDiscount)

	_, err = f.svc.Commit(ctx, company, line(1, itemRef(camera), march(1, 2), 0))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.Commit(ctx, company, line(1, domain.BookableRef{Kind: "boat", ID: 1}, march(1, 2), 1))
	assert.ErrorIs(t, err, domain.ErrInvalidBookable)

	defaulted := line(1, itemRef(camera), march(1, 2), 1)
	defaulted.BookingStatus = ""
	_, err = f.svc.Commit(ctx, company, defaulted)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, defaulted.BookingStatus)
}

// failingDelStore keeps keys like mapIdempotencyStore but cannot delete them.
type failingDelStore struct {
	*mapIdempotencyStore
}

func (failingDelStore) Del(context.Context, string) error {
	return errors.New("redis unavailable")
}

func TestBookingService_IdempotentCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("Replay returns the first commitment with its quote", func(t *testing.T) {
		f := newFixture()
		camera := f.poolItem(3, "50")

		first := line(1, itemRef(camera), march(1, 5), 1)
		first.IdempotencyKey = "req-1"
		id, err := f.svc.Commit(ctx, company, first)
		require.NoError(t, err)

		retry := line(1, itemRef(camera), march(1, 5), 1)
		retry.IdempotencyKey = "req-1"
		again, err := f.svc.Commit(ctx, company, retry)
		require.NoError(t, err)
		assert.Equal(t, id, again)
		assert.Equal(t, domain.LineStateCommitted, retry.State)
		require.NotNil(t, retry.Quote)
		assert.True(t, first.Quote.Total.Equal(retry.Quote.Total))
		assert.Len(t, f.store.Commitments(), 1)
	})

	t.Run("Key reused for another request", func(t *testing.T) {
		f := newFixture()
		small := f.poolItem(3, "50")
		other := f.poolItem(1, "20")

		first := line(1, itemRef(small), march(1, 5), 1)
		first.IdempotencyKey = "k"
		_, err := f.svc.Commit(ctx, company, first)
		require.NoError(t, err)

		different := line(1, itemRef(other), march(10, 20), 5)
		different.IdempotencyKey = "k"
		id, err := f.svc.Commit(ctx, company, different)
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
		assert.Equal(t, uuid.Nil, id)
		assert.Nil(t, different.Quote)
		assert.NotEqual(t, domain.LineStateCommitted, different.State)
		assert.Len(t, f.store.Commitments(), 1)

		sameItemOtherQty := line(1, itemRef(small), march(1, 5), 2)
		sameItemOtherQty.IdempotencyKey = "k"
		_, err = f.svc.Commit(ctx, company, sameItemOtherQty)
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
	})

	t.Run("Key still in flight", func(t *testing.T) {
		f := newFixture()
		camera := f.poolItem(3, "50")

		inflight := line(1, itemRef(camera), march(1, 5), 1)
		inflight.IdempotencyKey = "req-2"
		claim := idempotency.Record{Result: idempotency.Processing, Fingerprint: fingerprint(inflight)}
		f.idem.vals[idempotencyKey(company, "req-2")] = claim.String()

		_, err := f.svc.Commit(ctx, company, inflight)
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyInFlight)
		assert.Empty(t, f.store.Commitments())
	})

	t.Run("Failed commit frees its key", func(t *testing.T) {
		f := newFixture()
		camera := f.poolItem(3, "50")

		failing := line(1, itemRef(camera), march(1, 5), 5)
		failing.IdempotencyKey = "req-3"
		_, err := f.svc.Commit(ctx, company, failing)
		assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
		_, err = f.idem.Get(ctx, idempotencyKey(company, "req-3"))
		assert.ErrorIs(t, err, idempotency.ErrKeyNotFound)
	})

	t.Run("Failure to free a key is logged", func(t *testing.T) {
		var buf bytes.Buffer
		logger.InitializeWriter(&buf, "info", "text")
		defer logger.Initialize("info", "text")

		f := newFixture()
		camera := f.poolItem(1, "50")
		svc := NewBookingService(f.tenants, nil, failingDelStore{newMapIdempotencyStore()}, nil, time.Hour)

		failing := line(1, itemRef(camera), march(1, 5), 2)
		failing.IdempotencyKey = "req-4"
		_, err := svc.Commit(ctx, company, failing)
		assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
		assert.Contains(t, buf.String(), "Failed to free idempotency key")
		assert.Contains(t, buf.String(), "redis unavailable")
	})
}

func TestBookingService_SyncBookingStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Cancelling releases", func(t *testing.T) {
		f := newFixture()
		drone, units := f.serializedItem(1)
		group, err := f.svc.Commit(ctx, company, line(7, itemRef(drone), march(1, 5), 1))
		require.NoError(t, err)

		require.NoError(t, f.svc.SyncBookingStatus(ctx, company, 7, domain.BookingStatusCancelled))
		rows := f.groupRows(group)
		assert.NotNil(t, rows[0].ReleasedOn)
		assert.Equal(t, domain.BookingStatusCancelled, rows[0].BookingStatus)
		assert.Equal(t, domain.UnitStatusAvailable, f.unitStatus(t, units[0]))
	})

	t.Run("Reactivating a draft must fit again", func(t *testing.T) {
		f := newFixture()
		camera := f.poolItem(2, "50")
		_, err := f.svc.Commit(ctx, company, line(1, itemRef(camera), march(1, 5), 2))
		require.NoError(t, err)

		require.NoError(t, f.svc.SyncBookingStatus(ctx, company, 1, domain.BookingStatusDraft))
		_, err = f.svc.Commit(ctx, company, line(2, itemRef(camera), march(3, 4), 1))
		require.NoError(t, err)

		err = f.svc.SyncBookingStatus(ctx, company, 1, domain.BookingStatusConfirmed)
		assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
		for _, c := range f.store.Commitments() {
			if c.BookingID == 1 {
				assert.Equal(t, domain.BookingStatusDraft, c.BookingStatus)
			}
		}

		require.NoError(t, f.svc.SyncBookingStatus(ctx, company, 2, domain.BookingStatusCancelled))
		require.NoError(t, f.svc.SyncBookingStatus(ctx, company, 1, domain.BookingStatusPaid))
	})

	t.Run("Invalid status", func(t *testing.T) {
		f := newFixture()
		err := f.svc.SyncBookingStatus(ctx, company, 1, "shipped")
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})
}

func TestBookingService_Housekeeping(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	camera := f.poolItem(3, "50")
	group, err := f.svc.Commit(ctx, company, line(4, itemRef(camera), march(1, 5), 1))
	require.NoError(t, err)

	require.NoError(t, f.store.WithItemLocks(ctx, []int64{camera}, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Commitments.UpdateBookingStatus(ctx, 4, domain.BookingStatusCancelled)
	}))

	n, err := f.svc.ReleaseCancelled(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, f.groupRows(group)[0].ReleasedOn)

	purged, err := f.svc.PurgeReleased(ctx, company, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Empty(t, f.store.Commitments())
}

// staleTenants serves read snapshots through wrap while stale reads remain,
// standing in for writes that land between a read and the locks.
type staleTenants struct {
	*memory.Tenants
	mu    sync.Mutex
	stale int
	wrap  func(repository.CommitmentRepository) repository.CommitmentRepository
}

func (t *staleTenants) Tenant(companyID int64) repository.TxManager {
	return &staleTx{TxManager: t.Tenants.Tenant(companyID), tenants: t}
}

type staleTx struct {
	repository.TxManager
	tenants *staleTenants
}

func (x *staleTx) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return x.TxManager.ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		x.tenants.mu.Lock()
		if x.tenants.stale > 0 {
			x.tenants.stale--
			repos.Commitments = x.tenants.wrap(repos.Commitments)
		}
		x.tenants.mu.Unlock()
		return fn(ctx, repos)
	})
}

// hideItem drops the booking rows of one item.
type hideItem struct {
	repository.CommitmentRepository
	itemID int64
}

func (h hideItem) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Commitment, error) {
	rows, err := h.CommitmentRepository.ListByBooking(ctx, bookingID)
	var out []domain.Commitment
	for _, c := range rows {
		if c.ItemID != h.itemID {
			out = append(out, c)
		}
	}
	return out, err
}

// extraCancelled lists groups as cancelled that another caller already released.
type extraCancelled struct {
	repository.CommitmentRepository
	groups []uuid.UUID
}

func (e extraCancelled) ListCancelledGroups(ctx context.Context) ([]uuid.UUID, error) {
	groups, err := e.CommitmentRepository.ListCancelledGroups(ctx)
	return append(e.groups, groups...), err
}

func TestBookingService_SyncBookingStatus_LineAddedBeforeLock(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, stale int) (*fixture, BookingService, int64) {
		f := newFixture()
		camera := f.poolItem(2, "50")
		drone, _ := f.serializedItem(1)
		_, err := f.svc.Commit(ctx, company, line(7, itemRef(camera), march(1, 5), 1))
		require.NoError(t, err)
		_, err = f.svc.Commit(ctx, company, line(7, itemRef(drone), march(1, 5), 1))
		require.NoError(t, err)

		tenants := &staleTenants{Tenants: f.tenants, stale: stale, wrap: func(c repository.CommitmentRepository) repository.CommitmentRepository {
			return hideItem{CommitmentRepository: c, itemID: drone}
		}}
		return f, NewBookingService(tenants, nil, nil, nil, time.Hour), drone
	}

	t.Run("Retries with the new item locked", func(t *testing.T) {
		f, svc, _ := setup(t, 1)
		require.NoError(t, svc.SyncBookingStatus(ctx, company, 7, domain.BookingStatusCancelled))
		for _, c := range f.store.Commitments() {
			assert.Equal(t, domain.BookingStatusCancelled, c.BookingStatus)
			assert.NotNil(t, c.ReleasedOn)
		}
	})

	t.Run("Gives up without touching the unlocked item", func(t *testing.T) {
		f, svc, drone := setup(t, syncAttempts)
		err := svc.SyncBookingStatus(ctx, company, 7, domain.BookingStatusCancelled)
		assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
		for _, c := range f.store.Commitments() {
			assert.Equal(t, domain.BookingStatusConfirmed, c.BookingStatus)
			assert.Nil(t, c.ReleasedOn)
		}
		avail, err := f.svc.CheckAvailability(ctx, company, itemRef(drone), march(1, 5), 1)
		require.NoError(t, err)
		assert.False(t, avail.Available)
	})
}

func TestBookingService_ReleaseCancelled_CountsOnlyReleases(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	camera := f.poolItem(3, "50")
	done, err := f.svc.Commit(ctx, company, line(4, itemRef(camera), march(1, 5), 1))
	require.NoError(t, err)
	pending, err := f.svc.Commit(ctx, company, line(5, itemRef(camera), march(1, 5), 1))
	require.NoError(t, err)

	require.NoError(t, f.svc.SyncBookingStatus(ctx, company, 4, domain.BookingStatusCancelled))
	require.NoError(t, f.store.WithItemLocks(ctx, []int64{camera}, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Commitments.UpdateBookingStatus(ctx, 5, domain.BookingStatusCancelled)
	}))

	tenants := &staleTenants{Tenants: f.tenants, stale: 1, wrap: func(c repository.CommitmentRepository) repository.CommitmentRepository {
		return extraCancelled{CommitmentRepository: c, groups: []uuid.UUID{done}}
	}}
	svc := NewBookingService(tenants, nil, nil, nil, time.Hour)

	n, err := svc.ReleaseCancelled(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, f.groupRows(pending)[0].ReleasedOn)
}

func TestBookingService_Utilization(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	camera := f.poolItem(4, "50")
	for _, r := range []domain.DateRange{march(1, 3), march(3, 5), march(7, 9)} {
		_, err := f.svc.Commit(ctx, company, line(1, itemRef(camera), r, 2))
		require.NoError(t, err)
	}

	u, err := f.svc.Utilization(ctx, company, camera, march(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 4, u.Peak)
	assert.Equal(t, 0, u.Available)
}

// No instant may ever carry more active quantity than the pool holds, however
// commits and releases interleave.
func TestBookingService_NoOverbooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	const poolSize = 4
	camera := f.poolItem(poolSize, "50")

	var mu sync.Mutex
	var groups []uuid.UUID

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			random := rand.New(rand.NewSource(seed))
			for i := 0; i < 40; i++ {
				if random.Intn(4) == 0 {
					mu.Lock()
					var g uuid.UUID
					if len(groups) > 0 {
						g = groups[random.Intn(len(groups))]
					}
					mu.Unlock()
					if g != uuid.Nil {
						assert.NoError(t, f.svc.Release(ctx, company, g))
					}
					continue
				}
				start := 1 + random.Intn(20)
				r := march(start, start+random.Intn(6))
				g, err := f.svc.Commit(ctx, company, line(seed, itemRef(camera), r, 1+random.Intn(3)))
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
					continue
				}
				mu.Lock()
				groups = append(groups, g)
				mu.Unlock()
			}
		}(int64(w + 1))
	}
	wg.Wait()

	for d := 1; d <= 31; d++ {
		day := time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
		total := 0
		for _, c := range f.store.Commitments() {
			if c.Active() && c.Range.Contains(day) {
				total += c.Quantity
			}
		}
		assert.LessOrEqual(t, total, poolSize, "day %d", d)
	}
}

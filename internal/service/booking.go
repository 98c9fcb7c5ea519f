package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"equiprent-backend/internal/availability"
	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/idempotency"
	"equiprent-backend/internal/logger"
	"equiprent-backend/internal/metrics"
	"equiprent-backend/internal/pricing"
	"equiprent-backend/internal/repository"
	"equiprent-backend/internal/utils"
)

// everything covers every date a commitment can hold.
var everything = domain.DateRange{
	Start: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
}

func init() {
	logger.RegisterExpected(func(err error) bool {
		return errors.Is(err, domain.ErrInsufficientInventory) ||
			errors.Is(err, domain.ErrIdempotencyKeyInFlight) ||
			errors.Is(err, domain.ErrIdempotencyKeyReused) ||
			errors.Is(err, domain.ErrConcurrentUpdate)
	})
}

type bookingService struct {
	tenants repository.Tenants
	pricing *pricing.Engine
	idem    idempotency.Store
	idemTTL time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewBookingService(
	tenants repository.Tenants,
	pricingEngine *pricing.Engine,
	idem idempotency.Store,
	m *metrics.Metrics,
	idempotencyTTL time.Duration,
) BookingService {
	if idem == nil {
		idem = idempotency.NewNoopStore()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if pricingEngine == nil {
		pricingEngine = pricing.NewEngine()
	}
	return &bookingService{
		tenants: tenants,
		pricing: pricingEngine,
		idem:    idem,
		idemTTL: idempotencyTTL,
		metrics: m,
		now:     time.Now,
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, domain.ErrInsufficientInventory):
		return metrics.ResultInsufficient
	default:
		return metrics.ResultError
	}
}

// resolve turns a reference into the bookable it names.
func resolve(ctx context.Context, repos repository.Repositories, ref domain.BookableRef) (domain.Bookable, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch ref.Kind {
	case domain.BookableKindItem:
		item, err := repos.Items.GetItem(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return domain.SingleItem{Item: item}, nil
	case domain.BookableKindKit:
		kit, err := repos.Items.GetKit(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return domain.KitBookable{Kit: kit}, nil
	default:
		v, err := repos.Items.GetVariant(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		parent, err := repos.Items.GetItem(ctx, v.ItemID)
		if err != nil {
			return nil, fmt.Errorf("parent of variant %d: %w", v.ID, err)
		}
		return domain.VariantBookable{Variant: v, Parent: parent}, nil
	}
}

func itemIDsOf(rows []domain.Commitment) []int64 {
	seen := make(map[int64]bool, len(rows))
	var ids []int64
	for _, c := range rows {
		if !seen[c.ItemID] {
			seen[c.ItemID] = true
			ids = append(ids, c.ItemID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func unreleased(rows []domain.Commitment) []domain.Commitment {
	var out []domain.Commitment
	for _, c := range rows {
		if c.ReleasedOn == nil {
			out = append(out, c)
		}
	}
	return out
}

// demandItems reads which items a bookable draws on, so they can be locked
// before the bookable is read again under the locks.
func demandItems(ctx context.Context, tx repository.TxManager, ref domain.BookableRef) ([]int64, error) {
	var ids []int64
	err := tx.ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := resolve(ctx, repos, ref)
		if err != nil {
			return err
		}
		ids = domain.DemandItemIDs(b.Demand())
		return nil
	})
	return ids, err
}

func groupRows(ctx context.Context, tx repository.TxManager, group uuid.UUID) ([]domain.Commitment, error) {
	var rows []domain.Commitment
	err := tx.ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		rows, err = repos.Commitments.ListByGroup(ctx, group)
		return err
	})
	return rows, err
}

func (s *bookingService) quote(ctx context.Context, repos repository.Repositories, b domain.Bookable, r domain.DateRange, qty int, discount decimal.Decimal) (*domain.PriceQuote, error) {
	start := time.Now()
	defer func() { s.metrics.QuoteDuration.Observe(time.Since(start).Seconds()) }()

	rules, err := repos.Rules.ListRules(ctx, b.RuleScope())
	if err != nil {
		return nil, err
	}
	return s.pricing.Quote(ctx, b, rules, r, qty, discount)
}

func (s *bookingService) CheckAvailability(ctx context.Context, companyID int64, ref domain.BookableRef, r domain.DateRange, qty int) (*Availability, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var out *Availability
	err := s.tenants.Tenant(companyID).ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := resolve(ctx, repos, ref)
		if err != nil {
			return err
		}
		most, err := availability.NewEngine(repos.Items, repos.Commitments).AvailableForDemand(ctx, b.Demand(), r)
		if err != nil {
			return err
		}
		out = &Availability{Available: qty <= most, MaxQuantity: most}
		return nil
	})

	switch {
	case err != nil:
		s.metrics.AvailabilityChecks.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	case out.Available:
		s.metrics.AvailabilityChecks.WithLabelValues(metrics.ResultAvailable).Inc()
	default:
		s.metrics.AvailabilityChecks.WithLabelValues(metrics.ResultUnavailable).Inc()
	}
	return out, nil
}

func (s *bookingService) Quote(ctx context.Context, companyID int64, ref domain.BookableRef, r domain.DateRange, qty int, lineDiscount decimal.Decimal) (*domain.PriceQuote, error) {
	var q *domain.PriceQuote
	err := s.tenants.Tenant(companyID).ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := resolve(ctx, repos, ref)
		if err != nil {
			return err
		}
		q, err = s.quote(ctx, repos, b, r, qty, lineDiscount)
		return err
	})
	return q, err
}

func validateLine(line *domain.LineItem) error {
	if err := line.Bookable.Validate(); err != nil {
		return err
	}
	if err := line.Range.Validate(); err != nil {
		return err
	}
	if line.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if err := pricing.ValidateDiscount(line.LineDiscountPercent); err != nil {
		return err
	}
	if line.BookingStatus == "" {
		line.BookingStatus = domain.BookingStatusPending
	}
	if !line.BookingStatus.Active() {
		return fmt.Errorf("%w: cannot commit a %s booking", domain.ErrInvalidStatus, line.BookingStatus)
	}
	return nil
}

func idempotencyKey(companyID int64, key string) string {
	return fmt.Sprintf("%d:%s", companyID, key)
}

// fingerprint identifies the request an idempotency key was first used for.
func fingerprint(line *domain.LineItem) string {
	return fmt.Sprintf("%s/%s/%s/%d/%s/%d",
		line.Bookable,
		line.Range.Start.Format(utils.DateLayout),
		line.Range.End.Format(utils.DateLayout),
		line.Quantity,
		line.LineDiscountPercent.String(),
		line.BookingID)
}

func (s *bookingService) Commit(ctx context.Context, companyID int64, line *domain.LineItem) (domain.CommitmentID, error) {
	logger.EnterMethod("bookingService.Commit", "companyID", companyID, "bookable", line.Bookable.String(), "quantity", line.Quantity)

	if err := validateLine(line); err != nil {
		s.metrics.Commits.WithLabelValues(metrics.ResultError).Inc()
		logger.ExitMethodWithError("bookingService.Commit", err, "companyID", companyID)
		return uuid.Nil, err
	}
	if line.IdempotencyKey == "" {
		return s.commit(ctx, companyID, line)
	}

	key := idempotencyKey(companyID, line.IdempotencyKey)
	fp := fingerprint(line)
	claim := idempotency.Record{Result: idempotency.Processing, Fingerprint: fp}
	locked, err := s.idem.SetNX(ctx, key, claim.String(), s.idemTTL)
	if err != nil {
		return uuid.Nil, fmt.Errorf("idempotency lock: %w", err)
	}
	if !locked {
		existing, err := s.idem.Get(ctx, key)
		if err != nil {
			return uuid.Nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		rec := idempotency.ParseRecord(existing)
		if rec.Fingerprint != fp {
			logger.ExitMethodWithError("bookingService.Commit", domain.ErrIdempotencyKeyReused, "companyID", companyID)
			return uuid.Nil, domain.ErrIdempotencyKeyReused
		}
		id, parseErr := uuid.Parse(rec.Result)
		if rec.Result == idempotency.Processing || parseErr != nil {
			return uuid.Nil, domain.ErrIdempotencyKeyInFlight
		}
		return s.replay(ctx, companyID, id, line)
	}

	id, err := s.commit(ctx, companyID, line)
	if err != nil {
		if delErr := s.idem.Del(context.Background(), key); delErr != nil {
			logger.Warn("Failed to free idempotency key", "companyID", companyID, "error", delErr)
		}
		return uuid.Nil, err
	}
	done := idempotency.Record{Result: id.String(), Fingerprint: fp}
	if err := s.idem.Set(ctx, key, done.String(), s.idemTTL); err != nil {
		logger.Warn("Failed to record idempotency key", "companyID", companyID, "commitmentID", id, "error", err)
	}
	return id, nil
}

// replay answers a repeated commit with the group its key produced, quoted
// again over the group's current range.
func (s *bookingService) replay(ctx context.Context, companyID int64, group uuid.UUID, line *domain.LineItem) (domain.CommitmentID, error) {
	var quote *domain.PriceQuote
	err := s.tenants.Tenant(companyID).ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		rows, err := repos.Commitments.ListByGroup(ctx, group)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("%w: %s", domain.ErrUnknownCommitment, group)
		}
		b, err := resolve(ctx, repos, line.Bookable)
		if err != nil {
			return err
		}
		quote, err = s.quote(ctx, repos, b, rows[0].Range, line.Quantity, line.LineDiscountPercent)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.Commit", err, "companyID", companyID, "commitmentID", group)
		return uuid.Nil, err
	}

	line.State = domain.LineStateCommitted
	line.CommitmentID = group
	line.Quote = quote
	logger.ExitMethod("bookingService.Commit", "companyID", companyID, "commitmentID", group, "replayed", true)
	return group, nil
}

func (s *bookingService) commit(ctx context.Context, companyID int64, line *domain.LineItem) (domain.CommitmentID, error) {
	tx := s.tenants.Tenant(companyID)
	itemIDs, err := demandItems(ctx, tx, line.Bookable)
	if err != nil {
		s.metrics.Commits.WithLabelValues(resultOf(err)).Inc()
		logger.ExitMethodWithError("bookingService.Commit", err, "companyID", companyID)
		return uuid.Nil, err
	}

	group := uuid.New()
	var quote *domain.PriceQuote
	err = tx.WithItemLocks(ctx, itemIDs, func(ctx context.Context, repos repository.Repositories) error {
		b, err := resolve(ctx, repos, line.Bookable)
		if err != nil {
			return err
		}
		engine := availability.NewEngine(repos.Items, repos.Commitments)
		avail, err := engine.AvailableForDemand(ctx, b.Demand(), line.Range)
		if err != nil {
			return err
		}
		if avail < line.Quantity {
			return &domain.InsufficientInventoryError{Bookable: line.Bookable, Requested: line.Quantity, Available: avail}
		}

		for _, d := range b.Demand() {
			need := line.Quantity * d.Multiplier
			units, err := engine.AllocateUnits(ctx, d.ItemID, line.Range, need)
			if err != nil {
				return err
			}
			if err := s.reserve(ctx, repos, group, line, d.ItemID, need, units); err != nil {
				return err
			}
		}

		quote, err = s.quote(ctx, repos, b, line.Range, line.Quantity, line.LineDiscountPercent)
		return err
	})

	s.metrics.Commits.WithLabelValues(resultOf(err)).Inc()
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientInventory) {
			line.State = domain.LineStateRejected
		}
		logger.ExitMethodWithError("bookingService.Commit", err, "companyID", companyID, "bookable", line.Bookable.String())
		return uuid.Nil, err
	}

	line.State = domain.LineStateCommitted
	line.CommitmentID = group
	line.Quote = quote
	logger.ExitMethod("bookingService.Commit", "companyID", companyID, "commitmentID", group, "total", quote.Total.String())
	return group, nil
}

// reserve writes the rows of one demanded item: a single quantity row for pool
// items, one row per unit for serialized items.
func (s *bookingService) reserve(ctx context.Context, repos repository.Repositories, group uuid.UUID, line *domain.LineItem, itemID int64, qty int, units []int64) error {
	row := domain.Commitment{
		GroupID:             group,
		BookingID:           line.BookingID,
		BookingStatus:       line.BookingStatus,
		Bookable:            line.Bookable,
		LineQuantity:        line.Quantity,
		LineDiscountPercent: line.LineDiscountPercent,
		ItemID:              itemID,
		Quantity:            qty,
		Range:               line.Range,
		CreatedOn:           s.now(),
	}
	if units == nil {
		return repos.Commitments.Create(ctx, &row)
	}
	for _, unitID := range units {
		c := row
		id := unitID
		c.UnitID = &id
		c.Quantity = 1
		if err := repos.Commitments.Create(ctx, &c); err != nil {
			return err
		}
		if err := repos.Items.UpdateUnitStatus(ctx, unitID, domain.UnitStatusCommitted); err != nil {
			return err
		}
	}
	return nil
}

func (s *bookingService) Release(ctx context.Context, companyID int64, id domain.CommitmentID) error {
	_, err := s.releaseGroup(ctx, companyID, id)
	return err
}

// releaseGroup releases id and reports whether any row changed.
func (s *bookingService) releaseGroup(ctx context.Context, companyID int64, id domain.CommitmentID) (bool, error) {
	logger.EnterMethod("bookingService.Release", "companyID", companyID, "commitmentID", id)

	tx := s.tenants.Tenant(companyID)
	rows, err := groupRows(ctx, tx, id)
	if err != nil {
		logger.ExitMethodWithError("bookingService.Release", err, "commitmentID", id)
		return false, err
	}
	if len(unreleased(rows)) == 0 {
		logger.ExitMethod("bookingService.Release", "commitmentID", id, "released", false)
		return false, nil
	}

	var released bool
	err = tx.WithItemLocks(ctx, itemIDsOf(rows), func(ctx context.Context, repos repository.Repositories) error {
		var err error
		released, err = s.release(ctx, repos, id)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.Release", err, "commitmentID", id)
		return false, err
	}
	if released {
		s.metrics.Releases.Inc()
	}
	logger.ExitMethod("bookingService.Release", "commitmentID", id, "released", released)
	return released, nil
}

// release frees the rows of group that are still held. It reports false when
// there was nothing left to release.
func (s *bookingService) release(ctx context.Context, repos repository.Repositories, group uuid.UUID) (bool, error) {
	rows, err := repos.Commitments.ListByGroup(ctx, group)
	if err != nil {
		return false, err
	}
	held := unreleased(rows)
	n, err := repos.Commitments.Release(ctx, group, s.now())
	if err != nil || n == 0 {
		return false, err
	}
	for _, c := range held {
		if c.UnitID == nil {
			continue
		}
		if err := freeUnit(ctx, repos, c.ItemID, *c.UnitID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// freeUnit marks a committed unit available again once no active commitment
// holds it. Units in maintenance or retired keep their status.
func freeUnit(ctx context.Context, repos repository.Repositories, itemID, unitID int64) error {
	active, err := repos.Commitments.ListActive(ctx, itemID, everything)
	if err != nil {
		return err
	}
	for _, c := range active {
		if c.UnitID != nil && *c.UnitID == unitID {
			return nil
		}
	}
	units, err := repos.Items.ListUnits(ctx, itemID)
	if err != nil {
		return err
	}
	for _, u := range units {
		if u.ID == unitID && u.Status == domain.UnitStatusCommitted {
			return repos.Items.UpdateUnitStatus(ctx, unitID, domain.UnitStatusAvailable)
		}
	}
	return nil
}

func (s *bookingService) Extend(ctx context.Context, companyID int64, id domain.CommitmentID, newEnd time.Time) (*domain.PriceQuote, error) {
	return s.redate(ctx, companyID, id, func(cur domain.DateRange) domain.DateRange {
		return cur.WithEnd(newEnd)
	})
}

func (s *bookingService) Reschedule(ctx context.Context, companyID int64, id domain.CommitmentID, r domain.DateRange) (*domain.PriceQuote, error) {
	return s.redate(ctx, companyID, id, func(domain.DateRange) domain.DateRange { return r })
}

// redate moves a commitment to the range next derives from its current one.
// The whole new range is checked, not just the added days, and the
// commitment is left as it was when the check fails.
func (s *bookingService) redate(ctx context.Context, companyID int64, group uuid.UUID, next func(domain.DateRange) domain.DateRange) (*domain.PriceQuote, error) {
	logger.EnterMethod("bookingService.redate", "companyID", companyID, "commitmentID", group)

	tx := s.tenants.Tenant(companyID)
	rows, err := groupRows(ctx, tx, group)
	if err != nil {
		return nil, err
	}
	if len(unreleased(rows)) == 0 {
		return nil, domain.ErrUnknownCommitment
	}

	var quote *domain.PriceQuote
	err = tx.WithItemLocks(ctx, itemIDsOf(rows), func(ctx context.Context, repos repository.Repositories) error {
		rows, err := repos.Commitments.ListByGroup(ctx, group)
		if err != nil {
			return err
		}
		rows = unreleased(rows)
		if len(rows) == 0 {
			return domain.ErrUnknownCommitment
		}
		first := rows[0]
		r := next(first.Range)
		if err := r.Validate(); err != nil {
			return err
		}

		b, err := s.refit(ctx, repos, group, rows, r)
		if err != nil {
			return err
		}
		quote, err = s.quote(ctx, repos, b, r, first.LineQuantity, first.LineDiscountPercent)
		return err
	})

	s.metrics.Extends.WithLabelValues(resultOf(err)).Inc()
	if err != nil {
		logger.ExitMethodWithError("bookingService.redate", err, "commitmentID", group)
		return nil, err
	}
	logger.ExitMethod("bookingService.redate", "commitmentID", group, "range", quote.Range.String())
	return quote, nil
}

// refit checks that the rows of group fit into r when the group's own
// reservation is disregarded, then moves them there. Serialized rows keep
// their unit where it is still free and take the lowest free unit otherwise.
func (s *bookingService) refit(ctx context.Context, repos repository.Repositories, group uuid.UUID, rows []domain.Commitment, r domain.DateRange) (domain.Bookable, error) {
	first := rows[0]
	b, err := resolve(ctx, repos, first.Bookable)
	if err != nil {
		return nil, err
	}
	engine := availability.NewEngine(repos.Items, repos.Commitments).Ignoring(group)
	avail, err := engine.AvailableForDemand(ctx, b.Demand(), r)
	if err != nil {
		return nil, err
	}
	if avail < first.LineQuantity {
		return nil, &domain.InsufficientInventoryError{Bookable: first.Bookable, Requested: first.LineQuantity, Available: avail}
	}

	for _, itemID := range itemIDsOf(rows) {
		var held []domain.Commitment
		for _, c := range rows {
			if c.ItemID == itemID {
				held = append(held, c)
			}
		}

		if held[0].UnitID == nil {
			for i := range held {
				held[i].Range = r
				if err := repos.Commitments.Update(ctx, &held[i]); err != nil {
					return nil, err
				}
			}
			continue
		}

		current := make([]int64, 0, len(held))
		for _, c := range held {
			current = append(current, *c.UnitID)
		}
		units, err := engine.AllocatePreferring(ctx, itemID, r, len(held), current)
		if err != nil {
			return nil, err
		}
		keep := make(map[int64]bool, len(units))
		for _, u := range units {
			keep[u] = true
		}
		var spare []int64
		for _, u := range units {
			if !contains(current, u) {
				spare = append(spare, u)
			}
		}

		var dropped []int64
		for i := range held {
			c := &held[i]
			if !keep[*c.UnitID] {
				dropped = append(dropped, *c.UnitID)
				id := spare[0]
				spare = spare[1:]
				c.UnitID = &id
				if err := repos.Items.UpdateUnitStatus(ctx, id, domain.UnitStatusCommitted); err != nil {
					return nil, err
				}
			}
			c.Range = r
			if err := repos.Commitments.Update(ctx, c); err != nil {
				return nil, err
			}
		}
		for _, u := range dropped {
			if err := freeUnit(ctx, repos, itemID, u); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// syncAttempts bounds how often SyncBookingStatus rereads a booking whose
// lines changed between the read and the locks.
const syncAttempts = 3

func (s *bookingService) SyncBookingStatus(ctx context.Context, companyID int64, bookingID int64, status domain.BookingStatus) error {
	logger.EnterMethod("bookingService.SyncBookingStatus", "companyID", companyID, "bookingID", bookingID, "status", status)
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}

	tx := s.tenants.Tenant(companyID)
	var released int
	var err error
	for attempt := 0; attempt < syncAttempts; attempt++ {
		released, err = s.syncBooking(ctx, tx, bookingID, status)
		if !errors.Is(err, domain.ErrConcurrentUpdate) {
			break
		}
		logger.Debug("Booking lines changed before lock, retrying", "bookingID", bookingID, "attempt", attempt+1)
	}
	if err != nil {
		logger.ExitMethodWithError("bookingService.SyncBookingStatus", err, "bookingID", bookingID)
		return err
	}
	for i := 0; i < released; i++ {
		s.metrics.Releases.Inc()
	}
	logger.ExitMethod("bookingService.SyncBookingStatus", "bookingID", bookingID, "released", released)
	return nil
}

// syncBooking applies status under the locks of the items the booking held
// when it was read. It returns ErrConcurrentUpdate when a line on another
// item appeared before the locks were taken.
func (s *bookingService) syncBooking(ctx context.Context, tx repository.TxManager, bookingID int64, status domain.BookingStatus) (int, error) {
	var rows []domain.Commitment
	err := tx.ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		rows, err = repos.Commitments.ListByBooking(ctx, bookingID)
		return err
	})
	if err != nil || len(rows) == 0 {
		return 0, err
	}

	locked := itemIDsOf(rows)
	var released int
	err = tx.WithItemLocks(ctx, locked, func(ctx context.Context, repos repository.Repositories) error {
		rows, err := repos.Commitments.ListByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		for _, id := range itemIDsOf(rows) {
			if !contains(locked, id) {
				return domain.ErrConcurrentUpdate
			}
		}
		if err := repos.Commitments.UpdateBookingStatus(ctx, bookingID, status); err != nil {
			return err
		}

		groups := make(map[uuid.UUID][]domain.Commitment)
		var order []uuid.UUID
		for _, c := range unreleased(rows) {
			if _, ok := groups[c.GroupID]; !ok {
				order = append(order, c.GroupID)
			}
			groups[c.GroupID] = append(groups[c.GroupID], c)
		}

		for _, g := range order {
			held := groups[g]
			switch {
			case status == domain.BookingStatusCancelled:
				ok, err := s.release(ctx, repos, g)
				if err != nil {
					return err
				}
				if ok {
					released++
				}
			case status.Active() && !held[0].BookingStatus.Active():
				// Rows that did not count while the booking was inactive
				// must fit again before they count.
				for i := range held {
					held[i].BookingStatus = status
				}
				if _, err := s.refit(ctx, repos, g, held, held[0].Range); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

func (s *bookingService) ReleaseCancelled(ctx context.Context, companyID int64) (int, error) {
	tx := s.tenants.Tenant(companyID)
	var groups []uuid.UUID
	err := tx.ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		groups, err = repos.Commitments.ListCancelledGroups(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, g := range groups {
		released, err := s.releaseGroup(ctx, companyID, g)
		if err != nil {
			return n, err
		}
		if released {
			n++
		}
	}
	return n, nil
}

func (s *bookingService) PurgeReleased(ctx context.Context, companyID int64, before time.Time) (int64, error) {
	var n int64
	err := s.tenants.Tenant(companyID).WithItemLocks(ctx, nil, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		n, err = repos.Commitments.PurgeReleased(ctx, before)
		return err
	})
	return n, err
}

func (s *bookingService) Utilization(ctx context.Context, companyID int64, itemID int64, r domain.DateRange) (*availability.Utilization, error) {
	var u *availability.Utilization
	err := s.tenants.Tenant(companyID).ReadSnapshot(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		u, err = availability.NewEngine(repos.Items, repos.Commitments).Utilization(ctx, itemID, r)
		return err
	})
	return u, err
}

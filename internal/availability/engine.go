package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"equiprent-backend/internal/domain"
)

// ItemReader loads items and their serialized units.
type ItemReader interface {
	GetItem(ctx context.Context, id int64) (*domain.RentableItem, error)
	ListUnits(ctx context.Context, itemID int64) ([]domain.InventoryUnit, error)
}

// CommitmentReader lists commitments of an item that overlap a range.
type CommitmentReader interface {
	ListActive(ctx context.Context, itemID int64, r domain.DateRange) ([]domain.Commitment, error)
}

// Engine answers availability questions. It only reads; callers that commit
// on the strength of an answer must hold the item lock for both steps.
type Engine struct {
	items       ItemReader
	commitments CommitmentReader
	ignore      uuid.UUID
}

func NewEngine(items ItemReader, commitments CommitmentReader) *Engine {
	return &Engine{items: items, commitments: commitments}
}

// Ignoring returns an engine that treats the commitments of group as released.
// It is used to re-check a range for the commitment that already holds part of it.
func (e *Engine) Ignoring(group uuid.UUID) *Engine {
	cp := *e
	cp.ignore = group
	return &cp
}

// Utilization is the peak committed quantity of an item over a range.
type Utilization struct {
	ItemID    int64            `json:"item_id"`
	Range     domain.DateRange `json:"range"`
	PoolSize  int              `json:"pool_size"`
	Peak      int              `json:"peak"`
	Available int              `json:"available"`
}

type snapshot struct {
	pool  domain.InventoryPool
	index *OverlapIndex
}

func (e *Engine) load(ctx context.Context, itemID int64, r domain.DateRange) (*snapshot, error) {
	item, err := e.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	pool := domain.InventoryPool{Item: item}
	if item.Serialized() {
		if pool.Units, err = e.items.ListUnits(ctx, itemID); err != nil {
			return nil, fmt.Errorf("list units of item %d: %w", itemID, err)
		}
	}
	cs, err := e.commitments.ListActive(ctx, itemID, r)
	if err != nil {
		return nil, fmt.Errorf("list commitments of item %d: %w", itemID, err)
	}
	return &snapshot{pool: pool, index: NewOverlapIndex(cs, e.ignore)}, nil
}

func (s *snapshot) available(r domain.DateRange) int {
	if !s.pool.Item.Serialized() {
		free := s.pool.Size() - s.index.PeakQuantity(r)
		if free < 0 {
			return 0
		}
		return free
	}
	return len(s.freeUnits(r))
}

func (s *snapshot) freeUnits(r domain.DateRange) []domain.InventoryUnit {
	consumed := s.index.ConsumedUnits(r)
	var free []domain.InventoryUnit
	for _, u := range s.pool.InServiceUnits() {
		if _, held := consumed[u.ID]; !held {
			free = append(free, u)
		}
	}
	return free
}

// AvailableQuantity is the largest quantity of the item that can be committed
// for every day of r.
func (e *Engine) AvailableQuantity(ctx context.Context, itemID int64, r domain.DateRange) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	s, err := e.load(ctx, itemID, r)
	if err != nil {
		return 0, err
	}
	return s.available(r), nil
}

func (e *Engine) IsAvailable(ctx context.Context, itemID int64, r domain.DateRange, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrInvalidQuantity
	}
	avail, err := e.AvailableQuantity(ctx, itemID, r)
	if err != nil {
		return false, err
	}
	return qty <= avail, nil
}

// AllocateUnits picks qty free units of a serialized item in ascending id
// order, so retries of the same request pick the same units. Pool items carry
// no unit identity and get a nil slice once the quantity is known to fit.
func (e *Engine) AllocateUnits(ctx context.Context, itemID int64, r domain.DateRange, qty int) ([]int64, error) {
	return e.AllocatePreferring(ctx, itemID, r, qty, nil)
}

// AllocatePreferring is AllocateUnits that first keeps any free unit listed in
// prefer, then fills up in ascending id order.
func (e *Engine) AllocatePreferring(ctx context.Context, itemID int64, r domain.DateRange, qty int, prefer []int64) ([]int64, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	s, err := e.load(ctx, itemID, r)
	if err != nil {
		return nil, err
	}
	insufficient := func(avail int) error {
		return &domain.InsufficientInventoryError{
			Bookable:  domain.BookableRef{Kind: domain.BookableKindItem, ID: itemID},
			Requested: qty,
			Available: avail,
		}
	}

	if !s.pool.Item.Serialized() {
		if avail := s.available(r); avail < qty {
			return nil, insufficient(avail)
		}
		return nil, nil
	}

	free := s.freeUnits(r)
	if len(free) < qty {
		return nil, insufficient(len(free))
	}

	wanted := make(map[int64]bool, len(prefer))
	for _, id := range prefer {
		wanted[id] = true
	}
	picked := make([]int64, 0, qty)
	taken := make(map[int64]bool, qty)
	for _, u := range free {
		if len(picked) == qty {
			break
		}
		if wanted[u.ID] {
			picked = append(picked, u.ID)
			taken[u.ID] = true
		}
	}
	for _, u := range free {
		if len(picked) == qty {
			break
		}
		if !taken[u.ID] {
			picked = append(picked, u.ID)
		}
	}
	return picked, nil
}

// AvailableForDemand composes item answers for a bookable: the minimum over
// its items of floor(available / multiplier). An empty demand set is never
// available.
func (e *Engine) AvailableForDemand(ctx context.Context, demand []domain.ItemDemand, r domain.DateRange) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	if len(demand) == 0 {
		return 0, nil
	}
	best := -1
	for _, d := range demand {
		if d.Multiplier <= 0 {
			return 0, fmt.Errorf("item %d: %w", d.ItemID, domain.ErrInvalidQuantity)
		}
		avail, err := e.AvailableQuantity(ctx, d.ItemID, r)
		if err != nil {
			return 0, err
		}
		n := avail / d.Multiplier
		if best < 0 || n < best {
			best = n
		}
	}
	return best, nil
}

func (e *Engine) IsAvailableForDemand(ctx context.Context, demand []domain.ItemDemand, r domain.DateRange, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrInvalidQuantity
	}
	avail, err := e.AvailableForDemand(ctx, demand, r)
	if err != nil {
		return false, err
	}
	return qty <= avail, nil
}

// Utilization reports the peak of concurrently committed quantity over r.
func (e *Engine) Utilization(ctx context.Context, itemID int64, r domain.DateRange) (*Utilization, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s, err := e.load(ctx, itemID, r)
	if err != nil {
		return nil, err
	}
	return &Utilization{
		ItemID:    itemID,
		Range:     r,
		PoolSize:  s.pool.Size(),
		Peak:      s.index.PeakQuantity(r),
		Available: s.available(r),
	}, nil
}

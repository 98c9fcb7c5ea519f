// Package memory is an in-process store used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/repository"
)

type state struct {
	items       map[int64]domain.RentableItem
	units       map[int64]domain.InventoryUnit
	kits        map[int64]domain.Kit
	variants    map[int64]domain.Variant
	rules       []domain.PricingRule
	commitments map[int64]domain.Commitment

	// ids written during a transaction
	dirtyCommitments map[int64]bool
	dirtyUnits       map[int64]bool
}

func newState() *state {
	return &state{
		items:       make(map[int64]domain.RentableItem),
		units:       make(map[int64]domain.InventoryUnit),
		kits:        make(map[int64]domain.Kit),
		variants:    make(map[int64]domain.Variant),
		commitments: make(map[int64]domain.Commitment),
	}
}

func (st *state) clone() *state {
	cp := newState()
	for k, v := range st.items {
		cp.items[k] = v
	}
	for k, v := range st.units {
		cp.units[k] = v
	}
	for k, v := range st.kits {
		cp.kits[k] = v
	}
	for k, v := range st.variants {
		cp.variants[k] = v
	}
	for k, v := range st.commitments {
		cp.commitments[k] = v
	}
	cp.rules = append([]domain.PricingRule(nil), st.rules...)
	cp.dirtyCommitments = make(map[int64]bool)
	cp.dirtyUnits = make(map[int64]bool)
	return cp
}

// apply copies the rows work wrote onto st.
func (st *state) apply(work *state) {
	for id := range work.dirtyCommitments {
		if c, ok := work.commitments[id]; ok {
			st.commitments[id] = c
		} else {
			delete(st.commitments, id)
		}
	}
	for id := range work.dirtyUnits {
		st.units[id] = work.units[id]
	}
}

// Store holds the data of one company. Transactions run against a private
// copy of the data and publish the rows they wrote when they succeed, so
// readers never see a half-done commit.
type Store struct {
	mu  sync.Mutex
	st  *state
	ids atomic.Int64

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

func NewStore() *Store {
	return &Store{st: newState(), locks: make(map[int64]*sync.Mutex)}
}

func (s *Store) itemLock(id int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) repos(st *state) repository.Repositories {
	return repository.Repositories{
		Items:       &itemRepository{st: st},
		Rules:       &ruleRepository{st: st},
		Commitments: &commitmentRepository{st: st, ids: &s.ids},
	}
}

func (s *Store) WithItemLocks(ctx context.Context, itemIDs []int64, fn func(ctx context.Context, repos repository.Repositories) error) error {
	ids := append([]int64(nil), itemIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var held []*sync.Mutex
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		l := s.itemLock(id)
		l.Lock()
		held = append(held, l)
	}

	s.mu.Lock()
	work := s.st.clone()
	s.mu.Unlock()

	if err := fn(ctx, s.repos(work)); err != nil {
		return err
	}

	s.mu.Lock()
	s.st.apply(work)
	s.mu.Unlock()
	return nil
}

func (s *Store) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	snap := s.st.clone()
	s.mu.Unlock()
	return fn(ctx, s.repos(snap))
}

func (s *Store) nextID() int64 {
	return s.ids.Add(1)
}

// AddItem stores item, assigning an id when it has none.
func (s *Store) AddItem(item domain.RentableItem) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.st.items[item.ID] = item
	return item.ID
}

func (s *Store) AddUnit(unit domain.InventoryUnit) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unit.ID == 0 {
		unit.ID = s.nextID()
	}
	if unit.Status == "" {
		unit.Status = domain.UnitStatusAvailable
	}
	s.st.units[unit.ID] = unit
	return unit.ID
}

func (s *Store) AddKit(kit domain.Kit) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kit.ID == 0 {
		kit.ID = s.nextID()
	}
	s.st.kits[kit.ID] = kit
	return kit.ID
}

func (s *Store) AddVariant(v domain.Variant) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		v.ID = s.nextID()
	}
	s.st.variants[v.ID] = v
	return v.ID
}

// AddRule appends a rule; its position is its insertion order.
func (s *Store) AddRule(rule domain.PricingRule) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == 0 {
		rule.ID = s.nextID()
	}
	rule.Position = int64(len(s.st.rules) + 1)
	s.st.rules = append(s.st.rules, rule)
	return rule.ID
}

// Commitments returns every stored commitment ordered by id.
func (s *Store) Commitments() []domain.Commitment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedCommitments(s.st.commitments, func(domain.Commitment) bool { return true })
}

func (s *Store) Unit(id int64) (domain.InventoryUnit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.units[id]
	return u, ok
}

func (s *Store) hasCommitments() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.commitments) > 0
}

// Tenants keeps one Store per company.
type Tenants struct {
	mu     sync.Mutex
	stores map[int64]*Store
}

func NewTenants() *Tenants {
	return &Tenants{stores: make(map[int64]*Store)}
}

// ForCompany returns the store of companyID, creating an empty one on first use.
func (t *Tenants) ForCompany(companyID int64) *Store {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stores[companyID]
	if !ok {
		s = NewStore()
		t.stores[companyID] = s
	}
	return s
}

func (t *Tenants) Tenant(companyID int64) repository.TxManager {
	return t.ForCompany(companyID)
}

func (t *Tenants) CompanyIDs(ctx context.Context) ([]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []int64
	for id, s := range t.stores {
		if s.hasCommitments() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

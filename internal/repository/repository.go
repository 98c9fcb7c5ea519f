package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"equiprent-backend/internal/domain"
)

// ItemRepository reads the inventory catalogue. The engine only writes unit
// lifecycle status; items, kits and variants are owned by the CRUD layer.
type ItemRepository interface {
	GetItem(ctx context.Context, id int64) (*domain.RentableItem, error)
	ListUnits(ctx context.Context, itemID int64) ([]domain.InventoryUnit, error)
	UpdateUnitStatus(ctx context.Context, unitID int64, status domain.UnitStatus) error
	GetKit(ctx context.Context, id int64) (*domain.Kit, error)
	GetVariant(ctx context.Context, id int64) (*domain.Variant, error)
}

type RuleRepository interface {
	// ListRules returns every rule attached to the scope's item or item type,
	// including inactive and soft-deleted ones, ordered by insertion.
	ListRules(ctx context.Context, scope domain.RuleScope) ([]domain.PricingRule, error)
}

type CommitmentRepository interface {
	// ListActive returns the active commitments of an item overlapping r.
	ListActive(ctx context.Context, itemID int64, r domain.DateRange) ([]domain.Commitment, error)
	// ListByGroup returns every row of a commit call, released or not.
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Commitment, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.Commitment, error)
	Create(ctx context.Context, c *domain.Commitment) error
	// Update rewrites the range, unit and quantities of a row.
	Update(ctx context.Context, c *domain.Commitment) error
	// Release marks the unreleased rows of a group released and reports how many changed.
	Release(ctx context.Context, groupID uuid.UUID, at time.Time) (int64, error)
	UpdateBookingStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) error
	// ListCancelledGroups returns groups whose booking is cancelled but which still hold rows unreleased.
	ListCancelledGroups(ctx context.Context) ([]uuid.UUID, error)
	PurgeReleased(ctx context.Context, before time.Time) (int64, error)
}

// Repositories is the set of repositories bound to one transaction.
type Repositories struct {
	Items       ItemRepository
	Rules       RuleRepository
	Commitments CommitmentRepository
}

// TxManager runs work against a consistent view of one tenant's data.
type TxManager interface {
	// WithItemLocks runs fn in a transaction that holds an exclusive lock on
	// each item in itemIDs. Locks are taken in ascending id order. If fn
	// returns an error nothing it wrote is kept.
	WithItemLocks(ctx context.Context, itemIDs []int64, fn func(ctx context.Context, repos Repositories) error) error
	// ReadSnapshot runs fn against a read-only snapshot. Probes use it so the
	// components of a kit are read at the same point in time.
	ReadSnapshot(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Tenants hands out the store of each company.
type Tenants interface {
	Tenant(companyID int64) TxManager
	// CompanyIDs lists the companies that hold commitments.
	CompanyIDs(ctx context.Context) ([]int64, error)
}

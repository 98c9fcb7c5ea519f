package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

type TrackingMode string

const (
	TrackingModePool       TrackingMode = "pool"
	TrackingModeSerialized TrackingMode = "serialized"
)

type UnitStatus string

const (
	UnitStatusAvailable     UnitStatus = "available"
	UnitStatusCommitted     UnitStatus = "committed"
	UnitStatusInMaintenance UnitStatus = "in_maintenance"
	UnitStatusRetired       UnitStatus = "retired"
)

// Rates is the rate card a bookable is priced with.
type Rates struct {
	Daily         decimal.Decimal  `json:"daily"`
	Weekly        *decimal.Decimal `json:"weekly,omitempty"`
	Weekend       *decimal.Decimal `json:"weekend,omitempty"`
	MinRentalDays int              `json:"min_rental_days"`
}

type RentableItem struct {
	ID            int64            `json:"id"`
	CompanyID     int64            `json:"company_id"`
	ItemTypeID    *int64           `json:"item_type_id,omitempty"`
	Name          string           `json:"name"`
	TrackingMode  TrackingMode     `json:"tracking_mode"`
	PoolQuantity  int              `json:"pool_quantity"` // pool mode only
	DailyRate     decimal.Decimal  `json:"daily_rate"`
	WeeklyRate    *decimal.Decimal `json:"weekly_rate,omitempty"`
	WeekendRate   *decimal.Decimal `json:"weekend_rate,omitempty"`
	MinRentalDays int              `json:"min_rental_days"`
	Currency      string           `json:"currency"`
}

func (i *RentableItem) Serialized() bool {
	return i.TrackingMode == TrackingModeSerialized
}

func (i *RentableItem) Rates() Rates {
	return Rates{
		Daily:         i.DailyRate,
		Weekly:        i.WeeklyRate,
		Weekend:       i.WeekendRate,
		MinRentalDays: i.MinRentalDays,
	}
}

type InventoryUnit struct {
	ID     int64      `json:"id"`
	ItemID int64      `json:"item_id"`
	Serial string     `json:"serial"`
	Status UnitStatus `json:"status"`
}

// InService reports whether the unit can be handed out for some date range.
// The committed status marks a unit that holds at least one commitment; the
// overlap index decides whether it is free for a particular range.
func (u InventoryUnit) InService() bool {
	return u.Status == UnitStatusAvailable || u.Status == UnitStatusCommitted
}

// InventoryPool is the stock an item is rented out of.
type InventoryPool struct {
	Item  *RentableItem
	Units []InventoryUnit
}

// Size is the configured quantity for pool items and the number of
// non-retired units for serialized items.
func (p InventoryPool) Size() int {
	if !p.Item.Serialized() {
		return p.Item.PoolQuantity
	}
	n := 0
	for _, u := range p.Units {
		if u.Status != UnitStatusRetired {
			n++
		}
	}
	return n
}

// InServiceUnits returns the allocatable units ordered by ascending id.
func (p InventoryPool) InServiceUnits() []InventoryUnit {
	out := make([]InventoryUnit, 0, len(p.Units))
	for _, u := range p.Units {
		if u.InService() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

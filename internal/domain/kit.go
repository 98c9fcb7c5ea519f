package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

type KitComponent struct {
	ItemID     int64 `json:"item_id"`
	Multiplier int   `json:"multiplier"`
}

// Kit is a named bundle of items rented together. A kit carries its own rate card.
type Kit struct {
	ID            int64            `json:"id"`
	CompanyID     int64            `json:"company_id"`
	Name          string           `json:"name"`
	Components    []KitComponent   `json:"components"`
	DailyRate     decimal.Decimal  `json:"daily_rate"`
	WeeklyRate    *decimal.Decimal `json:"weekly_rate,omitempty"`
	WeekendRate   *decimal.Decimal `json:"weekend_rate,omitempty"`
	MinRentalDays int              `json:"min_rental_days"`
	Currency      string           `json:"currency"`
}

// Variant is a priced flavour of an item that draws on the parent item's inventory.
type Variant struct {
	ID          int64            `json:"id"`
	ItemID      int64            `json:"item_id"`
	Name        string           `json:"name"`
	DailyRate   *decimal.Decimal `json:"daily_rate,omitempty"`
	WeeklyRate  *decimal.Decimal `json:"weekly_rate,omitempty"`
	WeekendRate *decimal.Decimal `json:"weekend_rate,omitempty"`
}

// ItemDemand is how many units of an item one unit of a bookable consumes.
type ItemDemand struct {
	ItemID     int64
	Multiplier int
}

// mergeDemand folds duplicate items together and orders the result by item id.
func mergeDemand(components []KitComponent) []ItemDemand {
	byItem := make(map[int64]int, len(components))
	for _, c := range components {
		byItem[c.ItemID] += c.Multiplier
	}
	out := make([]ItemDemand, 0, len(byItem))
	for id, m := range byItem {
		out = append(out, ItemDemand{ItemID: id, Multiplier: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// DemandItemIDs lists the item ids of a demand set in ascending order.
func DemandItemIDs(demand []ItemDemand) []int64 {
	ids := make([]int64, 0, len(demand))
	for _, d := range demand {
		ids = append(ids, d.ItemID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

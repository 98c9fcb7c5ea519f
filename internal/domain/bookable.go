package domain

import "fmt"

type BookableKind string

const (
	BookableKindItem    BookableKind = "item"
	BookableKindKit     BookableKind = "kit"
	BookableKindVariant BookableKind = "variant"
)

// BookableRef identifies what a line item books.
type BookableRef struct {
	Kind BookableKind `json:"kind"`
	ID   int64        `json:"id"`
}

func (r BookableRef) Validate() error {
	switch r.Kind {
	case BookableKindItem, BookableKindKit, BookableKindVariant:
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidBookable, r.Kind)
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: id %d", ErrInvalidBookable, r.ID)
	}
	return nil
}

func (r BookableRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// RuleScope selects the pricing rules a bookable is subject to.
type RuleScope struct {
	ItemID     *int64
	ItemTypeID *int64
}

func (s RuleScope) Empty() bool {
	return s.ItemID == nil && s.ItemTypeID == nil
}

type AvailabilityProvider interface {
	// Demand lists the items consumed by one unit of the bookable, ordered by item id.
	Demand() []ItemDemand
}

type PricingProvider interface {
	Rates() Rates
	RuleScope() RuleScope
	Currency() string
}

// Bookable is the closed set of things a line item can book: SingleItem, KitBookable and VariantBookable.
type Bookable interface {
	AvailabilityProvider
	PricingProvider
	Ref() BookableRef
	bookable()
}

type SingleItem struct {
	Item *RentableItem
}

func (b SingleItem) Ref() BookableRef { return BookableRef{Kind: BookableKindItem, ID: b.Item.ID} }
func (b SingleItem) Demand() []ItemDemand {
	return []ItemDemand{{ItemID: b.Item.ID, Multiplier: 1}}
}
func (b SingleItem) Rates() Rates     { return b.Item.Rates() }
func (b SingleItem) Currency() string { return b.Item.Currency }
func (b SingleItem) RuleScope() RuleScope {
	id := b.Item.ID
	return RuleScope{ItemID: &id, ItemTypeID: b.Item.ItemTypeID}
}
func (SingleItem) bookable() {}

// KitBookable prices with the kit's own rates. Rules attach to items and item
// types, so a kit is never subject to rules.
type KitBookable struct {
	Kit *Kit
}

func (b KitBookable) Ref() BookableRef    { return BookableRef{Kind: BookableKindKit, ID: b.Kit.ID} }
func (b KitBookable) Demand() []ItemDemand { return mergeDemand(b.Kit.Components) }
func (b KitBookable) Rates() Rates {
	return Rates{
		Daily:         b.Kit.DailyRate,
		Weekly:        b.Kit.WeeklyRate,
		Weekend:       b.Kit.WeekendRate,
		MinRentalDays: b.Kit.MinRentalDays,
	}
}
func (b KitBookable) Currency() string    { return b.Kit.Currency }
func (b KitBookable) RuleScope() RuleScope { return RuleScope{} }
func (KitBookable) bookable()              {}

type VariantBookable struct {
	Variant *Variant
	Parent  *RentableItem
}

func (b VariantBookable) Ref() BookableRef {
	return BookableRef{Kind: BookableKindVariant, ID: b.Variant.ID}
}
func (b VariantBookable) Demand() []ItemDemand {
	return []ItemDemand{{ItemID: b.Parent.ID, Multiplier: 1}}
}

// Rates overlays the variant's rates on the parent's.
func (b VariantBookable) Rates() Rates {
	r := b.Parent.Rates()
	if b.Variant.DailyRate != nil {
		r.Daily = *b.Variant.DailyRate
	}
	if b.Variant.WeeklyRate != nil {
		r.Weekly = b.Variant.WeeklyRate
	}
	if b.Variant.WeekendRate != nil {
		r.Weekend = b.Variant.WeekendRate
	}
	return r
}
func (b VariantBookable) Currency() string { return b.Parent.Currency }
func (b VariantBookable) RuleScope() RuleScope {
	return SingleItem{Item: b.Parent}.RuleScope()
}
func (VariantBookable) bookable() {}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RuleKind string

const (
	RuleKindSeasonal       RuleKind = "seasonal"
	RuleKindVolumeDiscount RuleKind = "volume_discount"
	RuleKindWeekendRate    RuleKind = "weekend_rate"
	RuleKindDayOfWeek      RuleKind = "day_of_week"
	RuleKindEarlyBird      RuleKind = "early_bird"
	RuleKindLastMinute     RuleKind = "last_minute"
)

// PricingRule modifies the price of an item or of every item of a type.
// PriceOverride and DiscountPercent are exclusive by convention; when both
// are set the override wins.
type PricingRule struct {
	ID              int64            `json:"id"`
	ItemID          *int64           `json:"item_id,omitempty"`
	ItemTypeID      *int64           `json:"item_type_id,omitempty"`
	Kind            RuleKind         `json:"kind"`
	Name            string           `json:"name"`
	EffectiveFrom   *time.Time       `json:"effective_from,omitempty"`
	EffectiveTo     *time.Time       `json:"effective_to,omitempty"`
	MinDays         *int             `json:"min_days,omitempty"`
	MaxDays         *int             `json:"max_days,omitempty"`
	DaysOfWeek      []time.Weekday   `json:"days_of_week,omitempty"`
	LeadDays        *int             `json:"lead_days,omitempty"`
	PriceOverride   *decimal.Decimal `json:"price_override,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	Priority        int              `json:"priority"`
	Position        int64            `json:"position"` // insertion order
	Active          bool             `json:"active"`
	DeletedOn       *time.Time       `json:"deleted_on,omitempty"`
}

var hundredPercent = decimal.NewFromInt(100)

// Validate rejects rules that cannot be applied. A rule with neither an
// override nor a discount is valid and changes nothing.
func (r PricingRule) Validate() error {
	switch {
	case r.ItemID == nil && r.ItemTypeID == nil:
		return &MisconfiguredRuleError{RuleID: r.ID, Reason: "references neither item nor item type"}
	case r.DiscountPercent != nil && (r.DiscountPercent.IsNegative() || r.DiscountPercent.GreaterThan(hundredPercent)):
		return &MisconfiguredRuleError{RuleID: r.ID, Reason: "has a discount outside 0-100 percent"}
	case r.PriceOverride != nil && r.PriceOverride.IsNegative():
		return &MisconfiguredRuleError{RuleID: r.ID, Reason: "has a negative price override"}
	}
	return nil
}

func (r PricingRule) IsOverride() bool {
	return r.PriceOverride != nil
}

// AppliesTo reports whether the rule is attached to the scope's item or item type.
func (r PricingRule) AppliesTo(scope RuleScope) bool {
	if r.ItemID != nil && scope.ItemID != nil && *r.ItemID == *scope.ItemID {
		return true
	}
	return r.ItemTypeID != nil && scope.ItemTypeID != nil && *r.ItemTypeID == *scope.ItemTypeID
}

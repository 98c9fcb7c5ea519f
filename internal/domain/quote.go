package domain

import "github.com/shopspring/decimal"

// PriceQuote is the computed price of a line. It is recomputed whenever the
// dates, quantity or rules change; a stored line price is only a cache of it.
type PriceQuote struct {
	Bookable            BookableRef     `json:"bookable"`
	Range               DateRange       `json:"range"`
	Days                int             `json:"days"`
	Quantity            int             `json:"quantity"`
	Currency            string          `json:"currency"`
	BaseUnitPrice       decimal.Decimal `json:"base_unit_price"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	PerDay              decimal.Decimal `json:"per_day"`
	RuleDiscount        decimal.Decimal `json:"rule_discount"`
	MatchedRules        []int64         `json:"matched_rules"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	LineDiscountPercent decimal.Decimal `json:"line_discount_percent"`
	LineDiscount        decimal.Decimal `json:"line_discount"`
	TaxRate             decimal.Decimal `json:"tax_rate"`
	Tax                 decimal.Decimal `json:"tax"`
	Total               decimal.Decimal `json:"total"`
}

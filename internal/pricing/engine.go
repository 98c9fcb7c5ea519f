package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/utils"
)

var hundred = decimal.NewFromInt(100)

// TaxRateProvider returns the tax percentage charged on a bookable.
type TaxRateProvider interface {
	TaxRate(ctx context.Context, ref domain.BookableRef) (decimal.Decimal, error)
}

type Option func(*Engine)

// WithClock replaces time.Now as the moment quotes are made.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTaxRates(p TaxRateProvider) Option {
	return func(e *Engine) { e.taxes = p }
}

// Engine prices bookables. It holds no state besides its clock and tax
// source, so one engine serves all tenants.
type Engine struct {
	now   func() time.Time
	taxes TaxRateProvider
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BasePrice prices one unit over r with the first tier that fits: weekly when
// the rental spans at least a week, the weekend split when a weekend rate is
// set, the daily rate otherwise. Rentals shorter than the minimum are topped
// up at the daily rate.
func BasePrice(rates domain.Rates, r domain.DateRange) decimal.Decimal {
	days := r.Days()

	var price decimal.Decimal
	switch {
	case rates.Weekly != nil && days >= 7:
		weeks, rest := days/7, days%7
		price = rates.Weekly.Mul(decimal.NewFromInt(int64(weeks))).
			Add(rates.Daily.Mul(decimal.NewFromInt(int64(rest))))
	case rates.Weekend != nil:
		weekend := utils.WeekendDays(r.Start, r.End)
		price = rates.Weekend.Mul(decimal.NewFromInt(int64(weekend))).
			Add(rates.Daily.Mul(decimal.NewFromInt(int64(days - weekend))))
	default:
		price = rates.Daily.Mul(decimal.NewFromInt(int64(days)))
	}

	if short := rates.MinRentalDays - days; short > 0 {
		price = price.Add(rates.Daily.Mul(decimal.NewFromInt(int64(short))))
	}
	return price
}

// FlatTaxRate charges the same percentage on every bookable.
type FlatTaxRate decimal.Decimal

func (f FlatTaxRate) TaxRate(context.Context, domain.BookableRef) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

// Applied is the outcome of running rules over a base price.
type Applied struct {
	Price    decimal.Decimal
	Matched  []int64
	Override bool
}

// ApplyRules runs rules in order. An override replaces the running price and
// ends evaluation; discounts compound. Rules without an effect are skipped.
func ApplyRules(base decimal.Decimal, rules []domain.PricingRule) Applied {
	out := Applied{Price: base}
	for _, rule := range rules {
		if rule.IsOverride() {
			out.Price = *rule.PriceOverride
			out.Matched = append(out.Matched, rule.ID)
			out.Override = true
			break
		}
		if rule.DiscountPercent == nil {
			continue
		}
		out.Price = out.Price.Mul(hundred.Sub(*rule.DiscountPercent)).Div(hundred)
		out.Matched = append(out.Matched, rule.ID)
	}
	if out.Price.IsNegative() {
		out.Price = decimal.Zero
	}
	return out
}

// ValidateDiscount checks that pct is a percentage between 0 and 100.
func ValidateDiscount(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return domain.ErrInvalidDiscount
	}
	return nil
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Quote prices qty of b over r. The rule price is per unit for the whole
// range; lineDiscount is a percentage taken off the line subtotal afterwards.
func (e *Engine) Quote(ctx context.Context, b domain.Bookable, rules RuleSet, r domain.DateRange, qty int, lineDiscount decimal.Decimal) (*domain.PriceQuote, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if err := ValidateDiscount(lineDiscount); err != nil {
		return nil, err
	}

	rates := b.Rates()
	base := round(BasePrice(rates, r))
	applicable, err := rules.ApplicableRules(b.RuleScope(), r, e.now())
	if err != nil {
		return nil, err
	}
	applied := ApplyRules(base, applicable)
	unit := round(applied.Price)

	billed := r.Days()
	if rates.MinRentalDays > billed {
		billed = rates.MinRentalDays
	}

	subtotal := unit.Mul(decimal.NewFromInt(int64(qty)))
	discount := round(subtotal.Mul(lineDiscount).Div(hundred))
	net := subtotal.Sub(discount)

	taxRate := decimal.Zero
	if e.taxes != nil {
		if taxRate, err = e.taxes.TaxRate(ctx, b.Ref()); err != nil {
			return nil, fmt.Errorf("tax rate for %s: %w", b.Ref(), err)
		}
	}
	tax := round(net.Mul(taxRate).Div(hundred))

	matched := applied.Matched
	if matched == nil {
		matched = []int64{}
	}
	return &domain.PriceQuote{
		Bookable:            b.Ref(),
		Range:               r,
		Days:                r.Days(),
		Quantity:            qty,
		Currency:            b.Currency(),
		BaseUnitPrice:       base,
		UnitPrice:           unit,
		PerDay:              round(unit.Div(decimal.NewFromInt(int64(billed)))),
		RuleDiscount:        base.Sub(unit),
		MatchedRules:        matched,
		Subtotal:            subtotal,
		LineDiscountPercent: lineDiscount,
		LineDiscount:        discount,
		TaxRate:             taxRate,
		Tax:                 tax,
		Total:               net.Add(tax),
	}, nil
}

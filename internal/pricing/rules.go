package pricing

import (
	"sort"
	"time"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/utils"
)

// RuleSet is the pricing rules loaded for one bookable.
type RuleSet []domain.PricingRule

// ApplicableRules returns the rules of rs that price scope over r, highest
// priority first. Rules of equal priority keep insertion order.
//
// now is the moment the quote is made; early_bird and last_minute rules
// measure their lead time from it.
func (rs RuleSet) ApplicableRules(scope domain.RuleScope, r domain.DateRange, now time.Time) ([]domain.PricingRule, error) {
	if scope.Empty() {
		return nil, nil
	}
	days := r.Days()
	lead := utils.DaysBetween(now, r.Start)

	var out []domain.PricingRule
	for _, rule := range rs {
		if !rule.Active || rule.DeletedOn != nil {
			continue
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if !rule.AppliesTo(scope) {
			continue
		}
		if rule.EffectiveFrom != nil && r.End.Before(utils.TruncateDay(*rule.EffectiveFrom)) {
			continue
		}
		if rule.EffectiveTo != nil && r.Start.After(utils.TruncateDay(*rule.EffectiveTo)) {
			continue
		}
		if rule.MinDays != nil && days < *rule.MinDays {
			continue
		}
		if rule.MaxDays != nil && days > *rule.MaxDays {
			continue
		}
		if len(rule.DaysOfWeek) > 0 && !utils.ContainsWeekday(r.Start, r.End, rule.DaysOfWeek) {
			continue
		}
		if rule.LeadDays != nil {
			switch rule.Kind {
			case domain.RuleKindEarlyBird:
				if lead < *rule.LeadDays {
					continue
				}
			case domain.RuleKindLastMinute:
				if lead > *rule.LeadDays {
					continue
				}
			}
		}
		out = append(out, rule)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

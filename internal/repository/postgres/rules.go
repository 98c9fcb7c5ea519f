package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/repository"
)

type ruleRepository struct {
	db        DBTX
	companyID int64
}

func NewRuleRepository(db DBTX, companyID int64) repository.RuleRepository {
	return &ruleRepository{db: db, companyID: companyID}
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// ListRules uses the row id as insertion position.
func (r *ruleRepository) ListRules(ctx context.Context, scope domain.RuleScope) ([]domain.PricingRule, error) {
	if scope.Empty() {
		return nil, nil
	}
	query := `SELECT id, item_id, item_type_id, kind, name, effective_from, effective_to, min_days, max_days,
	                 days_of_week, lead_days, price_override, discount_percent, priority, active, deleted_on
	          FROM pricing_rules
	          WHERE company_id = $1 AND (item_id = $2 OR item_type_id = $3)
	          ORDER BY id`
	var itemID, typeID sql.NullInt64
	if scope.ItemID != nil {
		itemID = sql.NullInt64{Int64: *scope.ItemID, Valid: true}
	}
	if scope.ItemTypeID != nil {
		typeID = sql.NullInt64{Int64: *scope.ItemTypeID, Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, query, r.companyID, itemID, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.PricingRule
	for rows.Next() {
		var (
			rule                       domain.PricingRule
			ruleItem, ruleType         sql.NullInt64
			from, to, deleted          sql.NullTime
			minDays, maxDays, leadDays sql.NullInt64
			weekdays                   pq.Int64Array
			override, discount         decimal.NullDecimal
		)
		if err := rows.Scan(&rule.ID, &ruleItem, &ruleType, &rule.Kind, &rule.Name, &from, &to, &minDays, &maxDays,
			&weekdays, &leadDays, &override, &discount, &rule.Priority, &rule.Active, &deleted); err != nil {
			return nil, err
		}
		if ruleItem.Valid {
			rule.ItemID = &ruleItem.Int64
		}
		if ruleType.Valid {
			rule.ItemTypeID = &ruleType.Int64
		}
		rule.EffectiveFrom = nullTime(from)
		rule.EffectiveTo = nullTime(to)
		rule.DeletedOn = nullTime(deleted)
		rule.MinDays = nullInt(minDays)
		rule.MaxDays = nullInt(maxDays)
		rule.LeadDays = nullInt(leadDays)
		for _, d := range weekdays {
			rule.DaysOfWeek = append(rule.DaysOfWeek, time.Weekday(d))
		}
		rule.PriceOverride = nullDecimal(override)
		rule.DiscountPercent = nullDecimal(discount)
		rule.Position = rule.ID
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

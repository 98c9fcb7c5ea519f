package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/repository"
)

type itemRepository struct {
	db        DBTX
	companyID int64
}

func NewItemRepository(db DBTX, companyID int64) repository.ItemRepository {
	return &itemRepository{db: db, companyID: companyID}
}

func nullDecimal(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func (r *itemRepository) GetItem(ctx context.Context, id int64) (*domain.RentableItem, error) {
	query := `SELECT id, company_id, item_type_id, name, tracking_mode, pool_quantity, daily_rate, weekly_rate, weekend_rate, min_rental_days, currency
	          FROM rentable_items WHERE id = $1 AND company_id = $2`
	item := &domain.RentableItem{}
	var typeID sql.NullInt64
	var weekly, weekend decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, query, id, r.companyID).Scan(
		&item.ID, &item.CompanyID, &typeID, &item.Name, &item.TrackingMode, &item.PoolQuantity,
		&item.DailyRate, &weekly, &weekend, &item.MinRentalDays, &item.Currency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownItem
	}
	if err != nil {
		return nil, err
	}
	if typeID.Valid {
		item.ItemTypeID = &typeID.Int64
	}
	item.WeeklyRate = nullDecimal(weekly)
	item.WeekendRate = nullDecimal(weekend)
	return item, nil
}

func (r *itemRepository) ListUnits(ctx context.Context, itemID int64) ([]domain.InventoryUnit, error) {
	query := `SELECT id, item_id, serial, status FROM inventory_units
	          WHERE item_id = $1 AND company_id = $2 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, itemID, r.companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []domain.InventoryUnit
	for rows.Next() {
		var u domain.InventoryUnit
		if err := rows.Scan(&u.ID, &u.ItemID, &u.Serial, &u.Status); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *itemRepository) UpdateUnitStatus(ctx context.Context, unitID int64, status domain.UnitStatus) error {
	query := `UPDATE inventory_units SET status = $1 WHERE id = $2 AND company_id = $3`
	res, err := r.db.ExecContext(ctx, query, status, unitID, r.companyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUnknownUnit
	}
	return nil
}

func (r *itemRepository) GetKit(ctx context.Context, id int64) (*domain.Kit, error) {
	query := `SELECT id, company_id, name, daily_rate, weekly_rate, weekend_rate, min_rental_days, currency
	          FROM kits WHERE id = $1 AND company_id = $2`
	kit := &domain.Kit{}
	var weekly, weekend decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, query, id, r.companyID).Scan(
		&kit.ID, &kit.CompanyID, &kit.Name, &kit.DailyRate, &weekly, &weekend, &kit.MinRentalDays, &kit.Currency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownKit
	}
	if err != nil {
		return nil, err
	}
	kit.WeeklyRate = nullDecimal(weekly)
	kit.WeekendRate = nullDecimal(weekend)

	rows, err := r.db.QueryContext(ctx, `SELECT item_id, multiplier FROM kit_components WHERE kit_id = $1 ORDER BY item_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.KitComponent
		if err := rows.Scan(&c.ItemID, &c.Multiplier); err != nil {
			return nil, err
		}
		kit.Components = append(kit.Components, c)
	}
	return kit, rows.Err()
}

func (r *itemRepository) GetVariant(ctx context.Context, id int64) (*domain.Variant, error) {
	query := `SELECT id, item_id, name, daily_rate, weekly_rate, weekend_rate
	          FROM item_variants WHERE id = $1 AND company_id = $2`
	v := &domain.Variant{}
	var daily, weekly, weekend decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, query, id, r.companyID).Scan(&v.ID, &v.ItemID, &v.Name, &daily, &weekly, &weekend)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownVariant
	}
	if err != nil {
		return nil, err
	}
	v.DailyRate = nullDecimal(daily)
	v.WeeklyRate = nullDecimal(weekly)
	v.WeekendRate = nullDecimal(weekend)
	return v, nil
}

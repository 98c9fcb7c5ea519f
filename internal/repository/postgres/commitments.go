package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/logger"
	"equiprent-backend/internal/repository"
)

const commitmentColumns = `id, group_id, booking_id, booking_status, bookable_kind, bookable_id, line_quantity,
	line_discount_percent, item_id, unit_id, quantity, start_date, end_date, created_on, released_on`

type commitmentRepository struct {
	db        DBTX
	companyID int64
}

func NewCommitmentRepository(db DBTX, companyID int64) repository.CommitmentRepository {
	return &commitmentRepository{db: db, companyID: companyID}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCommitment(row scanner) (domain.Commitment, error) {
	var c domain.Commitment
	var unitID sql.NullInt64
	var released sql.NullTime
	err := row.Scan(&c.ID, &c.GroupID, &c.BookingID, &c.BookingStatus, &c.Bookable.Kind, &c.Bookable.ID, &c.LineQuantity,
		&c.LineDiscountPercent, &c.ItemID, &unitID, &c.Quantity, &c.Range.Start, &c.Range.End, &c.CreatedOn, &released)
	if err != nil {
		return c, err
	}
	if unitID.Valid {
		c.UnitID = &unitID.Int64
	}
	c.ReleasedOn = nullTime(released)
	c.Range.Start = c.Range.Start.UTC()
	c.Range.End = c.Range.End.UTC()
	return c, nil
}

func (r *commitmentRepository) list(ctx context.Context, query string, args ...any) ([]domain.Commitment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func activeStatuses() pq.StringArray {
	out := make(pq.StringArray, 0, len(domain.ActiveBookingStatuses))
	for _, s := range domain.ActiveBookingStatuses {
		out = append(out, string(s))
	}
	return out
}

func (r *commitmentRepository) ListActive(ctx context.Context, itemID int64, rng domain.DateRange) ([]domain.Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM commitments
	          WHERE company_id = $1 AND item_id = $2 AND released_on IS NULL
	            AND booking_status = ANY($3) AND start_date <= $4 AND end_date >= $5
	          ORDER BY id`
	logger.DatabaseCall("commitments.ListActive", query, "itemID", itemID, "range", rng.String())
	return r.list(ctx, query, r.companyID, itemID, activeStatuses(), rng.End, rng.Start)
}

func (r *commitmentRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM commitments WHERE company_id = $1 AND group_id = $2 ORDER BY id`
	return r.list(ctx, query, r.companyID, groupID)
}

func (r *commitmentRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM commitments WHERE company_id = $1 AND booking_id = $2 ORDER BY id`
	return r.list(ctx, query, r.companyID, bookingID)
}

func (r *commitmentRepository) Create(ctx context.Context, c *domain.Commitment) error {
	query := `INSERT INTO commitments (company_id, group_id, booking_id, booking_status, bookable_kind, bookable_id,
	              line_quantity, line_discount_percent, item_id, unit_id, quantity, start_date, end_date, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
	if c.CreatedOn.IsZero() {
		c.CreatedOn = time.Now()
	}
	return r.db.QueryRowContext(ctx, query, r.companyID, c.GroupID, c.BookingID, c.BookingStatus, c.Bookable.Kind, c.Bookable.ID,
		c.LineQuantity, c.LineDiscountPercent, c.ItemID, c.UnitID, c.Quantity, c.Range.Start, c.Range.End, c.CreatedOn,
	).Scan(&c.ID)
}

func (r *commitmentRepository) Update(ctx context.Context, c *domain.Commitment) error {
	query := `UPDATE commitments SET unit_id = $1, quantity = $2, line_quantity = $3, start_date = $4, end_date = $5
	          WHERE id = $6 AND company_id = $7`
	res, err := r.db.ExecContext(ctx, query, c.UnitID, c.Quantity, c.LineQuantity, c.Range.Start, c.Range.End, c.ID, r.companyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUnknownCommitment
	}
	return nil
}

func (r *commitmentRepository) Release(ctx context.Context, groupID uuid.UUID, at time.Time) (int64, error) {
	query := `UPDATE commitments SET released_on = $1 WHERE company_id = $2 AND group_id = $3 AND released_on IS NULL`
	res, err := r.db.ExecContext(ctx, query, at, r.companyID, groupID)
	if err != nil {
		logger.DatabaseResult("commitments.Release", 0, err, "groupID", groupID)
		return 0, err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("commitments.Release", n, err, "groupID", groupID)
	return n, err
}

func (r *commitmentRepository) UpdateBookingStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) error {
	query := `UPDATE commitments SET booking_status = $1 WHERE company_id = $2 AND booking_id = $3`
	_, err := r.db.ExecContext(ctx, query, status, r.companyID, bookingID)
	return err
}

func (r *commitmentRepository) ListCancelledGroups(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT DISTINCT group_id FROM commitments
	          WHERE company_id = $1 AND booking_status = $2 AND released_on IS NULL`
	rows, err := r.db.QueryContext(ctx, query, r.companyID, domain.BookingStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []uuid.UUID
	for rows.Next() {
		var g uuid.UUID
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *commitmentRepository) PurgeReleased(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM commitments WHERE company_id = $1 AND released_on IS NOT NULL AND released_on < $2`
	res, err := r.db.ExecContext(ctx, query, r.companyID, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

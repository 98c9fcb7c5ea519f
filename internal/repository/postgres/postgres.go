package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"equiprent-backend/internal/logger"
	"equiprent-backend/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store hands out repositories scoped to one company.
type Store struct {
	db        *sql.DB
	companyID int64
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ForCompany returns a store whose queries only see rows of companyID.
func (s *Store) ForCompany(companyID int64) *Store {
	return &Store{db: s.db, companyID: companyID}
}

// Repositories binds the repositories to q.
func (s *Store) Repositories(q DBTX) repository.Repositories {
	return repository.Repositories{
		Items:       NewItemRepository(q, s.companyID),
		Rules:       NewRuleRepository(q, s.companyID),
		Commitments: NewCommitmentRepository(q, s.companyID),
	}
}

// lockKey folds company and item into the single bigint advisory lock space.
func lockKey(companyID, itemID int64) int64 {
	return companyID<<32 | itemID&0xffffffff
}

func (s *Store) WithItemLocks(ctx context.Context, itemIDs []int64, fn func(ctx context.Context, repos repository.Repositories) error) error {
	logger.EnterMethod("Store.WithItemLocks", "companyID", s.companyID, "items", itemIDs)

	ids := append([]int64(nil), itemIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var prev int64
	for i, id := range ids {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(s.companyID, id)); err != nil {
			return fmt.Errorf("lock item %d: %w", id, err)
		}
	}

	if err := fn(ctx, s.Repositories(tx)); err != nil {
		logger.ExitMethodWithError("Store.WithItemLocks", err, "companyID", s.companyID)
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.ExitMethod("Store.WithItemLocks", "companyID", s.companyID)
	return nil
}

func (s *Store) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, s.Repositories(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Tenant(companyID int64) repository.TxManager {
	return s.ForCompany(companyID)
}

func (s *Store) CompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT company_id FROM commitments ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

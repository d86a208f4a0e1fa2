package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Repository provides organization settings and account mapping lookups.
type Repository interface {
	Get(ctx context.Context) (Settings, error)
	GetMapping(ctx context.Context, key string) (AccountMapping, error)
	PutMapping(ctx context.Context, key string, accountID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context) (Settings, error) {
	var s Settings
	var closed *time.Time
	err := r.db.QueryRow(ctx, `SELECT last_closed_date, base_currency, updated_at FROM org_settings WHERE id=1`).
		Scan(&closed, &s.BaseCurrency, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, nil
		}
		return Settings{}, err
	}
	if closed != nil {
		s.LastClosedDate = *closed
	}
	return s, nil
}

func (r *repository) GetMapping(ctx context.Context, key string) (AccountMapping, error) {
	var m AccountMapping
	err := r.db.QueryRow(ctx, `SELECT key, account_id, created_at FROM account_mappings WHERE key=$1`, key).
		Scan(&m.Key, &m.AccountID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *repository) PutMapping(ctx context.Context, key string, accountID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (key, account_id) VALUES ($1,$2)
ON CONFLICT (key) DO UPDATE SET account_id=EXCLUDED.account_id`, key, accountID)
	return err
}

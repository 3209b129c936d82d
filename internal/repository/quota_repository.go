package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"albumshare/internal/domain"
)

// QuotaRepository is the Postgres-backed ledger. Every mutation is a single
// additive or absolute statement; nothing is read-modified-written in Go.
type QuotaRepository struct {
	db           *sqlx.DB
	defaultQuota int64
}

func NewQuotaRepository(db *sqlx.DB, defaultQuota int64) *QuotaRepository {
	return &QuotaRepository{db: db, defaultQuota: defaultQuota}
}

const selectQuota = `
        SELECT user_id, quota_bytes, used_bytes, created_at, updated_at
        FROM quota_records
        WHERE user_id = $1`

func (r *QuotaRepository) ensure(ctx context.Context, ex sqlx.ExecerContext, userID string) error {
	query := `
        INSERT INTO quota_records (user_id, quota_bytes, used_bytes)
        VALUES ($1, $2, 0)
        ON CONFLICT (user_id) DO NOTHING`

	if _, err := ex.ExecContext(ctx, query, userID, r.defaultQuota); err != nil {
		return fmt.Errorf("failed to create quota: %w", err)
	}
	return nil
}

// GetForUpdate reads the record under a row lock held until tx ends,
// creating a zeroed record first if the user has none.
func (r *QuotaRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, userID string) (*domain.QuotaRecord, error) {
	if err := r.ensure(ctx, tx, userID); err != nil {
		return nil, err
	}

	var rec domain.QuotaRecord
	if err := tx.GetContext(ctx, &rec, selectQuota+` FOR UPDATE`, userID); err != nil {
		return nil, fmt.Errorf("failed to lock quota: %w", err)
	}
	return &rec, nil
}

// ReadLocked runs fn against the locked record and commits. The lock only
// serializes concurrent checks; it is released before any upload happens.
func (r *QuotaRepository) ReadLocked(ctx context.Context, userID string, fn func(*domain.QuotaRecord) error) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		rec, err := r.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		return fn(rec)
	})
}

func (r *QuotaRepository) Get(ctx context.Context, userID string) (*domain.QuotaRecord, error) {
	if err := r.ensure(ctx, r.db, userID); err != nil {
		return nil, err
	}

	var rec domain.QuotaRecord
	if err := r.db.GetContext(ctx, &rec, selectQuota, userID); err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return &rec, nil
}

func (r *QuotaRepository) Increment(ctx context.Context, userID string, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("increment must not be negative: %d", bytes)
	}

	query := `
        INSERT INTO quota_records (user_id, quota_bytes, used_bytes)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE
        SET used_bytes = quota_records.used_bytes + EXCLUDED.used_bytes,
            updated_at = CURRENT_TIMESTAMP`

	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query, userID, r.defaultQuota, bytes); err != nil {
			return fmt.Errorf("failed to increment used space: %w", err)
		}
		return nil
	})
}

// Decrement clamps at zero; underflow means drift and is left to Reconcile.
func (r *QuotaRepository) Decrement(ctx context.Context, userID string, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("decrement must not be negative: %d", bytes)
	}

	query := `
        UPDATE quota_records
        SET used_bytes = GREATEST(0, used_bytes - $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $2`

	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query, bytes, userID); err != nil {
			return fmt.Errorf("failed to decrement used space: %w", err)
		}
		return nil
	})
}

// Reconcile overwrites used_bytes with the sum over the user's media. The
// value it replaces is read under the same row lock, so before and after
// describe one transition.
func (r *QuotaRepository) Reconcile(ctx context.Context, userID string) (before, after int64, err error) {
	query := `
        UPDATE quota_records
        SET used_bytes = (SELECT COALESCE(SUM(size_bytes), 0) FROM media_assets WHERE uploader_id = $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $1
        RETURNING used_bytes`

	err = inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		rec, err := r.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		before = rec.UsedBytes

		if err := tx.QueryRowxContext(ctx, query, userID).Scan(&after); err != nil {
			return fmt.Errorf("failed to reconcile used space: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return before, after, nil
}

// ListUserIDs returns every user that has a ledger row or uploaded media.
func (r *QuotaRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	query := `
        SELECT user_id FROM quota_records
        UNION
        SELECT uploader_id FROM media_assets
        ORDER BY 1`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list quota owners: %w", err)
	}
	return ids, nil
}

func (r *QuotaRepository) UpdateQuotaLimit(ctx context.Context, userID string, newLimit int64) error {
	query := `
        INSERT INTO quota_records (user_id, quota_bytes, used_bytes)
        VALUES ($1, $2, 0)
        ON CONFLICT (user_id) DO UPDATE
        SET quota_bytes = EXCLUDED.quota_bytes,
            updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.ExecContext(ctx, query, userID, newLimit); err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}
	return nil
}

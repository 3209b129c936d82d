package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"albumshare/internal/domain"
)

// QuotaStore persists the per-user ledger.
type QuotaStore interface {
	// ReadLocked calls fn with the user's record under a row lock that is
	// released when ReadLocked returns.
	ReadLocked(ctx context.Context, userID string, fn func(*domain.QuotaRecord) error) error
	Get(ctx context.Context, userID string) (*domain.QuotaRecord, error)
	Increment(ctx context.Context, userID string, bytes int64) error
	Decrement(ctx context.Context, userID string, bytes int64) error
	// Reconcile sets usedBytes to the sum of the user's media and returns
	// the replaced and new values, read under one lock.
	Reconcile(ctx context.Context, userID string) (before, after int64, err error)
	ListUserIDs(ctx context.Context) ([]string, error)
	UpdateQuotaLimit(ctx context.Context, userID string, newLimit int64) error
}

// QuotaService is the ledger as seen by the ingestion protocol.
type QuotaService struct {
	store QuotaStore
	log   zerolog.Logger
}

func NewQuotaService(store QuotaStore, log zerolog.Logger) *QuotaService {
	return &QuotaService{store: store, log: log}
}

// CheckCapacity fails with *domain.QuotaExceededError when size does not fit.
// Nothing is reserved: two checks that each fit may both pass.
func (s *QuotaService) CheckCapacity(ctx context.Context, userID string, size int64) error {
	return s.store.ReadLocked(ctx, userID, func(rec *domain.QuotaRecord) error {
		remaining := rec.Remaining()
		if size > remaining {
			return &domain.QuotaExceededError{
				Requested: size,
				Remaining: remaining,
				Quota:     rec.QuotaBytes,
				Used:      rec.UsedBytes,
			}
		}
		return nil
	})
}

func (s *QuotaService) GetQuotaInfo(ctx context.Context, userID string) (*domain.QuotaInfo, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}

	return &domain.QuotaInfo{
		QuotaBytes:     rec.QuotaBytes,
		UsedBytes:      rec.UsedBytes,
		RemainingBytes: rec.Remaining(),
	}, nil
}

func (s *QuotaService) Get(ctx context.Context, userID string) (*domain.QuotaRecord, error) {
	return s.store.Get(ctx, userID)
}

func (s *QuotaService) Charge(ctx context.Context, userID string, bytes int64) error {
	return s.store.Increment(ctx, userID, bytes)
}

func (s *QuotaService) Release(ctx context.Context, userID string, bytes int64) error {
	return s.store.Decrement(ctx, userID, bytes)
}

func (s *QuotaService) Reconcile(ctx context.Context, userID string) (before, after int64, err error) {
	return s.store.Reconcile(ctx, userID)
}

func (s *QuotaService) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.store.ListUserIDs(ctx)
}

func (s *QuotaService) UpdateQuotaLimit(ctx context.Context, userID string, newLimit int64) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrBadRequest)
	}
	if newLimit < 0 {
		return fmt.Errorf("%w: new quota limit cannot be negative", domain.ErrBadRequest)
	}
	if err := s.store.UpdateQuotaLimit(ctx, userID, newLimit); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Int64("quota_bytes", newLimit).Msg("quota limit updated")
	return nil
}

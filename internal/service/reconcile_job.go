package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"albumshare/internal/domain"
	"albumshare/internal/metrics"
)

// ReconcileResult is the ledger value before and after a reconciliation.
type ReconcileResult struct {
	UserID string `json:"userId"`
	Before int64  `json:"beforeBytes"`
	After  int64  `json:"afterBytes"`
}

// Drift is positive when the ledger over-counted.
func (r ReconcileResult) Drift() int64 {
	return r.Before - r.After
}

// ReconcileJob resets usedBytes to the sum of registered media sizes.
type ReconcileJob struct {
	quota   *QuotaService
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewReconcileJob(quota *QuotaService, m *metrics.Metrics, log zerolog.Logger) *ReconcileJob {
	return &ReconcileJob{quota: quota, metrics: m, log: log}
}

func (j *ReconcileJob) RunForUser(ctx context.Context, userID string) (*ReconcileResult, error) {
	res, err := j.runForUser(ctx, userID)
	if err != nil {
		j.metrics.RecordReconcile("error", 0)
		j.log.Error().Err(err).Str("user_id", userID).Msg("reconciliation failed")
		return nil, err
	}
	j.metrics.RecordReconcile("ok", res.Drift())

	ev := j.log.Debug()
	if res.Drift() != 0 {
		ev = j.log.Warn()
	}
	ev.Str("user_id", userID).
		Int64("before_bytes", res.Before).
		Int64("after_bytes", res.After).
		Msg("ledger reconciled")
	return res, nil
}

func (j *ReconcileJob) runForUser(ctx context.Context, userID string) (*ReconcileResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrBadRequest)
	}
	before, after, err := j.quota.Reconcile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	return &ReconcileResult{UserID: userID, Before: before, After: after}, nil
}

// RunAll reconciles every known user, continuing past individual failures.
func (j *ReconcileJob) RunAll(ctx context.Context) ([]ReconcileResult, error) {
	ids, err := j.quota.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var (
		results []ReconcileResult
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := j.RunForUser(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", id, err))
			continue
		}
		results = append(results, *res)
	}

	j.log.Info().Int("users", len(ids)).Int("failed", len(errs)).Msg("reconciliation pass finished")
	return results, errors.Join(errs...)
}

// Start runs RunAll every interval until ctx is cancelled. A non-positive
// interval disables the loop.
func (j *ReconcileJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunAll(ctx); err != nil && ctx.Err() == nil {
				j.log.Error().Err(err).Msg("periodic reconciliation had failures")
			}
		}
	}
}

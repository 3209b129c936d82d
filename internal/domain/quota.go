package domain

import "time"

// QuotaRecord is the per-user storage ledger row.
type QuotaRecord struct {
	UserID     string    `json:"user_id" db:"user_id"`
	QuotaBytes int64     `json:"quota_bytes" db:"quota_bytes"`
	UsedBytes  int64     `json:"used_bytes" db:"used_bytes"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Remaining returns the free capacity, clamped at zero.
func (q *QuotaRecord) Remaining() int64 {
	if q.UsedBytes >= q.QuotaBytes {
		return 0
	}
	return q.QuotaBytes - q.UsedBytes
}

type QuotaInfo struct {
	QuotaBytes     int64 `json:"quotaBytes"`
	UsedBytes      int64 `json:"usedBytes"`
	RemainingBytes int64 `json:"remainingBytes"`
}

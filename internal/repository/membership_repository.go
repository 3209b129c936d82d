package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MembershipRepository reads album_members. Invitations and role changes are
// owned by the membership workflow; this service never writes the table.
type MembershipRepository struct {
	db *sqlx.DB
}

func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// ActiveRole returns the caller's role in the album, or ok=false when the
// caller is not an active member.
func (r *MembershipRepository) ActiveRole(ctx context.Context, albumID, userID string) (string, bool, error) {
	query := `
        SELECT role FROM album_members
        WHERE album_id = $1 AND user_id = $2 AND status = 'active'`

	var role string
	err := r.db.GetContext(ctx, &role, query, albumID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to check membership: %w", err)
	}
	return role, true, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	fees "coaching-fees/internal/fees/domain"
)

// GetMember reads a member from the roster table.
func (s *Store) GetMember(ctx context.Context, coachingID, memberID string) (*fees.Member, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	var member fees.Member
	err := s.db.QueryRowContext(ctx, `
SELECT id, coaching_id, name, phone, batch, active
FROM members
WHERE coaching_id = $1 AND id = $2`, coachingID, memberID).Scan(
		&member.ID, &member.CoachingID, &member.Name, &member.Phone, &member.Batch, &member.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

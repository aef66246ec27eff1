package store

import (
	"context"
	"fmt"
)

func (s *Queries) GetGrant(ctx context.Context, noteID, userID string) (PermissionGrant, error) {
	var grant PermissionGrant
	err := s.q.QueryRowContext(ctx, `
		SELECT note_id, user_id, permission, invite_pending, sorting_rank_preference, created, last_updated
		FROM note_grants
		WHERE note_id=$1 AND user_id=$2
	`, noteID, userID).Scan(
		&grant.NoteID, &grant.UserID, &grant.Permission, &grant.InvitePending,
		&grant.SortingRankPreference, &grant.Created, &grant.LastUpdated,
	)
	if err != nil {
		return PermissionGrant{}, err
	}
	return grant, nil
}

func (s *Queries) UpsertGrant(ctx context.Context, grant PermissionGrant) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO note_grants (note_id, user_id, permission, invite_pending, sorting_rank_preference)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (note_id, user_id) DO UPDATE
		SET permission=EXCLUDED.permission,
		    invite_pending=EXCLUDED.invite_pending,
		    sorting_rank_preference=EXCLUDED.sorting_rank_preference,
		    last_updated=NOW()
	`, grant.NoteID, grant.UserID, grant.Permission, grant.InvitePending, grant.SortingRankPreference)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

// AcceptGrant clears the pending flag on an invite. Returns false when no
// pending grant exists for the pair.
func (s *Queries) AcceptGrant(ctx context.Context, noteID, userID string) (bool, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE note_grants
		SET invite_pending=FALSE, last_updated=NOW()
		WHERE note_id=$1 AND user_id=$2 AND invite_pending
	`, noteID, userID)
	if err != nil {
		return false, fmt.Errorf("accept grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accept grant rows: %w", err)
	}
	return rows > 0, nil
}

// DeleteGrant removes an explicit grant. Deletion never cascades to
// descendants; their effective permission falls back to the next ancestor.
func (s *Queries) DeleteGrant(ctx context.Context, noteID, userID string) (bool, error) {
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM note_grants WHERE note_id=$1 AND user_id=$2
	`, noteID, userID)
	if err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete grant rows: %w", err)
	}
	return rows > 0, nil
}

func (s *Queries) ListGrantsForNote(ctx context.Context, noteID string) ([]PermissionGrant, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT note_id, user_id, permission, invite_pending, sorting_rank_preference, created, last_updated
		FROM note_grants
		WHERE note_id=$1
		ORDER BY created
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []PermissionGrant
	for rows.Next() {
		var grant PermissionGrant
		if err := rows.Scan(
			&grant.NoteID, &grant.UserID, &grant.Permission, &grant.InvitePending,
			&grant.SortingRankPreference, &grant.Created, &grant.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

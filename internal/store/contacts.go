package store

import (
	"context"
	"fmt"
)

// AreContacts reports whether the two users are trusted contacts of each
// other. The relation is symmetric regardless of which side initiated it.
func (s *Queries) AreContacts(ctx context.Context, userID, otherID string) (bool, error) {
	var linked bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM contacts
			WHERE (user_id=$1 AND contact_id=$2) OR (user_id=$2 AND contact_id=$1)
		)
	`, userID, otherID).Scan(&linked)
	if err != nil {
		return false, fmt.Errorf("check contacts: %w", err)
	}
	return linked, nil
}

func (s *Queries) AddContact(ctx context.Context, userID, otherID string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO contacts (user_id, contact_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT (user_id, contact_id) DO NOTHING
	`, userID, otherID)
	if err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
)

func (s *Queries) InsertNote(ctx context.Context, note Note) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO notes (id, title, kind, content)
		VALUES ($1, $2, $3, $4)
	`, note.ID, note.Title, note.Kind, note.Content)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *Queries) NoteExists(ctx context.Context, noteID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM notes WHERE id=$1)`, noteID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check note %s: %w", noteID, err)
	}
	return exists, nil
}

func (s *Queries) GetNote(ctx context.Context, noteID string) (Note, error) {
	var note Note
	err := s.q.QueryRowContext(ctx, `
		SELECT id, title, kind, content, created, last_updated
		FROM notes WHERE id=$1
	`, noteID).Scan(&note.ID, &note.Title, &note.Kind, &note.Content, &note.Created, &note.LastUpdated)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

func (s *Queries) GetNotesByIDs(ctx context.Context, noteIDs []string) (map[string]Note, error) {
	notes := make(map[string]Note, len(noteIDs))
	if len(noteIDs) == 0 {
		return notes, nil
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, title, kind, content, created, last_updated
		FROM notes WHERE id = ANY($1)
	`, noteIDs)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.Title, &note.Kind, &note.Content, &note.Created, &note.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes[note.ID] = note
	}
	return notes, rows.Err()
}

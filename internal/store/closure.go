package store

import (
	"context"
	"fmt"
)

// The containment DAG is kept as a globally shared closure table: every
// (ancestor, descendant) pair reachable through direct links is stored
// explicitly with its path length. Multiple rows per pair are kept distinct,
// one per attachment path, because each attachment of a shared note is an
// intentionally separate location. Deduping to the minimum distance per
// pair is the rejected alternative; every query here assumes the
// one-row-per-path representation.

// InsertEdge records a new direct link (parent, child) along with the full
// cross product of {ancestors of parent + parent} x {descendants of child +
// child}, each at summed distance. The supplied rank lands on the distance-1
// row only.
func (s *Queries) InsertEdge(ctx context.Context, parentID, childID string, rank int) error {
	_, err := s.q.ExecContext(ctx, `
		WITH up AS (
			SELECT ancestor_id AS id, distance FROM note_closure WHERE descendant_id = $1
			UNION ALL
			SELECT $1::text, 0
		), down AS (
			SELECT descendant_id AS id, distance FROM note_closure WHERE ancestor_id = $2
			UNION ALL
			SELECT $2::text, 0
		)
		INSERT INTO note_closure (id, ancestor_id, descendant_id, distance, sorting_rank)
		SELECT gen_random_uuid()::text, up.id, down.id, up.distance + down.distance + 1,
		       CASE WHEN up.distance = 0 AND down.distance = 0 THEN $3 ELSE 0 END
		FROM up CROSS JOIN down
	`, parentID, childID, rank)
	if err != nil {
		return fmt.Errorf("insert closure edges %s -> %s: %w", parentID, childID, err)
	}
	return nil
}

func (s *Queries) DirectEdgeExists(ctx context.Context, parentID, childID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM note_closure
			WHERE ancestor_id=$1 AND descendant_id=$2 AND distance=1
		)
	`, parentID, childID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check direct edge: %w", err)
	}
	return exists, nil
}

func (s *Queries) FindDirectChildren(ctx context.Context, parentID string) ([]ClosureEdge, error) {
	return s.queryEdges(ctx, `
		SELECT id, ancestor_id, descendant_id, distance, sorting_rank, created, last_updated
		FROM note_closure
		WHERE ancestor_id=$1 AND distance=1
		ORDER BY sorting_rank, created
	`, parentID)
}

func (s *Queries) FindAllDescendants(ctx context.Context, parentID string) ([]ClosureEdge, error) {
	return s.queryEdges(ctx, `
		SELECT id, ancestor_id, descendant_id, distance, sorting_rank, created, last_updated
		FROM note_closure
		WHERE ancestor_id=$1
		ORDER BY distance, sorting_rank, created
	`, parentID)
}

// FindAncestorChain returns every ancestor of noteID ascending by distance,
// the order permission resolution walks it.
func (s *Queries) FindAncestorChain(ctx context.Context, noteID string) ([]ClosureEdge, error) {
	return s.queryEdges(ctx, `
		SELECT id, ancestor_id, descendant_id, distance, sorting_rank, created, last_updated
		FROM note_closure
		WHERE descendant_id=$1
		ORDER BY distance, created
	`, noteID)
}

func (s *Queries) NextSiblingRank(ctx context.Context, parentID string) (int, error) {
	var rank int
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sorting_rank) + 1, 0)
		FROM note_closure
		WHERE ancestor_id=$1 AND distance=1
	`, parentID).Scan(&rank)
	if err != nil {
		return 0, fmt.Errorf("next sibling rank: %w", err)
	}
	return rank, nil
}

func (s *Queries) UpdateSiblingRank(ctx context.Context, parentID, childID string, rank int) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE note_closure
		SET sorting_rank=$3, last_updated=NOW()
		WHERE ancestor_id=$1 AND descendant_id=$2 AND distance=1
	`, parentID, childID, rank)
	if err != nil {
		return fmt.Errorf("update sibling rank: %w", err)
	}
	return nil
}

// DeleteReachableAccessible detaches the subtree rooted at noteID from every
// ancestor the acting user can legitimately reach, in two phases inside one
// statement: materialize the actor's accessible set (granted notes plus all
// their closure descendants, pending invites excluded), then delete exactly
// the rows whose descendant lies in the subtree and whose ancestor is
// accessible. Ancestors inside the subtree are excluded so a move never
// strips the subtree's own structure; includeInternal lifts that exclusion
// for cascade deletes. Edges belonging to another user's independent
// attachment of the same shared note are never touched.
func (s *Queries) DeleteReachableAccessible(ctx context.Context, noteID, actorID string, includeInternal bool) (int64, error) {
	result, err := s.q.ExecContext(ctx, `
		WITH subtree AS (
			SELECT $1::text AS id
			UNION
			SELECT descendant_id FROM note_closure WHERE ancestor_id = $1
		), accessible AS (
			SELECT note_id AS id FROM note_grants
			WHERE user_id = $2 AND NOT invite_pending
			UNION
			SELECT nc.descendant_id
			FROM note_closure nc
			JOIN note_grants g ON g.note_id = nc.ancestor_id
			WHERE g.user_id = $2 AND NOT g.invite_pending
		)
		DELETE FROM note_closure
		WHERE descendant_id IN (SELECT id FROM subtree)
		  AND ancestor_id IN (SELECT id FROM accessible)
		  AND ($3 OR ancestor_id NOT IN (SELECT id FROM subtree))
	`, noteID, actorID, includeInternal)
	if err != nil {
		return 0, fmt.Errorf("scoped closure delete for %s: %w", noteID, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("scoped closure delete rows: %w", err)
	}
	return deleted, nil
}

func (s *Queries) queryEdges(ctx context.Context, query string, args ...any) ([]ClosureEdge, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query closure edges: %w", err)
	}
	defer rows.Close()

	var edges []ClosureEdge
	for rows.Next() {
		var edge ClosureEdge
		if err := rows.Scan(&edge.ID, &edge.AncestorID, &edge.DescendantID, &edge.Distance, &edge.SortingRank, &edge.Created, &edge.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan closure edge: %w", err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

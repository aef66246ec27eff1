package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lyf-Planner/lyf-api-sub000/internal/store"
)

// RootParent detaches a note from its current position without attaching it
// anywhere else.
const RootParent = "root"

var (
	ErrNoteNotFound    = errors.New("note not found")
	ErrNotDirectChild  = errors.New("not a direct child of the given parent")
	ErrAlreadyAttached = errors.New("note is already attached under this parent")
	ErrWouldCycle      = errors.New("attach would create a containment cycle")

	// ErrConflict marks a storage-level serialization conflict that survived
	// the internal retry; callers may retry the whole operation.
	ErrConflict = errors.New("concurrent structural change")
)

type txRunner interface {
	InTx(ctx context.Context, fn func(q store.Querier) error) error
}

// Mutator orchestrates structural changes. Every mutation runs inside one
// transaction: the scoped detach, cross-product insert and rank updates
// commit together or not at all.
type Mutator struct {
	runner txRunner
}

func NewMutator(runner txRunner) *Mutator {
	return &Mutator{runner: runner}
}

// Attach links noteID under parentID at the tail of the sibling order.
func (m *Mutator) Attach(ctx context.Context, noteID, parentID string) error {
	return m.inTx(ctx, func(q store.Querier) error {
		if err := requireNotes(ctx, q, noteID, parentID); err != nil {
			return err
		}
		return attach(ctx, q, noteID, parentID)
	})
}

// Move atomically severs the acting user's own access path(s) to the note's
// old position and attaches it under the new parent. Other users'
// independent attachments of the same shared note are left intact. A new
// parent of RootParent detaches only.
func (m *Mutator) Move(ctx context.Context, noteID, newParentID, actorID string) error {
	return m.inTx(ctx, func(q store.Querier) error {
		toRoot := newParentID == RootParent
		ids := []string{noteID}
		if !toRoot {
			ids = append(ids, newParentID)
		}
		if err := requireNotes(ctx, q, ids...); err != nil {
			return err
		}
		if _, err := q.DeleteReachableAccessible(ctx, noteID, actorID, false); err != nil {
			return err
		}
		if toRoot {
			return nil
		}
		return attach(ctx, q, noteID, newParentID)
	})
}

// SortChildren rewrites sibling ranks under parentID in the supplied order
// starting at 0. Children omitted from the list keep their previous relative
// order, appended after. A supplied id that is not a direct child fails the
// whole operation.
func (m *Mutator) SortChildren(ctx context.Context, parentID string, orderedChildIDs []string) error {
	return m.inTx(ctx, func(q store.Querier) error {
		children, err := q.FindDirectChildren(ctx, parentID)
		if err != nil {
			return err
		}
		isChild := make(map[string]bool, len(children))
		for _, edge := range children {
			isChild[edge.DescendantID] = true
		}

		supplied := make(map[string]bool, len(orderedChildIDs))
		for _, childID := range orderedChildIDs {
			if !isChild[childID] {
				return fmt.Errorf("%s: %w", childID, ErrNotDirectChild)
			}
			if supplied[childID] {
				return fmt.Errorf("%s supplied twice: %w", childID, ErrNotDirectChild)
			}
			supplied[childID] = true
		}

		final := make([]string, 0, len(children))
		final = append(final, orderedChildIDs...)
		for _, edge := range children {
			if !supplied[edge.DescendantID] {
				final = append(final, edge.DescendantID)
			}
		}

		for rank, childID := range final {
			if err := q.UpdateSiblingRank(ctx, parentID, childID, rank); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the acting user's access paths into the subtree rooted at
// noteID, with no re-attach. Without cascade the subtree's internal
// structure survives, so descendants stay reachable through any other
// ancestor path until every such path is independently removed.
func (m *Mutator) Delete(ctx context.Context, noteID, actorID string, cascade bool) error {
	return m.inTx(ctx, func(q store.Querier) error {
		if err := requireNotes(ctx, q, noteID); err != nil {
			return err
		}
		_, err := q.DeleteReachableAccessible(ctx, noteID, actorID, cascade)
		return err
	})
}

func attach(ctx context.Context, q store.Querier, noteID, parentID string) error {
	if noteID == parentID {
		return fmt.Errorf("%s under itself: %w", noteID, ErrWouldCycle)
	}
	descendants, err := q.FindAllDescendants(ctx, noteID)
	if err != nil {
		return err
	}
	for _, edge := range descendants {
		if edge.DescendantID == parentID {
			return fmt.Errorf("%s under its descendant %s: %w", noteID, parentID, ErrWouldCycle)
		}
	}
	if exists, err := q.DirectEdgeExists(ctx, parentID, noteID); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%s under %s: %w", noteID, parentID, ErrAlreadyAttached)
	}

	rank, err := q.NextSiblingRank(ctx, parentID)
	if err != nil {
		return err
	}
	return q.InsertEdge(ctx, parentID, noteID, rank)
}

func requireNotes(ctx context.Context, q store.Querier, noteIDs ...string) error {
	for _, noteID := range noteIDs {
		exists, err := q.NoteExists(ctx, noteID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s: %w", noteID, ErrNoteNotFound)
		}
	}
	return nil
}

// inTx retries once on a clean serialization failure, then surfaces the
// conflict as retryable.
func (m *Mutator) inTx(ctx context.Context, fn func(q store.Querier) error) error {
	err := m.runner.InTx(ctx, fn)
	if err == nil || !store.IsSerializationFailure(err) {
		return err
	}
	err = m.runner.InTx(ctx, fn)
	if err != nil && store.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// Package hierarchy maintains the note containment DAG: it resolves
// effective permission by walking the closure index upward and orchestrates
// structural mutations while keeping the index consistent.
package hierarchy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Lyf-Planner/lyf-api-sub000/internal/access"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/store"
)

// Resolved is the effective permission for a (note, user) pair, with
// provenance: InheritedFrom names the ancestor carrying the matched grant
// and equals the queried note id when the grant is direct.
type Resolved struct {
	Permission    access.Level
	InheritedFrom string
	Distance      int
	Pending       bool
}

func (r *Resolved) Direct(noteID string) bool {
	return r != nil && r.InheritedFrom == noteID
}

type Resolver struct {
	data store.Querier
}

func NewResolver(data store.Querier) *Resolver {
	return &Resolver{data: data}
}

// Resolve walks the ancestor chain ascending by distance, starting at the
// note itself, and returns the nearest explicit grant. When two ancestors at
// equal distance both carry a grant, the higher level wins; among equals a
// non-pending grant beats a pending invite. Returns nil when the chain is
// exhausted without a hit.
func (r *Resolver) Resolve(ctx context.Context, noteID, userID string) (*Resolved, error) {
	chain, err := r.data.FindAncestorChain(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("ancestor chain for %s: %w", noteID, err)
	}

	candidates := make([]store.ClosureEdge, 0, len(chain)+1)
	candidates = append(candidates, store.ClosureEdge{AncestorID: noteID, DescendantID: noteID, Distance: 0})
	candidates = append(candidates, chain...)

	probed := make(map[string]bool, len(candidates))
	var best *Resolved
	bestDistance := -1

	for _, candidate := range candidates {
		if bestDistance >= 0 && candidate.Distance > bestDistance {
			break
		}
		if probed[candidate.AncestorID] {
			continue
		}
		probed[candidate.AncestorID] = true

		grant, err := r.data.GetGrant(ctx, candidate.AncestorID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("probe grant on %s: %w", candidate.AncestorID, err)
		}

		resolved := &Resolved{
			Permission:    access.Normalize(grant.Permission),
			InheritedFrom: candidate.AncestorID,
			Distance:      candidate.Distance,
			Pending:       grant.InvitePending,
		}
		if best == nil || strongerAtSameDistance(resolved, best) {
			best = resolved
			bestDistance = candidate.Distance
		}
	}
	return best, nil
}

func strongerAtSameDistance(challenger, incumbent *Resolved) bool {
	if access.Rank(challenger.Permission) != access.Rank(incumbent.Permission) {
		return access.Rank(challenger.Permission) > access.Rank(incumbent.Permission)
	}
	return incumbent.Pending && !challenger.Pending
}

// CanEdit reports whether the user holds at least Editor on the note,
// directly or inherited. Pending invites never satisfy it.
func (r *Resolver) CanEdit(ctx context.Context, noteID, userID string) (bool, error) {
	return r.allows(ctx, noteID, userID, access.ActionEdit)
}

func (r *Resolver) CanDelete(ctx context.Context, noteID, userID string) (bool, error) {
	return r.allows(ctx, noteID, userID, access.ActionDelete)
}

// CanInvite requires Owner.
func (r *Resolver) CanInvite(ctx context.Context, noteID, userID string) (bool, error) {
	return r.allows(ctx, noteID, userID, access.ActionInvite)
}

func (r *Resolver) allows(ctx context.Context, noteID, userID string, action access.Action) (bool, error) {
	resolved, err := r.Resolve(ctx, noteID, userID)
	if err != nil {
		return false, err
	}
	if resolved == nil || resolved.Pending {
		return false, nil
	}
	return access.Can(resolved.Permission, action), nil
}

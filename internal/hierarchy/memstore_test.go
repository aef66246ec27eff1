package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/Lyf-Planner/lyf-api-sub000/internal/store"
)

// memStore implements store.Querier over maps with the same semantics as the
// Postgres queries, so mutator and resolver behavior can be tested without a
// database.
type memStore struct {
	notes    map[string]store.Note
	edges    []store.ClosureEdge
	grants   map[string]map[string]store.PermissionGrant
	contacts map[string]map[string]bool
	seq      int
}

func newMemStore() *memStore {
	return &memStore{
		notes:    make(map[string]store.Note),
		grants:   make(map[string]map[string]store.PermissionGrant),
		contacts: make(map[string]map[string]bool),
	}
}

func (m *memStore) addNote(noteID string) {
	m.notes[noteID] = store.Note{ID: noteID, Title: noteID, Kind: store.KindFolder}
}

func (m *memStore) InTx(_ context.Context, fn func(q store.Querier) error) error {
	return fn(m)
}

func (m *memStore) InsertNote(_ context.Context, note store.Note) error {
	m.notes[note.ID] = note
	return nil
}

func (m *memStore) NoteExists(_ context.Context, noteID string) (bool, error) {
	_, ok := m.notes[noteID]
	return ok, nil
}

func (m *memStore) GetNote(_ context.Context, noteID string) (store.Note, error) {
	note, ok := m.notes[noteID]
	if !ok {
		return store.Note{}, sql.ErrNoRows
	}
	return note, nil
}

func (m *memStore) GetNotesByIDs(_ context.Context, noteIDs []string) (map[string]store.Note, error) {
	found := make(map[string]store.Note)
	for _, noteID := range noteIDs {
		if note, ok := m.notes[noteID]; ok {
			found[noteID] = note
		}
	}
	return found, nil
}

func (m *memStore) InsertEdge(_ context.Context, parentID, childID string, rank int) error {
	type hop struct {
		id       string
		distance int
	}
	up := []hop{{parentID, 0}}
	down := []hop{{childID, 0}}
	for _, edge := range m.edges {
		if edge.DescendantID == parentID {
			up = append(up, hop{edge.AncestorID, edge.Distance})
		}
		if edge.AncestorID == childID {
			down = append(down, hop{edge.DescendantID, edge.Distance})
		}
	}
	for _, a := range up {
		for _, d := range down {
			edgeRank := 0
			if a.distance == 0 && d.distance == 0 {
				edgeRank = rank
			}
			m.seq++
			m.edges = append(m.edges, store.ClosureEdge{
				ID:           fmt.Sprintf("edge-%d", m.seq),
				AncestorID:   a.id,
				DescendantID: d.id,
				Distance:     a.distance + d.distance + 1,
				SortingRank:  edgeRank,
				Created:      time.Unix(int64(m.seq), 0),
			})
		}
	}
	return nil
}

func (m *memStore) DirectEdgeExists(_ context.Context, parentID, childID string) (bool, error) {
	for _, edge := range m.edges {
		if edge.AncestorID == parentID && edge.DescendantID == childID && edge.Distance == 1 {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) FindDirectChildren(_ context.Context, parentID string) ([]store.ClosureEdge, error) {
	var children []store.ClosureEdge
	for _, edge := range m.edges {
		if edge.AncestorID == parentID && edge.Distance == 1 {
			children = append(children, edge)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		if children[i].SortingRank != children[j].SortingRank {
			return children[i].SortingRank < children[j].SortingRank
		}
		return children[i].Created.Before(children[j].Created)
	})
	return children, nil
}

func (m *memStore) FindAllDescendants(_ context.Context, parentID string) ([]store.ClosureEdge, error) {
	var descendants []store.ClosureEdge
	for _, edge := range m.edges {
		if edge.AncestorID == parentID {
			descendants = append(descendants, edge)
		}
	}
	sort.SliceStable(descendants, func(i, j int) bool {
		return descendants[i].Distance < descendants[j].Distance
	})
	return descendants, nil
}

func (m *memStore) FindAncestorChain(_ context.Context, noteID string) ([]store.ClosureEdge, error) {
	var chain []store.ClosureEdge
	for _, edge := range m.edges {
		if edge.DescendantID == noteID {
			chain = append(chain, edge)
		}
	}
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Distance < chain[j].Distance
	})
	return chain, nil
}

func (m *memStore) NextSiblingRank(ctx context.Context, parentID string) (int, error) {
	children, _ := m.FindDirectChildren(ctx, parentID)
	rank := 0
	for _, edge := range children {
		if edge.SortingRank >= rank {
			rank = edge.SortingRank + 1
		}
	}
	return rank, nil
}

func (m *memStore) UpdateSiblingRank(_ context.Context, parentID, childID string, rank int) error {
	for i, edge := range m.edges {
		if edge.AncestorID == parentID && edge.DescendantID == childID && edge.Distance == 1 {
			m.edges[i].SortingRank = rank
		}
	}
	return nil
}

func (m *memStore) DeleteReachableAccessible(_ context.Context, noteID, actorID string, includeInternal bool) (int64, error) {
	subtree := map[string]bool{noteID: true}
	for _, edge := range m.edges {
		if edge.AncestorID == noteID {
			subtree[edge.DescendantID] = true
		}
	}

	accessible := make(map[string]bool)
	for grantedNote, byUser := range m.grants {
		grant, ok := byUser[actorID]
		if !ok || grant.InvitePending {
			continue
		}
		accessible[grantedNote] = true
		for _, edge := range m.edges {
			if edge.AncestorID == grantedNote {
				accessible[edge.DescendantID] = true
			}
		}
	}

	var kept []store.ClosureEdge
	var deleted int64
	for _, edge := range m.edges {
		doomed := subtree[edge.DescendantID] && accessible[edge.AncestorID] &&
			(includeInternal || !subtree[edge.AncestorID])
		if doomed {
			deleted++
			continue
		}
		kept = append(kept, edge)
	}
	m.edges = kept
	return deleted, nil
}

func (m *memStore) GetGrant(_ context.Context, noteID, userID string) (store.PermissionGrant, error) {
	if grant, ok := m.grants[noteID][userID]; ok {
		return grant, nil
	}
	return store.PermissionGrant{}, sql.ErrNoRows
}

func (m *memStore) UpsertGrant(_ context.Context, grant store.PermissionGrant) error {
	if m.grants[grant.NoteID] == nil {
		m.grants[grant.NoteID] = make(map[string]store.PermissionGrant)
	}
	m.grants[grant.NoteID][grant.UserID] = grant
	return nil
}

func (m *memStore) AcceptGrant(_ context.Context, noteID, userID string) (bool, error) {
	grant, ok := m.grants[noteID][userID]
	if !ok || !grant.InvitePending {
		return false, nil
	}
	grant.InvitePending = false
	m.grants[noteID][userID] = grant
	return true, nil
}

func (m *memStore) DeleteGrant(_ context.Context, noteID, userID string) (bool, error) {
	if _, ok := m.grants[noteID][userID]; !ok {
		return false, nil
	}
	delete(m.grants[noteID], userID)
	return true, nil
}

func (m *memStore) ListGrantsForNote(_ context.Context, noteID string) ([]store.PermissionGrant, error) {
	var grants []store.PermissionGrant
	for _, grant := range m.grants[noteID] {
		grants = append(grants, grant)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].UserID < grants[j].UserID })
	return grants, nil
}

func (m *memStore) AreContacts(_ context.Context, userID, otherID string) (bool, error) {
	return m.contacts[userID][otherID] || m.contacts[otherID][userID], nil
}

func (m *memStore) AddContact(_ context.Context, userID, otherID string) error {
	if m.contacts[userID] == nil {
		m.contacts[userID] = make(map[string]bool)
	}
	m.contacts[userID][otherID] = true
	return nil
}

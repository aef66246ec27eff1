package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Lyf-Planner/lyf-api-sub000/internal/access"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/hierarchy"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/permcache"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/store"
)

type dataStore interface {
	store.Querier
	InTx(ctx context.Context, fn func(q store.Querier) error) error
	Ping(ctx context.Context) error
}

type structuralMutator interface {
	Move(ctx context.Context, noteID, newParentID, actorID string) error
	SortChildren(ctx context.Context, parentID string, ordered []string) error
	Delete(ctx context.Context, noteID, actorID string, cascade bool) error
}

type permissionResolver interface {
	Resolve(ctx context.Context, noteID, userID string) (*hierarchy.Resolved, error)
	CanEdit(ctx context.Context, noteID, userID string) (bool, error)
	CanDelete(ctx context.Context, noteID, userID string) (bool, error)
	CanInvite(ctx context.Context, noteID, userID string) (bool, error)
}

type permCache interface {
	Get(ctx context.Context, noteID, userID string) (*permcache.Entry, bool, error)
	Put(ctx context.Context, noteID, userID string, entry permcache.Entry) error
	Delete(ctx context.Context, noteID, userID string) error
	Invalidate(ctx context.Context, noteID string) error
}

type notifier interface {
	IsConfigured() bool
	InviteCreated(inviteeID, inviterID, noteTitle, permission string) error
	InviteAccepted(ownerID, inviteeID, noteTitle string) error
}

type Service struct {
	data   dataStore
	mutate structuralMutator
	perms  permissionResolver
	cache  permCache
	notify notifier
}

func New(data dataStore, mutate structuralMutator, perms permissionResolver) *Service {
	return &Service{data: data, mutate: mutate, perms: perms}
}

func (s *Service) WithCache(cache permCache) *Service {
	s.cache = cache
	return s
}

func (s *Service) WithNotifier(n notifier) *Service {
	s.notify = n
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.data.Ping(ctx)
}

// ChildNote is one entry of a folder listing, in sibling order.
type ChildNote struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Kind        string `json:"kind"`
	SortingRank int    `json:"sortingRank"`
}

// EffectivePermission reports the outcome of permission resolution for
// one user on one note, including where an inherited grant came from.
type EffectivePermission struct {
	Permission    string `json:"permission"`
	Inherited     bool   `json:"inherited"`
	InheritedFrom string `json:"inheritedFrom,omitempty"`
	Pending       bool   `json:"pending"`
}

type CreateNoteInput struct {
	ID       string
	Title    string
	Kind     string
	Content  string
	ParentID string
	OwnerID  string
}

var allowedKinds = map[string]bool{
	store.KindFolder:   true,
	store.KindDocument: true,
	store.KindMixed:    true,
}

// CreateNote inserts a new note with an Owner grant for its creator and,
// when a parent is given, attaches it as the last sibling. The insert,
// the grant and the attachment commit together.
func (s *Service) CreateNote(ctx context.Context, input CreateNoteInput) (store.Note, error) {
	if input.OwnerID == "" {
		return store.Note{}, permissionDenied("An acting user is required")
	}
	if input.Title == "" {
		return store.Note{}, validationError("Title is required", nil)
	}
	if !allowedKinds[input.Kind] {
		return store.Note{}, validationError("Invalid note kind", map[string]any{"kind": input.Kind})
	}

	if input.ParentID != "" && input.ParentID != hierarchy.RootParent {
		allowed, err := s.perms.CanEdit(ctx, input.ParentID, input.OwnerID)
		if err != nil {
			return store.Note{}, err
		}
		if !allowed {
			return store.Note{}, permissionDenied("You cannot add notes to this folder")
		}
	}

	now := time.Now().UTC()
	note := store.Note{
		ID:          input.ID,
		Title:       input.Title,
		Kind:        input.Kind,
		Content:     input.Content,
		Created:     now,
		LastUpdated: now,
	}
	if note.ID == "" {
		note.ID = uuid.NewString()
	}

	err := s.data.InTx(ctx, func(q store.Querier) error {
		if err := q.InsertNote(ctx, note); err != nil {
			return err
		}
		grant := store.PermissionGrant{
			NoteID:        note.ID,
			UserID:        input.OwnerID,
			Permission:    string(access.Owner),
			InvitePending: false,
			Created:       now,
			LastUpdated:   now,
		}
		if err := q.UpsertGrant(ctx, grant); err != nil {
			return err
		}
		if input.ParentID == "" || input.ParentID == hierarchy.RootParent {
			return nil
		}
		exists, err := q.NoteExists(ctx, input.ParentID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("parent %s: %w", input.ParentID, hierarchy.ErrNoteNotFound)
		}
		rank, err := q.NextSiblingRank(ctx, input.ParentID)
		if err != nil {
			return err
		}
		return q.InsertEdge(ctx, input.ParentID, note.ID, rank)
	})
	if err != nil {
		return store.Note{}, err
	}
	return note, nil
}

// MoveNote reattaches a note under a new parent, severing only the
// caller's accessible paths to it. A parent of "root" detaches without
// reattaching.
func (s *Service) MoveNote(ctx context.Context, noteID, newParentID, actorID string) error {
	if actorID == "" {
		return permissionDenied("An acting user is required")
	}
	allowed, err := s.perms.CanEdit(ctx, noteID, actorID)
	if err != nil {
		return err
	}
	if !allowed {
		return permissionDenied("You cannot move this note")
	}
	if newParentID != hierarchy.RootParent {
		allowed, err = s.perms.CanEdit(ctx, newParentID, actorID)
		if err != nil {
			return err
		}
		if !allowed {
			return permissionDenied("You cannot move notes into this folder")
		}
	}
	if err := s.mutate.Move(ctx, noteID, newParentID, actorID); err != nil {
		return err
	}
	s.invalidateCache(ctx, noteID)
	return nil
}

// SortNotes reorders the direct children of a parent and returns the
// resulting listing. Children omitted from the requested order keep
// their relative position after the supplied ones.
func (s *Service) SortNotes(ctx context.Context, parentID string, ordered []string, actorID string) ([]ChildNote, error) {
	if actorID == "" {
		return nil, permissionDenied("An acting user is required")
	}
	allowed, err := s.perms.CanEdit(ctx, parentID, actorID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, permissionDenied("You cannot reorder this folder")
	}
	if err := s.mutate.SortChildren(ctx, parentID, ordered); err != nil {
		return nil, err
	}
	return s.GetChildren(ctx, parentID)
}

// DeleteNote removes every edge in the note's subtree that the caller
// can reach, including edges between subtree members when cascade is
// set.
func (s *Service) DeleteNote(ctx context.Context, noteID, actorID string, cascade bool) error {
	if actorID == "" {
		return permissionDenied("An acting user is required")
	}
	allowed, err := s.perms.CanDelete(ctx, noteID, actorID)
	if err != nil {
		return err
	}
	if !allowed {
		return permissionDenied("You cannot delete this note")
	}
	if err := s.mutate.Delete(ctx, noteID, actorID, cascade); err != nil {
		return err
	}
	s.invalidateCache(ctx, noteID)
	return nil
}

// GetChildren lists a note's direct children in sibling order.
func (s *Service) GetChildren(ctx context.Context, parentID string) ([]ChildNote, error) {
	edges, err := s.data.FindDirectChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.DescendantID)
	}
	notes, err := s.data.GetNotesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	children := make([]ChildNote, 0, len(edges))
	for _, edge := range edges {
		note, ok := notes[edge.DescendantID]
		if !ok {
			continue
		}
		children = append(children, ChildNote{
			ID:          note.ID,
			Title:       note.Title,
			Kind:        note.Kind,
			SortingRank: edge.SortingRank,
		})
	}
	return children, nil
}

// GetEffectivePermission resolves the user's permission on a note,
// serving from the cache when one is configured. A nil result means no
// access. Negative outcomes are cached too, so repeated probes by
// unauthorized users stay cheap.
func (s *Service) GetEffectivePermission(ctx context.Context, noteID, userID string) (*EffectivePermission, error) {
	if s.cache != nil {
		entry, hit, err := s.cache.Get(ctx, noteID, userID)
		if err != nil {
			log.Printf("permission cache read failed: %v", err)
		} else if hit {
			return entryToEffective(entry), nil
		}
	}

	resolved, err := s.perms.Resolve(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}

	entry := permcache.Entry{ResolvedAt: time.Now().UTC()}
	if resolved != nil {
		entry.Permission = string(resolved.Permission)
		entry.InheritedFrom = resolved.InheritedFrom
		entry.Distance = resolved.Distance
		entry.Pending = resolved.Pending
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, noteID, userID, entry); err != nil {
			log.Printf("permission cache write failed: %v", err)
		}
	}
	return entryToEffective(&entry), nil
}

func entryToEffective(entry *permcache.Entry) *EffectivePermission {
	if entry == nil || entry.Permission == "" {
		return nil
	}
	return &EffectivePermission{
		Permission:    entry.Permission,
		Inherited:     entry.Distance > 0,
		InheritedFrom: entry.InheritedFrom,
		Pending:       entry.Pending,
	}
}

// InviteUser records a pending grant for a contact of the inviter. Only
// owners may invite, and only their trusted contacts. Re-inviting a
// user whose invite is still pending updates the offered permission;
// inviting someone who already holds an accepted grant is a conflict.
func (s *Service) InviteUser(ctx context.Context, noteID, inviteeID, inviterID, permission string) error {
	if inviterID == "" || inviteeID == "" {
		return permissionDenied("An acting user is required")
	}
	if inviteeID == inviterID {
		return validationError("You cannot invite yourself", nil)
	}
	level := access.Level(permission)
	if !access.Valid(level) || level == access.Owner {
		return validationError("Invalid permission level", map[string]any{"permission": permission})
	}

	allowed, err := s.perms.CanInvite(ctx, noteID, inviterID)
	if err != nil {
		return err
	}
	if !allowed {
		return permissionDenied("Only owners can share this note")
	}

	exists, err := s.data.NoteExists(ctx, noteID)
	if err != nil {
		return err
	}
	if !exists {
		return notFound("Note not found")
	}

	contacts, err := s.data.AreContacts(ctx, inviterID, inviteeID)
	if err != nil {
		return err
	}
	if !contacts {
		return permissionDenied("You can only share notes with your contacts")
	}

	existing, err := s.data.GetGrant(ctx, noteID, inviteeID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err == nil && !existing.InvitePending {
		return domainError(http.StatusConflict, "ALREADY_SHARED", "This note is already shared with that user", nil)
	}

	now := time.Now().UTC()
	grant := store.PermissionGrant{
		NoteID:        noteID,
		UserID:        inviteeID,
		Permission:    permission,
		InvitePending: true,
		Created:       now,
		LastUpdated:   now,
	}
	err = s.data.InTx(ctx, func(q store.Querier) error {
		return q.UpsertGrant(ctx, grant)
	})
	if err != nil {
		return err
	}
	s.dropCacheEntry(ctx, noteID, inviteeID)

	s.notifyAsync(func(n notifier) error {
		return n.InviteCreated(inviteeID, inviterID, s.noteTitle(noteID), permission)
	})
	return nil
}

// AcceptInvite flips a pending grant to accepted, after which the
// grant participates fully in inheritance and edit checks.
func (s *Service) AcceptInvite(ctx context.Context, noteID, inviteeID string) error {
	if inviteeID == "" {
		return permissionDenied("An acting user is required")
	}
	accepted, err := s.data.AcceptGrant(ctx, noteID, inviteeID)
	if err != nil {
		return err
	}
	if !accepted {
		return notFound("No pending invite for this note")
	}
	s.dropCacheEntry(ctx, noteID, inviteeID)

	if s.notify == nil || !s.notify.IsConfigured() {
		return nil
	}
	grants, err := s.data.ListGrantsForNote(ctx, noteID)
	if err != nil {
		log.Printf("listing grants for acceptance notice failed: %v", err)
		return nil
	}
	title := s.noteTitle(noteID)
	for _, grant := range grants {
		if grant.Permission != string(access.Owner) || grant.InvitePending || grant.UserID == inviteeID {
			continue
		}
		ownerID := grant.UserID
		s.notifyAsync(func(n notifier) error {
			return n.InviteAccepted(ownerID, inviteeID, title)
		})
	}
	return nil
}

// RevokeGrant removes a user's grant on a note. Owners can revoke
// anyone; any user can remove their own grant, which also declines a
// pending invite.
func (s *Service) RevokeGrant(ctx context.Context, noteID, subjectID, actorID string) error {
	if actorID == "" {
		return permissionDenied("An acting user is required")
	}
	if actorID != subjectID {
		allowed, err := s.perms.CanInvite(ctx, noteID, actorID)
		if err != nil {
			return err
		}
		if !allowed {
			return permissionDenied("You cannot revoke this grant")
		}
	}
	removed, err := s.data.DeleteGrant(ctx, noteID, subjectID)
	if err != nil {
		return err
	}
	if !removed {
		return notFound("No grant for that user on this note")
	}
	s.dropCacheEntry(ctx, noteID, subjectID)
	return nil
}

// AddContact records a mutual trusted-contact relation, the precondition
// for sharing notes between two users.
func (s *Service) AddContact(ctx context.Context, actorID, otherID string) error {
	if actorID == "" {
		return permissionDenied("An acting user is required")
	}
	if otherID == "" || otherID == actorID {
		return validationError("A distinct contact is required", nil)
	}
	return s.data.AddContact(ctx, actorID, otherID)
}

func (s *Service) noteTitle(noteID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	note, err := s.data.GetNote(ctx, noteID)
	if err != nil {
		return "a shared note"
	}
	return note.Title
}

func (s *Service) invalidateCache(ctx context.Context, noteID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, noteID); err != nil {
		log.Printf("permission cache invalidation failed for note %s: %v", noteID, err)
	}
}

func (s *Service) dropCacheEntry(ctx context.Context, noteID, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, noteID, userID); err != nil {
		log.Printf("permission cache delete failed for note %s: %v", noteID, err)
	}
}

func (s *Service) notifyAsync(send func(n notifier) error) {
	if s.notify == nil || !s.notify.IsConfigured() {
		return
	}
	n := s.notify
	go func() {
		if err := send(n); err != nil {
			log.Printf("notification failed: %v", err)
		}
	}()
}

package store

import "time"

const (
	KindFolder   = "folder"
	KindDocument = "document"
	KindMixed    = "mixed"
)

type Note struct {
	ID          string
	Title       string
	Kind        string
	Content     string
	Created     time.Time
	LastUpdated time.Time
}

// ClosureEdge is one row of the containment closure. Distance 1 rows are
// direct parent/child links; distance > 1 rows are materialized transitive
// reachability. SortingRank is meaningful on distance-1 rows only.
type ClosureEdge struct {
	ID           string
	AncestorID   string
	DescendantID string
	Distance     int
	SortingRank  int
	Created      time.Time
	LastUpdated  time.Time
}

// PermissionGrant is an explicit grant attached to exactly one note. Grants
// are never copied to descendants; inherited access is derived by walking
// the closure upward at resolution time.
type PermissionGrant struct {
	NoteID                string
	UserID                string
	Permission            string
	InvitePending         bool
	SortingRankPreference *int
	Created               time.Time
	LastUpdated           time.Time
}

type Contact struct {
	UserID    string
	ContactID string
	Created   time.Time
}

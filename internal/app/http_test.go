package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Lyf-Planner/lyf-api-sub000/internal/hierarchy"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/store"
)

func newTestServer(data *fakeData, mutator *fakeMutator, resolver *fakeResolver) *HTTPServer {
	return NewHTTPServer(New(data, mutator, resolver), "*")
}

func doRequest(t *testing.T, server *HTTPServer, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != "" {
		req.Header.Set("X-User-Id", actor)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeData{}, &fakeMutator{}, &fakeResolver{})
	rr := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Fatalf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	data := &fakeData{
		pingFn: func(context.Context) error { return errors.New("connection refused") },
	}
	server := newTestServer(data, &fakeMutator{}, &fakeResolver{})
	rr := doRequest(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", response["status"])
	}
}

func TestOptionsRequestShortCircuits(t *testing.T) {
	server := newTestServer(&fakeData{}, &fakeMutator{}, &fakeResolver{})
	rr := doRequest(t, server, http.MethodOptions, "/api/notes/n1/move", "", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("expected CORS origin header, got %q", origin)
	}
}

func TestMoveEndpoint(t *testing.T) {
	var gotNote, gotParent, gotActor string
	mutator := &fakeMutator{
		moveFn: func(_ context.Context, noteID, parentID, actorID string) error {
			gotNote, gotParent, gotActor = noteID, parentID, actorID
			return nil
		},
	}
	server := newTestServer(&fakeData{}, mutator, &fakeResolver{})

	rr := doRequest(t, server, http.MethodPost, "/api/notes/n1/move", "alice", `{"parentId":"p2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotNote != "n1" || gotParent != "p2" || gotActor != "alice" {
		t.Fatalf("unexpected move call: %s %s %s", gotNote, gotParent, gotActor)
	}
}

func TestMoveEndpointRequiresParent(t *testing.T) {
	server := newTestServer(&fakeData{}, &fakeMutator{}, &fakeResolver{})
	rr := doRequest(t, server, http.MethodPost, "/api/notes/n1/move", "alice", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMoveEndpointMapsCycleError(t *testing.T) {
	mutator := &fakeMutator{
		moveFn: func(context.Context, string, string, string) error {
			return hierarchy.ErrWouldCycle
		},
	}
	server := newTestServer(&fakeData{}, mutator, &fakeResolver{})
	rr := doRequest(t, server, http.MethodPost, "/api/notes/n1/move", "alice", `{"parentId":"n1-child"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "INVALID_STRUCTURE" {
		t.Fatalf("expected INVALID_STRUCTURE, got %v", response["code"])
	}
}

func TestMoveEndpointMapsConflictRetryable(t *testing.T) {
	mutator := &fakeMutator{
		moveFn: func(context.Context, string, string, string) error {
			return hierarchy.ErrConflict
		},
	}
	server := newTestServer(&fakeData{}, mutator, &fakeResolver{})
	rr := doRequest(t, server, http.MethodPost, "/api/notes/n1/move", "alice", `{"parentId":"p2"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	details, ok := response["details"].(map[string]any)
	if !ok || details["retryable"] != true {
		t.Fatalf("expected retryable details, got %v", response["details"])
	}
}

func TestDeleteEndpointParsesCascade(t *testing.T) {
	var gotCascade bool
	mutator := &fakeMutator{
		deleteFn: func(_ context.Context, _, _ string, cascade bool) error {
			gotCascade = cascade
			return nil
		},
	}
	server := newTestServer(&fakeData{}, mutator, &fakeResolver{})

	rr := doRequest(t, server, http.MethodDelete, "/api/notes/n1?cascade=true", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !gotCascade {
		t.Fatal("expected cascade=true to be forwarded")
	}
}

func TestChildrenEndpoint(t *testing.T) {
	data := &fakeData{
		findDirectChildrenFn: func(context.Context, string) ([]store.ClosureEdge, error) {
			return []store.ClosureEdge{{DescendantID: "a", SortingRank: 0}}, nil
		},
		getNotesByIDsFn: func(context.Context, []string) (map[string]store.Note, error) {
			return map[string]store.Note{"a": {ID: "a", Title: "Apples", Kind: store.KindDocument}}, nil
		},
	}
	server := newTestServer(data, &fakeMutator{}, &fakeResolver{})

	rr := doRequest(t, server, http.MethodGet, "/api/notes/p/children", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	children, ok := response["children"].([]any)
	if !ok || len(children) != 1 {
		t.Fatalf("unexpected children payload: %v", response["children"])
	}
	child := children[0].(map[string]any)
	if child["id"] != "a" || child["title"] != "Apples" {
		t.Fatalf("unexpected child: %v", child)
	}
}

func TestPermissionEndpointNoAccess(t *testing.T) {
	server := newTestServer(&fakeData{}, &fakeMutator{}, &fakeResolver{})
	rr := doRequest(t, server, http.MethodGet, "/api/notes/n1/permission", "stranger", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if permission, exists := response["permission"]; !exists || permission != nil {
		t.Fatalf("expected null permission, got %v", permission)
	}
}

func TestInviteEndpoint(t *testing.T) {
	var saved store.PermissionGrant
	data := &fakeData{
		areContactsFn: func(context.Context, string, string) (bool, error) { return true, nil },
		upsertGrantFn: func(_ context.Context, grant store.PermissionGrant) error {
			saved = grant
			return nil
		},
	}
	server := newTestServer(data, &fakeMutator{}, &fakeResolver{})

	rr := doRequest(t, server, http.MethodPost, "/api/notes/n1/invites", "alice", `{"userId":"bob","permission":"editor"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if saved.UserID != "bob" || !saved.InvitePending {
		t.Fatalf("unexpected grant: %+v", saved)
	}
}

func TestAcceptInviteEndpointUsesActor(t *testing.T) {
	var acceptedBy string
	data := &fakeData{
		acceptGrantFn: func(_ context.Context, _, userID string) (bool, error) {
			acceptedBy = userID
			return true, nil
		},
	}
	server := newTestServer(data, &fakeMutator{}, &fakeResolver{})

	rr := doRequest(t, server, http.MethodPost, "/api/notes/n1/invites/accept", "bob", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if acceptedBy != "bob" {
		t.Fatalf("expected acceptance by header actor, got %q", acceptedBy)
	}
}

func TestRevokeGrantEndpoint(t *testing.T) {
	var revokedUser string
	data := &fakeData{
		deleteGrantFn: func(_ context.Context, _, userID string) (bool, error) {
			revokedUser = userID
			return true, nil
		},
	}
	server := newTestServer(data, &fakeMutator{}, &fakeResolver{})

	rr := doRequest(t, server, http.MethodDelete, "/api/notes/n1/grants/bob", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if revokedUser != "bob" {
		t.Fatalf("expected bob's grant revoked, got %q", revokedUser)
	}
}

func TestCreateNoteEndpoint(t *testing.T) {
	server := newTestServer(&fakeData{}, &fakeMutator{}, &fakeResolver{})
	rr := doRequest(t, server, http.MethodPost, "/api/notes", "alice", `{"title":"Groceries","kind":"folder"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if response["id"] == "" || response["title"] != "Groceries" {
		t.Fatalf("unexpected response: %v", response)
	}
}

func TestAddContactEndpoint(t *testing.T) {
	var gotUser, gotOther string
	data := &fakeData{
		addContactFn: func(_ context.Context, userID, otherID string) error {
			gotUser, gotOther = userID, otherID
			return nil
		},
	}
	server := newTestServer(data, &fakeMutator{}, &fakeResolver{})

	rr := doRequest(t, server, http.MethodPost, "/api/contacts", "alice", `{"userId":"bob"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotUser != "alice" || gotOther != "bob" {
		t.Fatalf("unexpected contact pair: %s %s", gotUser, gotOther)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/contacts", "alice", `{"userId":"alice"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for self contact, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(&fakeData{}, &fakeMutator{}, &fakeResolver{})
	rr := doRequest(t, server, http.MethodGet, "/api/unknown", "alice", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	server := newTestServer(&fakeData{}, &fakeMutator{}, &fakeResolver{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

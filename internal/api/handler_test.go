package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/internal/api"
	"github.com/libris-app/libris/internal/library/books"
	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/shared"

	_ "github.com/libris-app/libris/testing"
)

type stubActors struct {
	actor rbac.Actor
}

func (s *stubActors) Current(context.Context) (rbac.Actor, error) { return s.actor, nil }

type stubStore struct {
	perms map[int64][]rbac.Permission
}

func (s *stubStore) UpsertPermission(context.Context, rbac.Permission, string) error { return nil }
func (s *stubStore) ListPermissions(context.Context) ([]rbac.PermissionRecord, error) {
	return nil, nil
}
func (s *stubStore) GetRoleByName(context.Context, string) (rbac.Role, error) {
	return rbac.Role{}, rbac.ErrNotFound
}
func (s *stubStore) ListRoles(context.Context) ([]rbac.Role, error) { return nil, nil }
func (s *stubStore) CreateRole(context.Context, string, string) (rbac.Role, error) {
	return rbac.Role{}, nil
}
func (s *stubStore) ReplaceRolePermissions(context.Context, int64, []rbac.Permission) error {
	return nil
}
func (s *stubStore) ActorExists(_ context.Context, id int64) (bool, error) {
	_, ok := s.perms[id]
	return ok, nil
}
func (s *stubStore) AddMembership(context.Context, int64, int64) error    { return nil }
func (s *stubStore) RemoveMembership(context.Context, int64, int64) error { return nil }
func (s *stubStore) ActorPermissions(_ context.Context, id int64) ([]rbac.Permission, error) {
	return s.perms[id], nil
}
func (s *stubStore) ActorRoles(context.Context, int64) ([]rbac.Role, error) { return nil, nil }

type listRepo struct {
	books []books.Book
}

func (r *listRepo) List(_ context.Context, _ books.ListFilters) ([]books.Book, int, error) {
	return r.books, len(r.books), nil
}

func (r *listRepo) Get(_ context.Context, id int64) (books.Book, error) {
	for _, b := range r.books {
		if b.ID == id {
			return b, nil
		}
	}
	return books.Book{}, shared.ErrNotFound
}

func (r *listRepo) Create(_ context.Context, b books.Book) (books.Book, error) { return b, nil }
func (r *listRepo) Update(context.Context, int64, books.Book) error            { return nil }
func (r *listRepo) Delete(context.Context, int64) error                        { return nil }
func (r *listRepo) SetPublished(context.Context, int64, bool) error            { return nil }

func newTestRouter(actor rbac.Actor, store *stubStore, repo *listRepo) http.Handler {
	actors := &stubActors{actor: actor}
	svc := rbac.NewService(store, nil)
	gate := rbac.NewGate(svc, nil, nil)
	h := api.NewHandler(nil, books.NewService(repo, nil), gate, svc, actors)
	r := chi.NewRouter()
	r.Route("/api/v1", h.MountRoutes)
	return r
}

func viewerStore() *stubStore {
	return &stubStore{perms: map[int64][]rbac.Permission{
		7: {rbac.PermViewBook},
	}}
}

func sampleBooks() *listRepo {
	published := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &listRepo{books: []books.Book{
		{ID: 1, Title: "The Left Hand of Darkness", AuthorID: 1, AuthorName: "Ursula K. Le Guin", PublicationYear: 1969, IsPublished: true, PublishedAt: &published},
		{ID: 2, Title: "Draft Notes", AuthorID: 1, AuthorName: "Ursula K. Le Guin", PublicationYear: 2024},
	}}
}

func TestListBooksRequiresAuthentication(t *testing.T) {
	router := newTestRouter(rbac.Actor{}, viewerStore(), sampleBooks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestListBooksAsViewer(t *testing.T) {
	actor := rbac.Actor{ID: 7, Username: "vera", Authenticated: true}
	router := newTestRouter(actor, viewerStore(), sampleBooks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Books []struct {
			Title string `json:"title"`
		} `json:"books"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Books, 2)
	assert.Equal(t, "The Left Hand of Darkness", body.Books[0].Title)
}

func TestGetBookWithoutViewPermission(t *testing.T) {
	store := &stubStore{perms: map[int64][]rbac.Permission{
		9: {rbac.PermEditBook},
	}}
	actor := rbac.Actor{ID: 9, Username: "ed", Authenticated: true}
	router := newTestRouter(actor, store, sampleBooks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books/1", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetBookNotFound(t *testing.T) {
	actor := rbac.Actor{ID: 7, Username: "vera", Authenticated: true}
	router := newTestRouter(actor, viewerStore(), sampleBooks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books/99", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMyPermissions(t *testing.T) {
	store := &stubStore{perms: map[int64][]rbac.Permission{
		7: {rbac.PermViewBook, rbac.PermCreateBook},
	}}
	actor := rbac.Actor{ID: 7, Username: "vera", Authenticated: true}
	router := newTestRouter(actor, store, sampleBooks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me/permissions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Username    string   `json:"username"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "vera", body.Username)
	assert.Equal(t, []string{"can_create_book", "can_view_book"}, body.Permissions)
}

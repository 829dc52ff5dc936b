package books_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/internal/library/books"
	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/shared"
	"github.com/libris-app/libris/internal/view"
	_ "github.com/libris-app/libris/testing"
)

type stubPerms struct {
	granted map[int64]rbac.PermissionSet
}

func (s *stubPerms) EffectivePermissions(_ context.Context, actorID int64) (rbac.PermissionSet, error) {
	set, ok := s.granted[actorID]
	if !ok {
		return nil, rbac.ErrNotFound
	}
	return set, nil
}

type stubActors struct {
	actor rbac.Actor
}

func (s *stubActors) Current(context.Context) (rbac.Actor, error) {
	return s.actor, nil
}

type stubAuthors struct{}

func (stubAuthors) Options(context.Context) ([]books.AuthorOption, error) {
	return []books.AuthorOption{{ID: 1, Name: "Frank Herbert"}}, nil
}

type listOnlyRepo struct{}

func (listOnlyRepo) List(context.Context, books.ListFilters) ([]books.Book, int, error) {
	return []books.Book{{ID: 1, Title: "Dune", AuthorID: 1, AuthorName: "Frank Herbert", PublicationYear: 1965}}, 1, nil
}
func (listOnlyRepo) Get(context.Context, int64) (books.Book, error) {
	return books.Book{ID: 1, Title: "Dune", AuthorID: 1, AuthorName: "Frank Herbert", PublicationYear: 1965}, nil
}
func (listOnlyRepo) Create(_ context.Context, b books.Book) (books.Book, error) { return b, nil }
func (listOnlyRepo) Update(context.Context, int64, books.Book) error            { return nil }
func (listOnlyRepo) Delete(context.Context, int64) error                        { return nil }
func (listOnlyRepo) SetPublished(context.Context, int64, bool) error            { return nil }

func newBooksRouter(t *testing.T, actor rbac.Actor, granted rbac.PermissionSet) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	perms := &stubPerms{granted: map[int64]rbac.PermissionSet{}}
	if actor.Authenticated {
		perms.granted[actor.ID] = granted
	}
	gate := rbac.NewGate(perms, nil, nil)
	service := books.NewService(listOnlyRepo{}, nil)
	handler := books.NewHandler(nil, service, stubAuthors{}, gate, &stubActors{actor: actor}, templates, csrf)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/books", handler.MountRoutes)
	return r
}

func TestAnonymousIsRedirectedToLogin(t *testing.T) {
	router := newBooksRouter(t, rbac.Actor{}, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/books", nil))

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/auth/login", res.Header().Get("Location"))
}

func TestViewerSeesListButCannotDelete(t *testing.T) {
	viewer := rbac.Actor{ID: 5, Username: "viewer", Authenticated: true}
	router := newBooksRouter(t, viewer, rbac.NewPermissionSet(rbac.PermViewBook))

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/books", nil))
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "Dune")

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/books/1/delete", nil))
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestEditorCannotDeleteButCanEdit(t *testing.T) {
	editor := rbac.Actor{ID: 3, Username: "editor_test", Authenticated: true}
	granted := rbac.NewPermissionSet(rbac.PermViewBook, rbac.PermCreateBook, rbac.PermEditBook, rbac.PermManageAuthors)
	router := newBooksRouter(t, editor, granted)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/books/1/edit", nil))
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/books/1/delete", nil))
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestHoldingEditDoesNotImplyView(t *testing.T) {
	actor := rbac.Actor{ID: 9, Username: "oddball", Authenticated: true}
	router := newBooksRouter(t, actor, rbac.NewPermissionSet(rbac.PermEditBook))

	// The list page requires can_view_book; can_edit_book alone is not
	// enough.
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/books", nil))
	require.Equal(t, http.StatusForbidden, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/books/1/edit", nil))
	require.Equal(t, http.StatusOK, res.Code)
}

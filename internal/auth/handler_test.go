package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/libris-app/libris/internal/auth"
	"github.com/libris-app/libris/internal/shared"
	"github.com/libris-app/libris/internal/view"
	_ "github.com/libris-app/libris/testing"
)

type stubRepo struct {
	user    *auth.User
	created []auth.User
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) Create(ctx context.Context, user auth.User) (*auth.User, error) {
	if s.user != nil && s.user.Username == user.Username {
		return nil, shared.ErrDuplicate
	}
	user.ID = int64(len(s.created) + 100)
	s.created = append(s.created, user)
	return &user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

var _ auth.Repository = (*stubRepo)(nil)

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := auth.NewHandler(nil, auth.NewService(repo), templates, sessionManager, csrfManager, nil, nil)
	return handler, sessionManager
}

// primeSession loads a session via GET so the CSRF token exists, then
// returns the committed session.
func primeSession(t *testing.T, handler *auth.Handler, sm *shared.SessionManager) *shared.Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)
	require.NoError(t, sm.Commit(ctx, res, req, sess))
	require.Equal(t, http.StatusOK, res.Code)
	return sess
}

func postForm(t *testing.T, sm *shared.SessionManager, sess *shared.Session, path string, form url.Values) (*httptest.ResponseRecorder, *http.Request, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	loaded, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), loaded)
	return httptest.NewRecorder(), req.WithContext(ctx), loaded
}

func TestLoginPageRendersForm(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "<form")
	require.Contains(t, res.Body.String(), "csrf_token")
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-pass-1"), bcrypt.DefaultCost)
	require.NoError(t, err)
	handler, sm := newAuthHandler(t, &stubRepo{user: &auth.User{
		ID: 1, Username: "reader", Email: "reader@libris.local",
		PasswordHash: string(hashed), IsActive: true,
	}})

	sess := primeSession(t, handler, sm)
	form := url.Values{}
	form.Set("username", "reader")
	form.Set("password", "wrong-pass")
	form.Set("csrf_token", sess.Get(shared.CSRFSessionKey))

	res, req, loaded := postForm(t, sm, sess, "/auth/login", form)
	handler.HandleLoginForTest(res, req)
	require.NoError(t, sm.Commit(req.Context(), res, req, loaded))

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "Invalid username or password")
	require.Empty(t, loaded.User())
}

func TestLoginSuccessRegeneratesSession(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-pass-1"), bcrypt.DefaultCost)
	require.NoError(t, err)
	handler, sm := newAuthHandler(t, &stubRepo{user: &auth.User{
		ID: 1, Username: "reader", Email: "reader@libris.local",
		PasswordHash: string(hashed), IsActive: true,
	}})

	sess := primeSession(t, handler, sm)
	oldID := sess.ID
	form := url.Values{}
	form.Set("username", "reader")
	form.Set("password", "correct-pass-1")
	form.Set("csrf_token", sess.Get(shared.CSRFSessionKey))

	res, req, loaded := postForm(t, sm, sess, "/auth/login", form)
	handler.HandleLoginForTest(res, req)
	require.NoError(t, sm.Commit(req.Context(), res, req, loaded))

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/books", res.Header().Get("Location"))
	require.Equal(t, "1", loaded.User())
	require.NotEqual(t, oldID, loaded.ID, "login must rotate the session ID")
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	repo := &stubRepo{}
	handler, sm := newAuthHandler(t, repo)

	sess := primeSession(t, handler, sm)
	form := url.Values{}
	form.Set("username", "newreader")
	form.Set("email", "newreader@libris.local")
	form.Set("password", "12345678")
	form.Set("csrf_token", sess.Get(shared.CSRFSessionKey))

	res, req, _ := postForm(t, sm, sess, "/auth/register", form)
	handler.HandleRegisterForTest(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "entirely numeric")
	require.Empty(t, repo.created)
}

func TestRegisterCreatesActiveUser(t *testing.T) {
	repo := &stubRepo{}
	handler, sm := newAuthHandler(t, repo)

	sess := primeSession(t, handler, sm)
	form := url.Values{}
	form.Set("username", "newreader")
	form.Set("email", "newreader@libris.local")
	form.Set("password", "turquoise-otter-9")
	form.Set("csrf_token", sess.Get(shared.CSRFSessionKey))

	res, req, _ := postForm(t, sm, sess, "/auth/register", form)
	handler.HandleRegisterForTest(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Len(t, repo.created, 1)
	require.True(t, repo.created[0].IsActive)
	require.False(t, repo.created[0].IsSuperuser)
	require.NotEqual(t, "turquoise-otter-9", repo.created[0].PasswordHash)
}

// Package api exposes a small read-only JSON surface for the catalog.
// All endpoints ride the browser session; the same permission checks
// apply as on the HTML pages.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/libris-app/libris/internal/library/books"
	"github.com/libris-app/libris/internal/platform/httpx"
	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/shared"
)

// ActorResolver resolves the request actor.
type ActorResolver interface {
	Current(ctx context.Context) (rbac.Actor, error)
}

// Handler serves /api/v1.
type Handler struct {
	logger *slog.Logger
	books  *books.Service
	gate   *rbac.Gate
	rbac   *rbac.Service
	actors ActorResolver
}

func NewHandler(logger *slog.Logger, bookService *books.Service, gate *rbac.Gate, rbacService *rbac.Service, actors ActorResolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, books: bookService, gate: gate, rbac: rbacService, actors: actors}
}

// MountRoutes registers the v1 routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/books", h.listBooks)
	r.Get("/books/{id}", h.getBook)
	r.Get("/me/permissions", h.myPermissions)
}

type bookJSON struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int64      `json:"author_id"`
	AuthorName      string     `json:"author_name"`
	PublicationYear int        `json:"publication_year"`
	IsPublished     bool       `json:"is_published"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

type bookListJSON struct {
	Books []bookJSON `json:"books"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w, r, rbac.PermViewBook) {
		return
	}
	filters := books.ListFilters{
		Search:  r.URL.Query().Get("q"),
		PerPage: shared.DefaultPerPage,
		Page:    1,
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 0 {
		filters.Page = page
	}
	list, total, err := h.books.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("api list books", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not list books")
		return
	}
	out := bookListJSON{Books: make([]bookJSON, 0, len(list)), Total: total, Page: filters.Page}
	for _, b := range list {
		out.Books = append(out.Books, toBookJSON(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w, r, rbac.PermViewBook) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid book id")
		return
	}
	book, err := h.books.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "book not found")
			return
		}
		h.logger.Error("api get book", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not load book")
		return
	}
	httpx.JSON(w, http.StatusOK, toBookJSON(book))
}

type permissionsJSON struct {
	Username    string   `json:"username"`
	Superuser   bool     `json:"superuser"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.Current(r.Context())
	if err != nil {
		h.logger.Error("api resolve actor", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not resolve session")
		return
	}
	if !actor.Authenticated {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	set, err := h.rbac.EffectivePermissions(r.Context(), actor.ID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		h.logger.Error("api effective permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not load permissions")
		return
	}
	perms := set.Sorted()
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, string(p))
	}
	httpx.JSON(w, http.StatusOK, permissionsJSON{
		Username:    actor.Username,
		Superuser:   actor.Superuser,
		Permissions: codes,
	})
}

// guard checks the required permission and writes the problem response
// on denial.
func (h *Handler) guard(w http.ResponseWriter, r *http.Request, required rbac.Permission) bool {
	actor, err := h.actors.Current(r.Context())
	if err != nil {
		h.logger.Error("api resolve actor", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not resolve session")
		return false
	}
	decision, err := h.gate.Authorize(r.Context(), actor, required)
	if err != nil {
		h.logger.Error("api authorize", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "authorization unavailable")
		return false
	}
	if decision.Allowed {
		return true
	}
	if decision.Reason == rbac.ReasonAuthenticationRequired {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	} else {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission "+string(required))
	}
	return false
}

func toBookJSON(b books.Book) bookJSON {
	return bookJSON{
		ID:              b.ID,
		Title:           b.Title,
		AuthorID:        b.AuthorID,
		AuthorName:      b.AuthorName,
		PublicationYear: b.PublicationYear,
		IsPublished:     b.IsPublished,
		PublishedAt:     b.PublishedAt,
	}
}

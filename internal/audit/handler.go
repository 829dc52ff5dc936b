package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/shared"
	"github.com/libris-app/libris/internal/view"
)

// ActorResolver resolves the request actor.
type ActorResolver interface {
	Current(ctx context.Context) (rbac.Actor, error)
}

// Handler serves the audit timeline page. Superuser only.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	actors    ActorResolver
	templates *view.Engine
	csrf      *shared.CSRFManager
}

func NewHandler(logger *slog.Logger, service *Service, actors ActorResolver, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, actors: actors, templates: templates, csrf: csrf}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
}

type timelinePageData struct {
	Entries    []Entry
	Filters    Filters
	Pagination shared.Pagination
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.Current(r.Context())
	if err != nil {
		h.fail(w, "resolve actor", err)
		return
	}
	if !actor.Authenticated {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	if !actor.Superuser {
		h.render(w, r, "pages/forbidden.html", "Forbidden", nil, http.StatusForbidden)
		return
	}

	filters := parseFilters(r)
	entries, total, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "audit timeline", err)
		return
	}
	h.render(w, r, "pages/audit/list.html", "Audit log", timelinePageData{
		Entries:    entries,
		Filters:    filters,
		Pagination: shared.NewPagination(filters.Page, filters.PerPage, total),
	}, http.StatusOK)
}

func parseFilters(r *http.Request) Filters {
	q := r.URL.Query()
	filters := Filters{
		Actor:   q.Get("actor"),
		Action:  q.Get("action"),
		Entity:  q.Get("entity"),
		Page:    1,
		PerPage: shared.DefaultPerPage,
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filters.Page = page
	}
	if from, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filters.From = from
	}
	if to, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		// inclusive end date
		filters.To = to.AddDate(0, 0, 1)
	}
	return filters
}

func (h *Handler) fail(w http.ResponseWriter, what string, err error) {
	h.logger.Error(what, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

package authors

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/libris-app/libris/internal/library/books"
	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/shared"
	"github.com/libris-app/libris/internal/view"
)

// Handler wires HTTP endpoints for the author admin pages. Every
// operation is gated by can_manage_authors.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      *rbac.Gate
	actors    books.ActorResolver
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate *rbac.Gate, actors books.ActorResolver, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, gate: gate, actors: actors, templates: templates, csrf: csrf}
}

// MountRoutes registers author routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/{id}", h.rename)
	r.Post("/{id}/delete", h.delete)
}

type listPageData struct {
	Authors []Author
	Errors  map[string]string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.guard(w, r); !ok {
		return
	}
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list authors", err)
		return
	}
	h.render(w, r, listPageData{Authors: list}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard(w, r)
	if !ok {
		return
	}
	_, err := h.service.Create(r.Context(), actor.ID, r.PostFormValue("name"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.flash(r, "Author created.")
	http.Redirect(w, r, "/authors", http.StatusSeeOther)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard(w, r)
	if !ok {
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Rename(r.Context(), actor.ID, id, r.PostFormValue("name")); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.flash(r, "Author renamed.")
	http.Redirect(w, r, "/authors", http.StatusSeeOther)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard(w, r)
	if !ok {
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Delete(r.Context(), actor.ID, id); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.flash(r, "Author deleted.")
	http.Redirect(w, r, "/authors", http.StatusSeeOther)
}

func (h *Handler) guard(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	actor, err := h.actors.Current(r.Context())
	if err != nil {
		h.fail(w, "resolve actor", err)
		return actor, false
	}
	decision, err := h.gate.Authorize(r.Context(), actor, rbac.PermManageAuthors)
	if err != nil {
		h.fail(w, "authorize", err)
		return actor, false
	}
	if !decision.Allowed {
		if decision.Reason == rbac.ReasonAuthenticationRequired {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return actor, false
		}
		h.renderPage(w, r, "pages/forbidden.html", "Forbidden", nil, http.StatusForbidden)
		return actor, false
	}
	return actor, true
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	formErrors := make(map[string]string)
	switch {
	case errors.Is(err, ErrNameRequired):
		formErrors["Name"] = "A name is required."
	case errors.Is(err, shared.ErrDuplicate):
		formErrors["Name"] = "An author with that name already exists."
	case errors.Is(err, ErrAuthorHasBooks):
		formErrors["general"] = "This author still has books and cannot be deleted."
	case errors.Is(err, shared.ErrNotFound):
		formErrors["general"] = shared.UserSafeMessage(shared.ErrNotFound)
	default:
		h.fail(w, "author mutation", err)
		return
	}
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list authors", err)
		return
	}
	h.render(w, r, listPageData{Authors: list, Errors: formErrors}, http.StatusBadRequest)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data listPageData, status int) {
	h.renderPage(w, r, "pages/authors/list.html", "Authors", data, status)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
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

func (h *Handler) flash(r *http.Request, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: message})
	}
}

func (h *Handler) fail(w http.ResponseWriter, what string, err error) {
	h.logger.Error(what, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/shared"
	"github.com/libris-app/libris/internal/view"
)

// ActorResolver resolves the request actor.
type ActorResolver interface {
	Current(ctx context.Context) (rbac.Actor, error)
}

// Handler wires the user administration pages. Access requires the
// superuser flag; the permission catalog is not consulted here, it only
// gates book and author operations.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	rbac      *rbac.Service
	actors    ActorResolver
	templates *view.Engine
	csrf      *shared.CSRFManager
	audit     *shared.AuditLogger
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, rbacService *rbac.Service, actors ActorResolver, templates *view.Engine, csrf *shared.CSRFManager, audit *shared.AuditLogger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, repo: repo, rbac: rbacService, actors: actors, templates: templates, csrf: csrf, audit: audit}
}

// MountRoutes registers user admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.detail)
	r.Post("/{id}/roles", h.assignRole)
	r.Post("/{id}/roles/remove", h.removeRole)
	r.Post("/{id}/active", h.setActive)
}

type listPageData struct {
	Users      []User
	Search     string
	Pagination shared.Pagination
}

type detailPageData struct {
	User       User
	Roles      []rbac.Role
	AllRoles   []rbac.Role
	Effective  []rbac.Permission
	Errors     map[string]string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.guard(w, r); !ok {
		return
	}
	filters := ListFilters{Search: r.URL.Query().Get("q"), PerPage: shared.DefaultPerPage}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 0 {
		filters.Page = page
	} else {
		filters.Page = 1
	}
	list, total, err := h.repo.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	h.render(w, r, "pages/users/list.html", "Users", listPageData{
		Users:      list,
		Search:     filters.Search,
		Pagination: shared.NewPagination(filters.Page, filters.PerPage, total),
	}, http.StatusOK)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.guard(w, r); !ok {
		return
	}
	id := h.pathID(r)
	user, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.fail(w, "get user", err)
		return
	}
	data, err := h.detailData(r, user)
	if err != nil {
		h.fail(w, "load user detail", err)
		return
	}
	h.render(w, r, "pages/users/detail.html", user.Username, data, http.StatusOK)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	h.mutateMembership(w, r, "assign_role", func(actorID int64, roleName string) error {
		return h.rbac.AssignRole(r.Context(), actorID, roleName)
	})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	h.mutateMembership(w, r, "remove_role", func(actorID int64, roleName string) error {
		return h.rbac.RemoveRole(r.Context(), actorID, roleName)
	})
}

func (h *Handler) mutateMembership(w http.ResponseWriter, r *http.Request, action string, mutate func(int64, string) error) {
	admin, ok := h.guard(w, r)
	if !ok {
		return
	}
	id := h.pathID(r)
	roleName := r.PostFormValue("role")
	if err := mutate(id, roleName); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			user, getErr := h.repo.Get(r.Context(), id)
			if getErr != nil {
				http.NotFound(w, r)
				return
			}
			data, dataErr := h.detailData(r, user)
			if dataErr != nil {
				h.fail(w, "load user detail", dataErr)
				return
			}
			data.Errors = map[string]string{"Role": "Unknown role."}
			h.render(w, r, "pages/users/detail.html", user.Username, data, http.StatusBadRequest)
			return
		}
		h.fail(w, action, err)
		return
	}
	h.recordAudit(r, admin.ID, action, id, roleName)
	h.flash(r, "Membership updated.")
	http.Redirect(w, r, "/admin/users/"+strconv.FormatInt(id, 10), http.StatusSeeOther)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.guard(w, r)
	if !ok {
		return
	}
	id := h.pathID(r)
	active := r.PostFormValue("active") == "1"
	if err := h.repo.SetActive(r.Context(), id, active); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.fail(w, "set active", err)
		return
	}
	action := "deactivate"
	if active {
		action = "activate"
	}
	h.recordAudit(r, admin.ID, action, id, "")
	h.flash(r, "Account updated.")
	http.Redirect(w, r, "/admin/users/"+strconv.FormatInt(id, 10), http.StatusSeeOther)
}

func (h *Handler) detailData(r *http.Request, user User) (detailPageData, error) {
	roles, err := h.rbac.ActorRoles(r.Context(), user.ID)
	if err != nil {
		return detailPageData{}, err
	}
	allRoles, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		return detailPageData{}, err
	}
	effective, err := h.rbac.EffectivePermissions(r.Context(), user.ID)
	if err != nil {
		return detailPageData{}, err
	}
	return detailPageData{
		User:      user,
		Roles:     roles,
		AllRoles:  allRoles,
		Effective: effective.Sorted(),
	}, nil
}

func (h *Handler) guard(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	actor, err := h.actors.Current(r.Context())
	if err != nil {
		h.fail(w, "resolve actor", err)
		return actor, false
	}
	if !actor.Authenticated {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return actor, false
	}
	if !actor.Superuser {
		h.render(w, r, "pages/forbidden.html", "Forbidden", nil, http.StatusForbidden)
		return actor, false
	}
	return actor, true
}

func (h *Handler) pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func (h *Handler) recordAudit(r *http.Request, adminID int64, action string, userID int64, role string) {
	if h.audit == nil {
		return
	}
	meta := map[string]any{}
	if role != "" {
		meta["role"] = role
	}
	if err := h.audit.Record(r.Context(), adminID, action, "user", strconv.FormatInt(userID, 10), meta); err != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
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

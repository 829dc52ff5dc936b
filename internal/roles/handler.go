package roles

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

// Handler serves the role administration pages. Superuser only.
type Handler struct {
	logger    *slog.Logger
	rbac      *rbac.Service
	actors    ActorResolver
	templates *view.Engine
	csrf      *shared.CSRFManager
	audit     *shared.AuditLogger
}

func NewHandler(logger *slog.Logger, rbacService *rbac.Service, actors ActorResolver, templates *view.Engine, csrf *shared.CSRFManager, audit *shared.AuditLogger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, rbac: rbacService, actors: actors, templates: templates, csrf: csrf, audit: audit}
}

// MountRoutes registers role admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{name}/edit", h.editForm)
	r.Post("/{name}", h.update)
}

// roleRow pairs a role with its grants and the full catalog for the
// matrix view.
type roleRow struct {
	Role    rbac.Role
	Granted map[rbac.Permission]bool
}

type listPageData struct {
	Catalog []rbac.CatalogEntry
	Rows    []roleRow
	Drift   []rbac.Drift
}

type formPageData struct {
	Role    rbac.Role
	Catalog []rbac.CatalogEntry
	Granted map[rbac.Permission]bool
	Errors  map[string]string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w, r) {
		return
	}
	list, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	rows := make([]roleRow, 0, len(list))
	for _, role := range list {
		rows = append(rows, roleRow{Role: role, Granted: grantedSet(role)})
	}
	drift, err := h.rbac.VerifyRoles(r.Context())
	if err != nil {
		h.fail(w, "verify roles", err)
		return
	}
	h.render(w, r, "pages/roles/list.html", "Roles", listPageData{
		Catalog: rbac.Catalog(),
		Rows:    rows,
		Drift:   drift,
	}, http.StatusOK)
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w, r) {
		return
	}
	role, err := h.rbac.GetRole(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.fail(w, "get role", err)
		return
	}
	h.render(w, r, "pages/roles/form.html", "Edit "+role.Name, formPageData{
		Role:    role,
		Catalog: rbac.Catalog(),
		Granted: grantedSet(role),
	}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w, r) {
		return
	}
	role, err := h.rbac.GetRole(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.fail(w, "get role", err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	perms := make([]rbac.Permission, 0, len(r.PostForm["permissions"]))
	for _, raw := range r.PostForm["permissions"] {
		perms = append(perms, rbac.Permission(raw))
	}
	if err := h.rbac.SetRolePermissions(r.Context(), role.Name, perms); err != nil {
		if errors.Is(err, rbac.ErrUnknownPermission) {
			granted := make(map[rbac.Permission]bool, len(perms))
			for _, p := range perms {
				granted[p] = true
			}
			h.render(w, r, "pages/roles/form.html", "Edit "+role.Name, formPageData{
				Role:    role,
				Catalog: rbac.Catalog(),
				Granted: granted,
				Errors:  map[string]string{"Permissions": "One or more permissions are not in the catalog."},
			}, http.StatusBadRequest)
			return
		}
		h.fail(w, "set role permissions", err)
		return
	}
	h.recordAudit(r, role, perms)
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Role updated."})
	}
	http.Redirect(w, r, "/admin/roles", http.StatusSeeOther)
}

func grantedSet(role rbac.Role) map[rbac.Permission]bool {
	granted := make(map[rbac.Permission]bool, len(role.Permissions))
	for _, p := range role.Permissions {
		granted[p] = true
	}
	return granted
}

func (h *Handler) guard(w http.ResponseWriter, r *http.Request) bool {
	actor, err := h.actors.Current(r.Context())
	if err != nil {
		h.fail(w, "resolve actor", err)
		return false
	}
	if !actor.Authenticated {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return false
	}
	if !actor.Superuser {
		h.render(w, r, "pages/forbidden.html", "Forbidden", nil, http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) recordAudit(r *http.Request, role rbac.Role, perms []rbac.Permission) {
	if h.audit == nil {
		return
	}
	actor, err := h.actors.Current(r.Context())
	if err != nil {
		return
	}
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, string(p))
	}
	meta := map[string]any{"permissions": codes}
	if err := h.audit.Record(r.Context(), actor.ID, "update_role", "role", strconv.FormatInt(role.ID, 10), meta); err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
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

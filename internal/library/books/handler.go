package books

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/shared"
	"github.com/libris-app/libris/internal/view"
)

// AuthorOption is one entry in the author select box.
type AuthorOption struct {
	ID   int64
	Name string
}

// AuthorSource lists authors for the book form.
type AuthorSource interface {
	Options(ctx context.Context) ([]AuthorOption, error)
}

// ActorResolver resolves the request actor for the guard clauses.
type ActorResolver interface {
	Current(ctx context.Context) (rbac.Actor, error)
}

// Handler wires HTTP endpoints for the book pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authors   AuthorSource
	gate      *rbac.Gate
	actors    ActorResolver
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authors AuthorSource, gate *rbac.Gate, actors ActorResolver, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		authors:   authors,
		gate:      gate,
		actors:    actors,
		templates: templates,
		csrf:      csrf,
	}
}

// MountRoutes registers book routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/new", h.newForm)
	r.Post("/", h.create)
	r.Get("/{id}", h.detail)
	r.Get("/{id}/edit", h.editForm)
	r.Post("/{id}", h.update)
	r.Post("/{id}/delete", h.delete)
	r.Post("/{id}/publish", h.publish)
	r.Post("/{id}/unpublish", h.unpublish)
}

type bookForm struct {
	Title    string
	AuthorID string
	Year     string
}

type listPageData struct {
	Books      []Book
	Authors    []AuthorOption
	Filters    ListFilters
	Pagination shared.Pagination
	Can        map[string]bool
}

type formPageData struct {
	Book    Book
	Form    bookForm
	Authors []AuthorOption
	Errors  map[string]string
	IsEdit  bool
}

type detailPageData struct {
	Book Book
	Can  map[string]bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard(w, r, rbac.PermViewBook)
	if !ok {
		return
	}

	filters := parseFilters(r)
	var (
		list    []Book
		total   int
		options []AuthorOption
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		list, total, err = h.service.List(ctx, filters)
		return err
	})
	g.Go(func() error {
		var err error
		options, err = h.authors.Options(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, "list books", err)
		return
	}

	h.render(w, r, "pages/books/list.html", "Books", listPageData{
		Books:      list,
		Authors:    options,
		Filters:    filters,
		Pagination: shared.NewPagination(filters.Page, filters.PerPage, total),
		Can:        h.capabilities(r.Context(), actor),
	}, http.StatusOK)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard(w, r, rbac.PermViewBook)
	if !ok {
		return
	}
	book, ok := h.fetch(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/books/detail.html", book.Title, detailPageData{
		Book: book,
		Can:  h.capabilities(r.Context(), actor),
	}, http.StatusOK)
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.guard(w, r, rbac.PermCreateBook); !ok {
		return
	}
	options, err := h.authors.Options(r.Context())
	if err != nil {
		h.fail(w, r, "load authors", err)
		return
	}
	h.render(w, r, "pages/books/form.html", "New book", formPageData{Authors: options}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard(w, r, rbac.PermCreateBook)
	if !ok {
		return
	}
	form, book, formErrors := h.parseBookForm(r)
	if len(formErrors) == 0 {
		created, err := h.service.Create(r.Context(), actor.ID, book)
		if err != nil {
			formErrors = formErrorsFor(err)
		} else {
			h.flash(r, "success", "Book created.")
			http.Redirect(w, r, "/books/"+strconv.FormatInt(created.ID, 10), http.StatusSeeOther)
			return
		}
	}
	options, err := h.authors.Options(r.Context())
	if err != nil {
		h.fail(w, r, "load authors", err)
		return
	}
	h.render(w, r, "pages/books/form.html", "New book",
		formPageData{Form: form, Authors: options, Errors: formErrors}, http.StatusBadRequest)
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.guard(w, r, rbac.PermEditBook); !ok {
		return
	}
	id := h.pathID(r)

	// The edit page needs the book and the author options; fetch both
	// concurrently.
	var (
		book    Book
		options []AuthorOption
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		book, err = h.service.Get(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		options, err = h.authors.Options(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.notFound(w, r)
			return
		}
		h.fail(w, r, "load book form", err)
		return
	}

	h.render(w, r, "pages/books/form.html", "Edit "+book.Title, formPageData{
		Book: book,
		Form: bookForm{
			Title:    book.Title,
			AuthorID: strconv.FormatInt(book.AuthorID, 10),
			Year:     strconv.Itoa(book.PublicationYear),
		},
		Authors: options,
		IsEdit:  true,
	}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard(w, r, rbac.PermEditBook)
	if !ok {
		return
	}
	id := h.pathID(r)
	form, book, formErrors := h.parseBookForm(r)
	if len(formErrors) == 0 {
		err := h.service.Update(r.Context(), actor.ID, id, book)
		switch {
		case err == nil:
			h.flash(r, "success", "Book updated.")
			http.Redirect(w, r, "/books/"+strconv.FormatInt(id, 10), http.StatusSeeOther)
			return
		case errors.Is(err, shared.ErrNotFound):
			h.notFound(w, r)
			return
		default:
			formErrors = formErrorsFor(err)
		}
	}
	options, err := h.authors.Options(r.Context())
	if err != nil {
		h.fail(w, r, "load authors", err)
		return
	}
	h.render(w, r, "pages/books/form.html", "Edit book",
		formPageData{Book: Book{ID: id}, Form: form, Authors: options, Errors: formErrors, IsEdit: true},
		http.StatusBadRequest)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard(w, r, rbac.PermDeleteBook)
	if !ok {
		return
	}
	err := h.service.Delete(r.Context(), actor.ID, h.pathID(r))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.notFound(w, r)
			return
		}
		h.fail(w, r, "delete book", err)
		return
	}
	h.flash(r, "success", "Book deleted.")
	http.Redirect(w, r, "/books", http.StatusSeeOther)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, true)
}

func (h *Handler) unpublish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, false)
}

func (h *Handler) setPublished(w http.ResponseWriter, r *http.Request, published bool) {
	actor, ok := h.guard(w, r, rbac.PermPublishBook)
	if !ok {
		return
	}
	id := h.pathID(r)
	if err := h.service.SetPublished(r.Context(), actor.ID, id, published); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.notFound(w, r)
			return
		}
		h.fail(w, r, "set published", err)
		return
	}
	if published {
		h.flash(r, "success", "Book published.")
	} else {
		h.flash(r, "success", "Book unpublished.")
	}
	http.Redirect(w, r, "/books/"+strconv.FormatInt(id, 10), http.StatusSeeOther)
}

// guard is the explicit enforcement clause at the top of every
// protected handler: resolve the actor, ask the gate, and render the
// classified outcome on deny.
func (h *Handler) guard(w http.ResponseWriter, r *http.Request, required rbac.Permission) (rbac.Actor, bool) {
	actor, err := h.actors.Current(r.Context())
	if err != nil {
		h.fail(w, r, "resolve actor", err)
		return actor, false
	}
	decision, err := h.gate.Authorize(r.Context(), actor, required)
	if err != nil {
		h.fail(w, r, "authorize", err)
		return actor, false
	}
	if !decision.Allowed {
		if decision.Reason == rbac.ReasonAuthenticationRequired {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return actor, false
		}
		h.render(w, r, "pages/forbidden.html", "Forbidden", nil, http.StatusForbidden)
		return actor, false
	}
	return actor, true
}

// capabilities reports which buttons the current actor should see. The
// gate still re-checks on every POST; this only shapes the page.
func (h *Handler) capabilities(ctx context.Context, actor rbac.Actor) map[string]bool {
	can := make(map[string]bool, 4)
	for name, perm := range map[string]rbac.Permission{
		"Create":  rbac.PermCreateBook,
		"Edit":    rbac.PermEditBook,
		"Delete":  rbac.PermDeleteBook,
		"Publish": rbac.PermPublishBook,
	} {
		decision, err := h.gate.Authorize(ctx, actor, perm)
		can[name] = err == nil && decision.Allowed
	}
	return can
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) (Book, bool) {
	book, err := h.service.Get(r.Context(), h.pathID(r))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.notFound(w, r)
			return Book{}, false
		}
		h.fail(w, r, "get book", err)
		return Book{}, false
	}
	return book, true
}

func (h *Handler) pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func (h *Handler) parseBookForm(r *http.Request) (bookForm, Book, map[string]string) {
	formErrors := make(map[string]string)
	if err := r.ParseForm(); err != nil {
		formErrors["general"] = "The submitted form could not be read."
		return bookForm{}, Book{}, formErrors
	}
	form := bookForm{
		Title:    r.PostFormValue("title"),
		AuthorID: r.PostFormValue("author_id"),
		Year:     r.PostFormValue("publication_year"),
	}
	authorID, err := strconv.ParseInt(form.AuthorID, 10, 64)
	if err != nil && form.AuthorID != "" {
		formErrors["AuthorID"] = "Choose an author from the list."
	}
	year, err := strconv.Atoi(form.Year)
	if err != nil && form.Year != "" {
		formErrors["Year"] = "Publication year must be a number."
	}
	book := Book{Title: form.Title, AuthorID: authorID, PublicationYear: year}
	return form, book, formErrors
}

func formErrorsFor(err error) map[string]string {
	switch {
	case errors.Is(err, ErrTitleRequired):
		return map[string]string{"Title": "A title is required."}
	case errors.Is(err, ErrAuthorRequired):
		return map[string]string{"AuthorID": "Choose an author from the list."}
	case errors.Is(err, ErrYearInvalid):
		return map[string]string{"Year": "Publication year must be a positive number."}
	case errors.Is(err, ErrYearInFuture):
		return map[string]string{"Year": "Publication year cannot be in the future."}
	case errors.Is(err, shared.ErrNotFound):
		return map[string]string{"AuthorID": "That author no longer exists."}
	default:
		return map[string]string{"general": shared.UserSafeMessage(err)}
	}
}

func parseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		Search:  q.Get("q"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
		PerPage: shared.DefaultPerPage,
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filters.Page = page
	} else {
		filters.Page = 1
	}
	if authorID, err := strconv.ParseInt(q.Get("author"), 10, 64); err == nil && authorID > 0 {
		filters.AuthorID = authorID
	}
	switch q.Get("published") {
	case "yes":
		published := true
		filters.Published = &published
	case "no":
		published := false
		filters.Published = &published
	}
	return filters
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/not_found.html", "Not found", nil, http.StatusNotFound)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
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

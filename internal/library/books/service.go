package books

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/libris-app/libris/internal/shared"
)

// Validation failures reported back to the form.
var (
	ErrTitleRequired  = errors.New("books: title required")
	ErrAuthorRequired = errors.New("books: author required")
	ErrYearInFuture   = errors.New("books: publication year in the future")
	ErrYearInvalid    = errors.New("books: publication year invalid")
)

// Service wraps book business rules.
type Service struct {
	repo  Repository
	audit *shared.AuditLogger
	now   func() time.Time
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// List returns the filtered book page and the total match count.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Book, int, error) {
	return s.repo.List(ctx, filters)
}

// Get fetches a single book.
func (s *Service) Get(ctx context.Context, id int64) (Book, error) {
	if id <= 0 {
		return Book{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create validates and stores a new book.
func (s *Service) Create(ctx context.Context, actorID int64, book Book) (Book, error) {
	if err := s.validate(book); err != nil {
		return Book{}, err
	}
	created, err := s.repo.Create(ctx, book)
	if err != nil {
		return Book{}, err
	}
	s.record(ctx, actorID, shared.AuditActionCreate, created.ID, map[string]any{"title": created.Title})
	return created, nil
}

// Update validates and stores changes to an existing book.
func (s *Service) Update(ctx context.Context, actorID, id int64, book Book) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.validate(book); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, book); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditActionUpdate, id, map[string]any{"title": book.Title})
	return nil
}

// Delete removes a book.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditActionDelete, id, nil)
	return nil
}

// SetPublished flips the publication flag.
func (s *Service) SetPublished(ctx context.Context, actorID, id int64, published bool) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.repo.SetPublished(ctx, id, published); err != nil {
		return err
	}
	action := "publish"
	if !published {
		action = "unpublish"
	}
	s.record(ctx, actorID, action, id, nil)
	return nil
}

func (s *Service) validate(book Book) error {
	if strings.TrimSpace(book.Title) == "" {
		return ErrTitleRequired
	}
	if book.AuthorID <= 0 {
		return ErrAuthorRequired
	}
	if book.PublicationYear < 1 {
		return ErrYearInvalid
	}
	if book.PublicationYear > s.now().Year() {
		return ErrYearInFuture
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, bookID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, actorID, action, "book", strconv.FormatInt(bookID, 10), meta)
}

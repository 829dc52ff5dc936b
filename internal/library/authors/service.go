package authors

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/libris-app/libris/internal/library/books"
	"github.com/libris-app/libris/internal/shared"
)

var (
	// ErrNameRequired indicates an empty author name.
	ErrNameRequired = errors.New("authors: name required")
	// ErrAuthorHasBooks indicates a delete refused because books still
	// reference the author.
	ErrAuthorHasBooks = errors.New("authors: author still has books")
)

// Service wraps author business rules.
type Service struct {
	repo  Repository
	audit *shared.AuditLogger
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns all authors with their book counts.
func (s *Service) List(ctx context.Context) ([]Author, error) {
	return s.repo.List(ctx)
}

// Get fetches a single author.
func (s *Service) Get(ctx context.Context, id int64) (Author, error) {
	if id <= 0 {
		return Author{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create stores a new author.
func (s *Service) Create(ctx context.Context, actorID int64, name string) (Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Author{}, ErrNameRequired
	}
	author, err := s.repo.Create(ctx, name)
	if err != nil {
		return Author{}, err
	}
	s.record(ctx, actorID, shared.AuditActionCreate, author.ID, map[string]any{"name": name})
	return author, nil
}

// Rename changes an author's name.
func (s *Service) Rename(ctx context.Context, actorID, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditActionUpdate, id, map[string]any{"name": name})
	return nil
}

// Delete removes an author. Authors that still have books are refused
// with ErrAuthorHasBooks.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditActionDelete, id, nil)
	return nil
}

// Options adapts the author list for the book form select box.
func (s *Service) Options(ctx context.Context) ([]books.AuthorOption, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	options := make([]books.AuthorOption, 0, len(list))
	for _, a := range list {
		options = append(options, books.AuthorOption{ID: a.ID, Name: a.Name})
	}
	return options, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, authorID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, actorID, action, "author", strconv.FormatInt(authorID, 10), meta)
}

var _ books.AuthorSource = (*Service)(nil)

package books

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/internal/shared"
	_ "github.com/libris-app/libris/testing"
)

type fakeRepo struct {
	nextID int64
	books  map[int64]Book
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{books: make(map[int64]Book)}
}

func (f *fakeRepo) List(_ context.Context, filters ListFilters) ([]Book, int, error) {
	var out []Book
	for _, b := range f.books {
		if filters.Published != nil && b.IsPublished != *filters.Published {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Book, error) {
	b, ok := f.books[id]
	if !ok {
		return Book{}, shared.ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) Create(_ context.Context, book Book) (Book, error) {
	f.nextID++
	book.ID = f.nextID
	book.CreatedAt = time.Now()
	book.UpdatedAt = book.CreatedAt
	f.books[book.ID] = book
	return book, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, book Book) error {
	existing, ok := f.books[id]
	if !ok {
		return shared.ErrNotFound
	}
	existing.Title = book.Title
	existing.AuthorID = book.AuthorID
	existing.PublicationYear = book.PublicationYear
	f.books[id] = existing
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.books[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.books, id)
	return nil
}

func (f *fakeRepo) SetPublished(_ context.Context, id int64, published bool) error {
	b, ok := f.books[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.IsPublished = published
	f.books[id] = b
	return nil
}

var _ Repository = (*fakeRepo)(nil)

func fixedService(repo Repository) *Service {
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateValidatesFields(t *testing.T) {
	svc := fixedService(newFakeRepo())
	ctx := context.Background()

	cases := []struct {
		name string
		book Book
		want error
	}{
		{"missing title", Book{AuthorID: 1, PublicationYear: 2000}, ErrTitleRequired},
		{"blank title", Book{Title: "   ", AuthorID: 1, PublicationYear: 2000}, ErrTitleRequired},
		{"missing author", Book{Title: "Dune", PublicationYear: 1965}, ErrAuthorRequired},
		{"zero year", Book{Title: "Dune", AuthorID: 1}, ErrYearInvalid},
		{"future year", Book{Title: "Dune II", AuthorID: 1, PublicationYear: 2027}, ErrYearInFuture},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, 1, tc.book)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateAcceptsCurrentYear(t *testing.T) {
	svc := fixedService(newFakeRepo())
	created, err := svc.Create(context.Background(), 1, Book{Title: "Almanac", AuthorID: 1, PublicationYear: 2026})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestUpdateUnknownBook(t *testing.T) {
	svc := fixedService(newFakeRepo())
	err := svc.Update(context.Background(), 1, 42, Book{Title: "Ghost", AuthorID: 1, PublicationYear: 2000})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPublishLifecycle(t *testing.T) {
	repo := newFakeRepo()
	svc := fixedService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, Book{Title: "Dune", AuthorID: 1, PublicationYear: 1965})
	require.NoError(t, err)
	require.False(t, created.IsPublished)

	require.NoError(t, svc.SetPublished(ctx, 1, created.ID, true))
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, got.IsPublished)

	require.NoError(t, svc.SetPublished(ctx, 1, created.ID, false))
	got, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, got.IsPublished)
}

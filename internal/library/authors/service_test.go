package authors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/internal/shared"
	_ "github.com/libris-app/libris/testing"
)

type fakeRepo struct {
	nextID  int64
	authors map[int64]*Author
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{authors: make(map[int64]*Author)}
}

func (f *fakeRepo) List(context.Context) ([]Author, error) {
	var out []Author
	for _, a := range f.authors {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Author, error) {
	a, ok := f.authors[id]
	if !ok {
		return Author{}, shared.ErrNotFound
	}
	return *a, nil
}

func (f *fakeRepo) Create(_ context.Context, name string) (Author, error) {
	for _, a := range f.authors {
		if a.Name == name {
			return Author{}, shared.ErrDuplicate
		}
	}
	f.nextID++
	author := &Author{ID: f.nextID, Name: name}
	f.authors[author.ID] = author
	return *author, nil
}

func (f *fakeRepo) Rename(_ context.Context, id int64, name string) error {
	a, ok := f.authors[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.Name = name
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	a, ok := f.authors[id]
	if !ok {
		return shared.ErrNotFound
	}
	if a.BookCount > 0 {
		return ErrAuthorHasBooks
	}
	delete(f.authors, id)
	return nil
}

var _ Repository = (*fakeRepo)(nil)

func TestCreateRejectsBlankAndDuplicateNames(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, "   ")
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(ctx, 1, "Ursula K. Le Guin")
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, "Ursula K. Le Guin")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestDeleteRefusedWhileBooksRemain(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	author, err := svc.Create(ctx, 1, "Frank Herbert")
	require.NoError(t, err)
	repo.authors[author.ID].BookCount = 2

	require.ErrorIs(t, svc.Delete(ctx, 1, author.ID), ErrAuthorHasBooks)

	repo.authors[author.ID].BookCount = 0
	require.NoError(t, svc.Delete(ctx, 1, author.ID))
}

func TestOptionsAdaptsListForBookForm(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, 1, "Octavia Butler")
	require.NoError(t, err)

	options, err := svc.Options(ctx)
	require.NoError(t, err)
	require.Len(t, options, 1)
	require.Equal(t, "Octavia Butler", options[0].Name)
}

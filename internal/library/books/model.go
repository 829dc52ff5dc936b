package books

import "time"

// Book is the protected resource whose operations the permission
// catalog gates.
type Book struct {
	ID              int64
	Title           string
	AuthorID        int64
	AuthorName      string
	PublicationYear int
	IsPublished     bool
	PublishedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListFilters narrows and orders the book listing.
type ListFilters struct {
	Search    string
	AuthorID  int64
	Published *bool
	SortBy    string
	SortDir   string
	Page      int
	PerPage   int
}

// Package users implements the superuser administration pages for
// accounts and their role memberships.
package users

import "time"

// User is the administrative projection of an account.
type User struct {
	ID          int64
	Username    string
	Email       string
	IsSuperuser bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilters narrows the user listing.
type ListFilters struct {
	Search  string
	Page    int
	PerPage int
}

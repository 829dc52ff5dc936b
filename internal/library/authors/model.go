package authors

import "time"

// Author is a book author managed under can_manage_authors.
type Author struct {
	ID        int64
	Name      string
	BookCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

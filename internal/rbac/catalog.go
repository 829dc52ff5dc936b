package rbac

// The fixed permission catalog. Codes gate one book operation each and
// are never reused for a different meaning.
const (
	PermViewBook      Permission = "can_view_book"
	PermCreateBook    Permission = "can_create_book"
	PermEditBook      Permission = "can_edit_book"
	PermDeleteBook    Permission = "can_delete_book"
	PermPublishBook   Permission = "can_publish_book"
	PermManageAuthors Permission = "can_manage_authors"
)

// Default role names seeded at setup.
const (
	RoleViewers = "Viewers"
	RoleEditors = "Editors"
	RoleAdmins  = "Admins"
)

// CatalogEntry pairs a permission code with its display label.
type CatalogEntry struct {
	Code  Permission
	Label string
}

var catalog = []CatalogEntry{
	{PermViewBook, "Can view book"},
	{PermCreateBook, "Can create book"},
	{PermEditBook, "Can edit book"},
	{PermDeleteBook, "Can delete book"},
	{PermPublishBook, "Can publish book"},
	{PermManageAuthors, "Can manage authors"},
}

var defaultMatrix = map[string][]Permission{
	RoleViewers: {PermViewBook},
	RoleEditors: {PermViewBook, PermCreateBook, PermEditBook, PermManageAuthors},
	RoleAdmins:  {PermViewBook, PermCreateBook, PermEditBook, PermDeleteBook, PermPublishBook, PermManageAuthors},
}

var roleDescriptions = map[string]string{
	RoleViewers: "Read-only access to the catalogue",
	RoleEditors: "Curate books and authors",
	RoleAdmins:  "Full control over the catalogue",
}

// Catalog returns the six catalog entries in declaration order.
func Catalog() []CatalogEntry {
	out := make([]CatalogEntry, len(catalog))
	copy(out, catalog)
	return out
}

// InCatalog reports whether the code belongs to the fixed catalog.
func InCatalog(p Permission) bool {
	for _, entry := range catalog {
		if entry.Code == p {
			return true
		}
	}
	return false
}

// DefaultRoleNames returns the three seeded role names in display order.
func DefaultRoleNames() []string {
	return []string{RoleViewers, RoleEditors, RoleAdmins}
}

// DefaultRolePermissions returns the canonical permission set for a
// default role, or nil for other role names.
func DefaultRolePermissions(name string) []Permission {
	perms, ok := defaultMatrix[name]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

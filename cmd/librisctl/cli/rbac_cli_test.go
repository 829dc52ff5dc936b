package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/internal/rbac"

	_ "github.com/libris-app/libris/testing"
)

type stubStore struct {
	roles       map[string]rbac.Role
	memberships map[int64]map[int64]bool
	actors      map[int64]bool
}

func newStubStore() *stubStore {
	s := &stubStore{
		roles:       map[string]rbac.Role{},
		memberships: map[int64]map[int64]bool{},
		actors:      map[int64]bool{42: true},
	}
	for i, name := range rbac.DefaultRoleNames() {
		s.roles[name] = rbac.Role{
			ID:          int64(i + 1),
			Name:        name,
			Permissions: rbac.DefaultRolePermissions(name),
		}
	}
	return s
}

func (s *stubStore) UpsertPermission(context.Context, rbac.Permission, string) error { return nil }
func (s *stubStore) ListPermissions(context.Context) ([]rbac.PermissionRecord, error) {
	return nil, nil
}
func (s *stubStore) GetRoleByName(_ context.Context, name string) (rbac.Role, error) {
	role, ok := s.roles[name]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return role, nil
}
func (s *stubStore) ListRoles(context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(s.roles))
	for _, name := range rbac.DefaultRoleNames() {
		out = append(out, s.roles[name])
	}
	return out, nil
}
func (s *stubStore) CreateRole(_ context.Context, name, _ string) (rbac.Role, error) {
	role := rbac.Role{ID: int64(len(s.roles) + 1), Name: name}
	s.roles[name] = role
	return role, nil
}
func (s *stubStore) ReplaceRolePermissions(_ context.Context, roleID int64, codes []rbac.Permission) error {
	for name, role := range s.roles {
		if role.ID == roleID {
			role.Permissions = codes
			s.roles[name] = role
		}
	}
	return nil
}
func (s *stubStore) ActorExists(_ context.Context, id int64) (bool, error) {
	return s.actors[id], nil
}
func (s *stubStore) AddMembership(_ context.Context, actorID, roleID int64) error {
	if s.memberships[actorID] == nil {
		s.memberships[actorID] = map[int64]bool{}
	}
	s.memberships[actorID][roleID] = true
	return nil
}
func (s *stubStore) RemoveMembership(_ context.Context, actorID, roleID int64) error {
	delete(s.memberships[actorID], roleID)
	return nil
}
func (s *stubStore) ActorPermissions(_ context.Context, actorID int64) ([]rbac.Permission, error) {
	seen := map[rbac.Permission]bool{}
	var out []rbac.Permission
	for _, role := range s.roles {
		if !s.memberships[actorID][role.ID] {
			continue
		}
		for _, p := range role.Permissions {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}
func (s *stubStore) ActorRoles(context.Context, int64) ([]rbac.Role, error) { return nil, nil }

func TestAssignRoleThenGrants(t *testing.T) {
	store := newStubStore()
	var buf bytes.Buffer
	cli := NewRBACCLI(rbac.NewService(store, nil), &buf)

	require.NoError(t, cli.AssignRole(context.Background(), 42, rbac.RoleViewers))
	assert.Contains(t, buf.String(), "assigned Viewers to user 42")

	buf.Reset()
	require.NoError(t, cli.Grants(context.Background(), 42))
	assert.Equal(t, "can_view_book\n", buf.String())
}

func TestAssignRoleUnknownUser(t *testing.T) {
	store := newStubStore()
	var buf bytes.Buffer
	cli := NewRBACCLI(rbac.NewService(store, nil), &buf)

	err := cli.AssignRole(context.Background(), 99, rbac.RoleViewers)
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestVerifyReportsDrift(t *testing.T) {
	store := newStubStore()
	drifted := store.roles[rbac.RoleViewers]
	drifted.Permissions = nil
	store.roles[rbac.RoleViewers] = drifted

	var buf bytes.Buffer
	cli := NewRBACCLI(rbac.NewService(store, nil), &buf)

	require.NoError(t, cli.Verify(context.Background(), true))
	out := buf.String()
	assert.Contains(t, out, "Viewers drifted")
	assert.Contains(t, out, "roles converged to defaults")
	assert.Equal(t, rbac.DefaultRolePermissions(rbac.RoleViewers), store.roles[rbac.RoleViewers].Permissions)
}

package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/internal/rbac"

	_ "github.com/libris-app/libris/testing"
)

// driftStore serves a Viewers role missing its grant so the verify job
// has something to converge.
type driftStore struct {
	roles    map[string]rbac.Role
	replaced map[int64][]rbac.Permission
}

func newDriftStore() *driftStore {
	return &driftStore{
		roles: map[string]rbac.Role{
			rbac.RoleViewers: {ID: 1, Name: rbac.RoleViewers},
			rbac.RoleEditors: {ID: 2, Name: rbac.RoleEditors, Permissions: rbac.DefaultRolePermissions(rbac.RoleEditors)},
			rbac.RoleAdmins:  {ID: 3, Name: rbac.RoleAdmins, Permissions: rbac.DefaultRolePermissions(rbac.RoleAdmins)},
		},
		replaced: map[int64][]rbac.Permission{},
	}
}

func (s *driftStore) UpsertPermission(context.Context, rbac.Permission, string) error { return nil }
func (s *driftStore) ListPermissions(context.Context) ([]rbac.PermissionRecord, error) {
	return nil, nil
}
func (s *driftStore) GetRoleByName(_ context.Context, name string) (rbac.Role, error) {
	role, ok := s.roles[name]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return role, nil
}
func (s *driftStore) ListRoles(context.Context) ([]rbac.Role, error) { return nil, nil }
func (s *driftStore) CreateRole(_ context.Context, name, _ string) (rbac.Role, error) {
	role := rbac.Role{ID: int64(len(s.roles) + 1), Name: name}
	s.roles[name] = role
	return role, nil
}
func (s *driftStore) ReplaceRolePermissions(_ context.Context, roleID int64, codes []rbac.Permission) error {
	s.replaced[roleID] = codes
	for name, role := range s.roles {
		if role.ID == roleID {
			role.Permissions = codes
			s.roles[name] = role
		}
	}
	return nil
}
func (s *driftStore) ActorExists(context.Context, int64) (bool, error)  { return false, nil }
func (s *driftStore) AddMembership(context.Context, int64, int64) error { return nil }
func (s *driftStore) RemoveMembership(context.Context, int64, int64) error {
	return nil
}
func (s *driftStore) ActorPermissions(context.Context, int64) ([]rbac.Permission, error) {
	return nil, nil
}
func (s *driftStore) ActorRoles(context.Context, int64) ([]rbac.Role, error) { return nil, nil }

func verifyTask(t *testing.T, payload RolesVerifyPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskRolesVerify, data)
}

func TestRolesVerifyDetectsDriftWithoutConverging(t *testing.T) {
	store := newDriftStore()
	job := NewRolesVerifyJob(rbac.NewService(store, nil), nil, nil)

	err := job.Handle(context.Background(), verifyTask(t, RolesVerifyPayload{}))
	require.NoError(t, err)
	assert.Empty(t, store.replaced, "verification alone must not mutate roles")
}

func TestRolesVerifyConverges(t *testing.T) {
	store := newDriftStore()
	job := NewRolesVerifyJob(rbac.NewService(store, nil), nil, nil)

	err := job.Handle(context.Background(), verifyTask(t, RolesVerifyPayload{Converge: true}))
	require.NoError(t, err)

	viewers := store.roles[rbac.RoleViewers]
	assert.Equal(t, rbac.DefaultRolePermissions(rbac.RoleViewers), viewers.Permissions)
}

func TestRolesVerifyRejectsMalformedPayload(t *testing.T) {
	store := newDriftStore()
	job := NewRolesVerifyJob(rbac.NewService(store, nil), nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskRolesVerify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Service implements the assignment operations: seeding the catalog and
// default roles, managing actor-role memberships, and computing
// effective permission sets.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a Service backed by the provided store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// EnsureCatalog upserts the six catalog permissions. Re-running never
// duplicates entries or errors.
func (s *Service) EnsureCatalog(ctx context.Context) error {
	for _, entry := range Catalog() {
		if err := s.store.UpsertPermission(ctx, entry.Code, entry.Label); err != nil {
			return fmt.Errorf("rbac: ensure permission %s: %w", entry.Code, err)
		}
	}
	return nil
}

// EnsureRoles creates each default role if missing, then replaces its
// permission set with exactly the canonical subset. Re-running converges
// drifted roles back to the documented matrix.
func (s *Service) EnsureRoles(ctx context.Context) error {
	for _, name := range DefaultRoleNames() {
		role, err := s.store.GetRoleByName(ctx, name)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("rbac: lookup role %s: %w", name, err)
			}
			role, err = s.store.CreateRole(ctx, name, roleDescriptions[name])
			if err != nil {
				return fmt.Errorf("rbac: create role %s: %w", name, err)
			}
		}
		if err := s.store.ReplaceRolePermissions(ctx, role.ID, DefaultRolePermissions(name)); err != nil {
			return fmt.Errorf("rbac: set permissions for %s: %w", name, err)
		}
	}
	return nil
}

// AssignRole adds the actor to the named role. Unknown actors or roles
// return ErrNotFound; an existing membership is a no-op.
func (s *Service) AssignRole(ctx context.Context, actorID int64, roleName string) error {
	role, err := s.requireActorAndRole(ctx, actorID, roleName)
	if err != nil {
		return err
	}
	return s.store.AddMembership(ctx, actorID, role.ID)
}

// RemoveRole removes the actor from the named role. An absent
// membership is a no-op.
func (s *Service) RemoveRole(ctx context.Context, actorID int64, roleName string) error {
	role, err := s.requireActorAndRole(ctx, actorID, roleName)
	if err != nil {
		return err
	}
	return s.store.RemoveMembership(ctx, actorID, role.ID)
}

// EffectivePermissions returns the union of permissions across the
// actor's current role memberships, recomputed on every call.
func (s *Service) EffectivePermissions(ctx context.Context, actorID int64) (PermissionSet, error) {
	ok, err := s.store.ActorExists(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	perms, err := s.store.ActorPermissions(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(perms...), nil
}

// ActorRoles returns the roles the actor currently belongs to.
func (s *Service) ActorRoles(ctx context.Context, actorID int64) ([]Role, error) {
	ok, err := s.store.ActorExists(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.ActorRoles(ctx, actorID)
}

// ListRoles returns all roles with their permission sets.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches one role by name.
func (s *Service) GetRole(ctx context.Context, name string) (Role, error) {
	return s.store.GetRoleByName(ctx, name)
}

// ListCatalog returns the stored permission catalog.
func (s *Service) ListCatalog(ctx context.Context) ([]PermissionRecord, error) {
	return s.store.ListPermissions(ctx)
}

// SetRolePermissions replaces the named role's permission set. Codes
// outside the catalog are rejected with ErrUnknownPermission before any
// write happens; the replacement itself is atomic per role.
func (s *Service) SetRolePermissions(ctx context.Context, roleName string, codes []Permission) error {
	for _, code := range codes {
		if !InCatalog(code) {
			return fmt.Errorf("rbac: %s: %w", code, ErrUnknownPermission)
		}
	}
	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	return s.store.ReplaceRolePermissions(ctx, role.ID, codes)
}

// Drift describes how a default role's stored permissions differ from
// the canonical matrix.
type Drift struct {
	Role    string
	Missing []Permission
	Extra   []Permission
}

// VerifyRoles compares each default role against the canonical matrix
// and returns the differences. Drift is reported as warnings only;
// EnsureRoles converges it.
func (s *Service) VerifyRoles(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	for _, name := range DefaultRoleNames() {
		want := NewPermissionSet(DefaultRolePermissions(name)...)
		role, err := s.store.GetRoleByName(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				drifts = append(drifts, Drift{Role: name, Missing: want.Sorted()})
				continue
			}
			return nil, err
		}
		got := NewPermissionSet(role.Permissions...)
		drift := Drift{Role: name}
		for _, p := range want.Sorted() {
			if !got.Has(p) {
				drift.Missing = append(drift.Missing, p)
			}
		}
		for _, p := range got.Sorted() {
			if !want.Has(p) {
				drift.Extra = append(drift.Extra, p)
			}
		}
		if len(drift.Missing) > 0 || len(drift.Extra) > 0 {
			s.logger.Warn("role permissions drifted",
				slog.String("role", name),
				slog.Int("missing", len(drift.Missing)),
				slog.Int("extra", len(drift.Extra)))
			drifts = append(drifts, drift)
		}
	}
	return drifts, nil
}

func (s *Service) requireActorAndRole(ctx context.Context, actorID int64, roleName string) (Role, error) {
	ok, err := s.store.ActorExists(ctx, actorID)
	if err != nil {
		return Role{}, err
	}
	if !ok {
		return Role{}, fmt.Errorf("rbac: actor %d: %w", actorID, ErrNotFound)
	}
	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Role{}, fmt.Errorf("rbac: role %s: %w", roleName, ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libris-app/libris/internal/platform/db"
	"github.com/libris-app/libris/internal/shared"
)

// Store defines the persistence operations the service relies on.
type Store interface {
	UpsertPermission(ctx context.Context, code Permission, label string) error
	ListPermissions(ctx context.Context) ([]PermissionRecord, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, codes []Permission) error
	ActorExists(ctx context.Context, actorID int64) (bool, error)
	AddMembership(ctx context.Context, actorID, roleID int64) error
	RemoveMembership(ctx context.Context, actorID, roleID int64) error
	ActorPermissions(ctx context.Context, actorID int64) ([]Permission, error)
	ActorRoles(ctx context.Context, actorID int64) ([]Role, error)
}

// PGStore provides PostgreSQL backed persistence.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// UpsertPermission inserts a catalog entry, updating the label if the
// code is already present.
func (s *PGStore) UpsertPermission(ctx context.Context, code Permission, label string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO permissions (code, label) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET label = EXCLUDED.label`,
		string(code), label)
	if err != nil && shared.IsUniqueViolation(err) {
		// A concurrent setup run won the insert race; converged either way.
		return nil
	}
	return err
}

// ListPermissions returns the stored catalog ordered by code.
func (s *PGStore) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, label FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []PermissionRecord
	for rows.Next() {
		var rec PermissionRecord
		var code string
		if err := rows.Scan(&rec.ID, &code, &rec.Label); err != nil {
			return nil, err
		}
		rec.Code = Permission(code)
		perms = append(perms, rec)
	}
	return perms, rows.Err()
}

// GetRoleByName fetches a role and its permission set.
func (s *PGStore) GetRoleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles WHERE name = $1`,
		name).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	perms, err := s.rolePermissions(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// ListRoles returns all roles with their permission sets, ordered by name.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := s.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

// CreateRole inserts a new role. A concurrent create of the same name
// resolves to the existing row.
func (s *PGStore) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description) VALUES ($1, $2)
		RETURNING id, name, description, created_at, updated_at`,
		name, description).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return s.GetRoleByName(ctx, name)
		}
		return Role{}, err
	}
	return role, nil
}

// ReplaceRolePermissions swaps a role's permission set for the given
// codes inside one transaction, so readers never observe a partially
// applied set.
func (s *PGStore) ReplaceRolePermissions(ctx context.Context, roleID int64, codes []Permission) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, code := range codes {
			tag, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				SELECT $1, id FROM permissions WHERE code = $2
				ON CONFLICT DO NOTHING`,
				roleID, string(code))
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrUnknownPermission
			}
		}
		return nil
	})
}

// ActorExists reports whether the user row exists.
func (s *PGStore) ActorExists(ctx context.Context, actorID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, actorID).Scan(&exists)
	return exists, err
}

// AddMembership records the actor-role association; already present is
// a no-op.
func (s *PGStore) AddMembership(ctx context.Context, actorID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, actorID, roleID)
	return err
}

// RemoveMembership deletes the association; absent is a no-op.
func (s *PGStore) RemoveMembership(ctx context.Context, actorID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, actorID, roleID)
	return err
}

// ActorPermissions returns the deduplicated union of permission codes
// across the actor's role memberships.
func (s *PGStore) ActorPermissions(ctx context.Context, actorID int64) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.code`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		perms = append(perms, Permission(code))
	}
	return perms, rows.Err()
}

// ActorRoles returns the roles the actor belongs to, ordered by name.
func (s *PGStore) ActorRoles(ctx context.Context, actorID int64) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := s.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s *PGStore) rolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		perms = append(perms, Permission(code))
	}
	return perms, rows.Err()
}

var _ Store = (*PGStore)(nil)

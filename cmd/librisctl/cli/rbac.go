// Package cli implements the operational helpers behind librisctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/libris-app/libris/internal/rbac"
)

// RBACCLI wraps role and membership management for operators.
type RBACCLI struct {
	service *rbac.Service
	out     io.Writer
}

// NewRBACCLI constructs the helper around an rbac.Service.
func NewRBACCLI(service *rbac.Service, out io.Writer) *RBACCLI {
	return &RBACCLI{service: service, out: out}
}

// Seed converges the permission catalog and the default roles.
func (c *RBACCLI) Seed(ctx context.Context) error {
	if err := c.service.EnsureCatalog(ctx); err != nil {
		return fmt.Errorf("ensure catalog: %w", err)
	}
	if err := c.service.EnsureRoles(ctx); err != nil {
		return fmt.Errorf("ensure roles: %w", err)
	}
	fmt.Fprintln(c.out, "catalog and default roles seeded")
	return nil
}

// AssignRole adds the user to the named role.
func (c *RBACCLI) AssignRole(ctx context.Context, userID int64, role string) error {
	if err := c.service.AssignRole(ctx, userID, role); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "assigned %s to user %d\n", role, userID)
	return nil
}

// RemoveRole removes the user from the named role.
func (c *RBACCLI) RemoveRole(ctx context.Context, userID int64, role string) error {
	if err := c.service.RemoveRole(ctx, userID, role); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed %s from user %d\n", role, userID)
	return nil
}

// Grants prints the user's effective permissions, one per line.
func (c *RBACCLI) Grants(ctx context.Context, userID int64) error {
	set, err := c.service.EffectivePermissions(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return fmt.Errorf("user %d not found", userID)
		}
		return err
	}
	perms := set.Sorted()
	if len(perms) == 0 {
		fmt.Fprintf(c.out, "user %d holds no permissions\n", userID)
		return nil
	}
	for _, p := range perms {
		fmt.Fprintln(c.out, string(p))
	}
	return nil
}

// Roles prints each role with its grants.
func (c *RBACCLI) Roles(ctx context.Context) error {
	list, err := c.service.ListRoles(ctx)
	if err != nil {
		return err
	}
	for _, role := range list {
		fmt.Fprintf(c.out, "%s:", role.Name)
		for _, p := range role.Permissions {
			fmt.Fprintf(c.out, " %s", p)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

// Verify reports drift between the default roles and the canonical
// grants. With converge set, drifted roles are reset to their defaults.
func (c *RBACCLI) Verify(ctx context.Context, converge bool) error {
	drift, err := c.service.VerifyRoles(ctx)
	if err != nil {
		return err
	}
	if len(drift) == 0 {
		fmt.Fprintln(c.out, "all roles match their defaults")
		return nil
	}
	for _, d := range drift {
		fmt.Fprintf(c.out, "%s drifted: missing=%v extra=%v\n", d.Role, d.Missing, d.Extra)
	}
	if !converge {
		return nil
	}
	if err := c.service.EnsureRoles(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "roles converged to defaults")
	return nil
}

// Package rbac implements the permission catalog, role registry, and the
// enforcement gate protected handlers consult before executing.
package rbac

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound indicates an unknown actor or role reference.
	ErrNotFound = errors.New("rbac: not found")
	// ErrUnknownPermission indicates a code outside the fixed catalog.
	ErrUnknownPermission = errors.New("rbac: permission not in catalog")
)

// Permission is the unique code of a single gated capability. Codes are
// never reassigned to a different meaning.
type Permission string

func (p Permission) String() string { return string(p) }

// PermissionRecord is a stored catalog entry.
type PermissionRecord struct {
	ID    int64
	Code  Permission
	Label string
}

// Role aggregates a named, administratively editable set of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Actor is the identity the gate evaluates. The zero value is an
// anonymous (unauthenticated) actor.
type Actor struct {
	ID            int64
	Username      string
	Superuser     bool
	Authenticated bool
}

// PermissionSet holds an actor's effective permissions, the union of the
// permissions of all roles the actor belongs to.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given codes.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the set's codes in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sortPermissions(out)
	return out
}

// DenyReason classifies why the gate refused an operation.
type DenyReason string

const (
	// ReasonAuthenticationRequired marks requests with no authenticated
	// actor; callers redirect to login.
	ReasonAuthenticationRequired DenyReason = "authentication required"
	// ReasonForbidden marks authenticated actors lacking the required
	// permission; callers render a forbidden outcome.
	ReasonForbidden DenyReason = "forbidden"
)

// Decision is the classified outcome of an authorization check. It is a
// result, never an error: enforcement failures do not escape as faults.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow returns a permitting decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a refusing decision carrying its reason.
func Deny(reason DenyReason) Decision { return Decision{Reason: reason} }

func sortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
}

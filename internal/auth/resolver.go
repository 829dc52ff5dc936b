package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/shared"
)

// Resolver turns the request session into the rbac.Actor the gate
// evaluates. Requests without a signed-in user resolve to the zero
// (anonymous) actor rather than an error.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Current resolves the actor for the request context.
func (r *Resolver) Current(ctx context.Context) (rbac.Actor, error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return rbac.Actor{}, nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return rbac.Actor{}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return rbac.Actor{}, nil
	}
	user, err := r.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Actor{}, nil
		}
		return rbac.Actor{}, err
	}
	if !user.IsActive {
		return rbac.Actor{}, nil
	}
	return rbac.Actor{
		ID:            user.ID,
		Username:      user.Username,
		Superuser:     user.IsSuperuser,
		Authenticated: true,
	}, nil
}

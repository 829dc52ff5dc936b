package rbac

import (
	"context"
	"errors"
	"log/slog"
)

// PermissionSource resolves an actor's effective permission set.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, actorID int64) (PermissionSet, error)
}

// DecisionObserver records gate outcomes, typically a Prometheus counter.
type DecisionObserver interface {
	ObserveAuthzDecision(allowed bool, reason string)
}

// Gate is the enforcement point protected handlers call as an explicit
// guard clause before executing. It never implies permissions: holding
// can_edit_book says nothing about can_view_book.
type Gate struct {
	perms    PermissionSource
	logger   *slog.Logger
	observer DecisionObserver
}

// NewGate constructs a Gate. The observer may be nil.
func NewGate(perms PermissionSource, logger *slog.Logger, observer DecisionObserver) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{perms: perms, logger: logger, observer: observer}
}

// Authorize evaluates whether the actor holds the required permission.
// The outcome is a classified Decision; the error return is reserved
// for store failures, which callers surface as an internal error rather
// than a deny.
func (g *Gate) Authorize(ctx context.Context, actor Actor, required Permission) (Decision, error) {
	if !actor.Authenticated {
		return g.observe(Deny(ReasonAuthenticationRequired)), nil
	}
	granted, err := g.perms.EffectivePermissions(ctx, actor.ID)
	if err != nil {
		// A session can outlive its user row; treat that as an
		// unauthenticated request, not a fault.
		if errors.Is(err, ErrNotFound) {
			return g.observe(Deny(ReasonAuthenticationRequired)), nil
		}
		g.logger.Error("resolve effective permissions",
			slog.Int64("actor_id", actor.ID), slog.Any("error", err))
		return Decision{}, err
	}
	if !granted.Has(required) {
		return g.observe(Deny(ReasonForbidden)), nil
	}
	return g.observe(Allow()), nil
}

func (g *Gate) observe(d Decision) Decision {
	if g.observer != nil {
		g.observer.ObserveAuthzDecision(d.Allowed, string(d.Reason))
	}
	return d
}

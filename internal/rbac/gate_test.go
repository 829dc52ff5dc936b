package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/internal/rbac"
	_ "github.com/libris-app/libris/testing"
)

type decisionCounter struct {
	allowed int
	denied  map[string]int
}

func (c *decisionCounter) ObserveAuthzDecision(allowed bool, reason string) {
	if allowed {
		c.allowed++
		return
	}
	if c.denied == nil {
		c.denied = make(map[string]int)
	}
	c.denied[reason]++
}

func allCatalogPermissions() []rbac.Permission {
	entries := rbac.Catalog()
	out := make([]rbac.Permission, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Code)
	}
	return out
}

func TestGateDeniesAnonymousActorForEveryPermission(t *testing.T) {
	svc, _ := seededService(t)
	counter := &decisionCounter{}
	gate := rbac.NewGate(svc, nil, counter)

	for _, p := range allCatalogPermissions() {
		decision, err := gate.Authorize(context.Background(), rbac.Actor{}, p)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		require.Equal(t, rbac.ReasonAuthenticationRequired, decision.Reason)
	}
	require.Equal(t, 6, counter.denied[string(rbac.ReasonAuthenticationRequired)])
}

func TestGateRolelessActorIsForbiddenNotUnauthenticated(t *testing.T) {
	svc, _ := seededService(t, 7)
	gate := rbac.NewGate(svc, nil, nil)
	actor := rbac.Actor{ID: 7, Username: "drifter", Authenticated: true}

	for _, p := range allCatalogPermissions() {
		decision, err := gate.Authorize(context.Background(), actor, p)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		require.Equal(t, rbac.ReasonForbidden, decision.Reason)
	}
}

func TestGateEditorScenario(t *testing.T) {
	svc, _ := seededService(t, 3)
	ctx := context.Background()
	require.NoError(t, svc.AssignRole(ctx, 3, rbac.RoleEditors))

	counter := &decisionCounter{}
	gate := rbac.NewGate(svc, nil, counter)
	editor := rbac.Actor{ID: 3, Username: "editor_test", Authenticated: true}

	decision, err := gate.Authorize(ctx, editor, rbac.PermEditBook)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = gate.Authorize(ctx, editor, rbac.PermDeleteBook)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, rbac.ReasonForbidden, decision.Reason)

	// No implication: publishing is its own permission even for editors.
	decision, err = gate.Authorize(ctx, editor, rbac.PermPublishBook)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	require.Equal(t, 1, counter.allowed)
	require.Equal(t, 2, counter.denied[string(rbac.ReasonForbidden)])
}

func TestGateStaleSessionActorTreatedAsUnauthenticated(t *testing.T) {
	svc, _ := seededService(t)
	gate := rbac.NewGate(svc, nil, nil)
	ghost := rbac.Actor{ID: 42, Authenticated: true}

	decision, err := gate.Authorize(context.Background(), ghost, rbac.PermViewBook)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, rbac.ReasonAuthenticationRequired, decision.Reason)
}

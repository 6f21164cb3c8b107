package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("issue: post: %w", InsufficientStock([]Shortage{{ItemID: 1, Requested: decimal.NewFromInt(5), Available: decimal.NewFromInt(2)}}))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.NotErrorIs(t, err, ErrAlreadyProcessed)
	require.Equal(t, KindConflict, KindOf(err))

	list := Shortages(err)
	require.Len(t, list, 1)
	require.True(t, list[0].Available.Equal(decimal.NewFromInt(2)))
}

func TestKindOfInfrastructureError(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(errors.New("connection reset")))
	require.Nil(t, Shortages(errors.New("boom")))
}

func TestRoleAuthorizer(t *testing.T) {
	authz := DefaultRoles()
	operator := Actor{ID: 1, Role: RoleOperator}
	supervisor := Actor{ID: 2, Role: RoleSupervisor}
	admin := Actor{ID: 3, Role: RoleAdmin}

	require.True(t, authz.Allowed(operator, PermIssuesPost))
	require.False(t, authz.Allowed(operator, PermApprovalDecide))
	require.True(t, authz.Allowed(supervisor, PermApprovalDecide))
	require.False(t, authz.Allowed(supervisor, PermPeriodsClose))
	require.True(t, authz.Allowed(admin, PermPeriodsClose))
	require.False(t, authz.Allowed(Actor{Role: RoleAdmin}, PermPeriodsClose))

	err := Require(authz, operator, PermApprovalDecide)
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Equal(t, KindPermission, KindOf(err))
}

func TestRound2(t *testing.T) {
	require.Equal(t, "2.35", Round2(decimal.RequireFromString("2.345")).StringFixed(2))
	require.Equal(t, "-2.35", Round2(decimal.RequireFromString("-2.345")).StringFixed(2))
}

package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/congregate/backend/internal/models"
)

type countingLookup struct {
	calls  int
	got    []uuid.UUID
	admins map[uuid.UUID]bool
	err    error
}

func (l *countingLookup) AdminServiceIDs(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	l.calls++
	l.got = ids
	if l.err != nil {
		return nil, l.err
	}
	out := map[uuid.UUID]bool{}
	for _, id := range ids {
		if l.admins[id] {
			out[id] = true
		}
	}
	return out, nil
}

func TestOwnerSkipsLookup(t *testing.T) {
	l := &countingLookup{}
	c := NewChecker(l)
	a, b := uuid.New(), uuid.New()

	got, err := c.CanManageServices(context.Background(), models.TenantRoleOwner, uuid.New(), []uuid.UUID{a, b, a})
	require.NoError(t, err)
	require.Equal(t, map[uuid.UUID]bool{a: true, b: true}, got)
	require.Zero(t, l.calls)
}

func TestPlainMemberSeesNoControls(t *testing.T) {
	l := &countingLookup{admins: map[uuid.UUID]bool{}}
	c := NewChecker(l)
	service := uuid.New()
	rows := []uuid.UUID{service, service, service}

	got, err := c.CanManageServices(context.Background(), models.TenantRoleMember, uuid.New(), rows)
	require.NoError(t, err)
	for _, id := range rows {
		require.False(t, got[id])
	}
	require.Equal(t, 1, l.calls)
	require.Equal(t, []uuid.UUID{service}, l.got)
}

func TestServiceAdminGetsOnlyTheirServices(t *testing.T) {
	mine, other := uuid.New(), uuid.New()
	l := &countingLookup{admins: map[uuid.UUID]bool{mine: true}}
	c := NewChecker(l)

	got, err := c.CanManageServices(context.Background(), models.TenantRoleAdmin, uuid.New(), []uuid.UUID{mine, other})
	require.NoError(t, err)
	require.True(t, got[mine])
	require.False(t, got[other])
	require.Equal(t, 1, l.calls)

	ok, err := c.CanManageService(context.Background(), models.TenantRoleMember, uuid.New(), mine)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEmptyPageAndLookupError(t *testing.T) {
	l := &countingLookup{}
	c := NewChecker(l)
	got, err := c.CanManageServices(context.Background(), models.TenantRoleMember, uuid.New(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, l.calls)

	l.err = errors.New("db down")
	_, err = c.CanManageService(context.Background(), models.TenantRoleMember, uuid.New(), uuid.New())
	require.Error(t, err)
}

func TestRoleRules(t *testing.T) {
	require.True(t, CanCreateService(models.TenantRoleOwner))
	require.False(t, CanCreateService(models.TenantRoleAdmin))
	require.True(t, CanManageTenantData(models.TenantRoleAdmin))
	require.False(t, CanManageTenantData(models.TenantRoleMember))
}

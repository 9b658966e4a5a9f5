package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

var allRoles = []id.Role{id.RoleAdmin, id.RoleLandOfficer, id.RoleCitizen, id.RoleNotary}

func TestCanListAll_MatchesCanMutatePrivileged(t *testing.T) {
	for _, role := range allRoles {
		privileged := role == id.RoleAdmin || role == id.RoleLandOfficer
		assert.Equal(t, privileged, CanListAll(role), role)
		assert.Equal(t, privileged, CanMutatePrivileged(role), role)
	}
	assert.False(t, CanListAll(id.Role("")))
}

func TestCanViewOwn(t *testing.T) {
	me, other := id.NewUserID(), id.NewUserID()

	assert.True(t, CanViewOwn(me, me))
	assert.True(t, CanViewOwn(me, other, me))
	assert.False(t, CanViewOwn(me, other))
	assert.False(t, CanViewOwn(me))
	assert.False(t, CanViewOwn(id.UserID{}, id.UserID{}), "nil identity owns nothing")
}

func TestCanView(t *testing.T) {
	owner := id.NewUserID()
	citizen := id.Actor{UserID: id.NewUserID(), Role: id.RoleCitizen}
	officer := id.Actor{UserID: id.NewUserID(), Role: id.RoleLandOfficer}

	assert.True(t, CanView(id.Actor{UserID: owner, Role: id.RoleNotary}, owner))
	assert.False(t, CanView(citizen, owner))
	assert.True(t, CanView(officer, owner))
	assert.False(t, CanView(id.Anonymous, owner))
}

func TestRequirePrivileged(t *testing.T) {
	err := RequirePrivileged(id.Anonymous)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	err = RequirePrivileged(id.Actor{UserID: id.NewUserID(), Role: id.RoleCitizen})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	require.NoError(t, RequirePrivileged(id.Actor{UserID: id.NewUserID(), Role: id.RoleAdmin}))
}

func TestVisibleOwners(t *testing.T) {
	citizen := id.Actor{UserID: id.NewUserID(), Role: id.RoleCitizen}
	assert.Equal(t, []id.UserID{citizen.UserID}, VisibleOwners(citizen))
	assert.Nil(t, VisibleOwners(id.Actor{UserID: id.NewUserID(), Role: id.RoleAdmin}))
}

func TestOneWay_Apply(t *testing.T) {
	verify := OneWay[string]{Name: "verify parcel", From: "PENDING", To: "ACTIVE"}
	officer := id.Actor{UserID: id.NewUserID(), Role: id.RoleLandOfficer}
	citizen := id.Actor{UserID: id.NewUserID(), Role: id.RoleCitizen}

	t.Run("privileged actor flips From to To", func(t *testing.T) {
		next, changed, err := verify.Apply(officer, "PENDING")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "ACTIVE", next)
	})

	t.Run("already at To is a no-op", func(t *testing.T) {
		next, changed, err := verify.Apply(officer, "ACTIVE")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, "ACTIVE", next)
	})

	t.Run("other states are invalid", func(t *testing.T) {
		next, changed, err := verify.Apply(officer, "DISPUTED")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.False(t, changed)
		assert.Equal(t, "DISPUTED", next)
	})

	t.Run("unprivileged actor is refused before state is considered", func(t *testing.T) {
		for _, state := range []string{"PENDING", "ACTIVE", "DISPUTED"} {
			next, changed, err := verify.Apply(citizen, state)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
			assert.False(t, changed)
			assert.Equal(t, state, next)
		}
	})

	t.Run("boolean flag", func(t *testing.T) {
		flag := OneWay[bool]{Name: "verify user", From: false, To: true}
		next, changed, err := flag.Apply(officer, false)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, next)

		_, changed, err = flag.Apply(officer, true)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

package admission_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-admission"
	"github.com/stretchr/testify/assert"
)

func TestUserEmailVerification(t *testing.T) {
	user := &admission.User{}
	assert.False(t, user.IsEmailVerified())

	user.MarkEmailVerified(time.Now())
	assert.True(t, user.IsEmailVerified())

	// re-stamping keeps the user verified
	user.MarkEmailVerified(time.Now().Add(time.Hour))
	assert.True(t, user.IsEmailVerified())

	var nilUser *admission.User
	assert.False(t, nilUser.IsEmailVerified())
}

func TestUserRoleIsValid(t *testing.T) {
	assert.True(t, admission.RoleUser.IsValid())
	assert.True(t, admission.RoleAdmin.IsValid())
	assert.False(t, admission.UserRole("superuser").IsValid())
	assert.False(t, admission.UserRole("").IsValid())
}

func TestUserRoleIsAtLeast(t *testing.T) {
	assert.True(t, admission.RoleAdmin.IsAtLeast(admission.RoleUser))
	assert.True(t, admission.RoleAdmin.IsAtLeast(admission.RoleAdmin))
	assert.True(t, admission.RoleUser.IsAtLeast(admission.RoleUser))
	assert.False(t, admission.RoleUser.IsAtLeast(admission.RoleAdmin))
	assert.False(t, admission.UserRole("unknown").IsAtLeast(admission.RoleUser))
	assert.False(t, admission.RoleAdmin.IsAtLeast(admission.UserRole("unknown")))
}

func TestParseRole(t *testing.T) {
	role, ok := admission.ParseRole("ADMIN")
	assert.True(t, ok)
	assert.Equal(t, admission.RoleAdmin, role)

	_, ok = admission.ParseRole("bogus")
	assert.False(t, ok)
}

func TestGetAllRoles(t *testing.T) {
	roles := admission.GetAllRoles()
	assert.Equal(t, []admission.UserRole{admission.RoleUser, admission.RoleAdmin}, roles)
}

package models

import (
	"testing"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/stretchr/testify/assert"
)

func TestUserPrincipal(t *testing.T) {
	cases := []struct {
		name string
		user User
		want access.Principal
	}{
		{"pending admin", User{ID: "a", Role: RoleAdmin, Approval: approval.Pending}, access.Principal{ID: "a", Role: access.Admin}},
		{"approved admin", User{ID: "b", Role: RoleAdmin, Approval: approval.Approved}, access.Principal{ID: "b", Role: access.Admin, Approved: true}},
		{"rejected admin", User{ID: "c", Role: RoleAdmin, Approval: approval.Rejected}, access.Principal{ID: "c", Role: access.Admin}},
		{"super admin", User{ID: "d", Role: RoleSuperAdmin}, access.Principal{ID: "d", Role: access.SuperAdmin, Approved: true}},
		{"regular user", User{ID: "e", Role: RoleUser}, access.Principal{ID: "e", Role: access.RegularUser, Approved: true}},
		{"corrupt role", User{ID: "f", Role: "root"}, access.AnonymousPrincipal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.user.Principal())
		})
	}
}

func TestUserToResponse(t *testing.T) {
	u := User{ID: "x", Email: "a@x.com", PasswordHash: "secret", Role: RoleSuperAdmin, Approval: approval.Approved}
	r := u.ToResponse()
	assert.True(t, r.IsAdmin)
	assert.True(t, r.IsSuperAdmin)
	assert.True(t, r.IsApproved)
	assert.Equal(t, "a@x.com", r.Email)
}

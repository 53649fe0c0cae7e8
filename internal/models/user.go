package models

import (
	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"passwordHash,omitempty"`
	Name         string         `json:"name"`
	Role         string         `json:"role"`
	Approval     approval.State `json:"approval"`
	OwnerID      string         `json:"ownerId,omitempty"`
	CreatedAt    string         `json:"createdAt"`
	UpdatedAt    string         `json:"updatedAt"`
}

func (u *User) IsAdmin() bool      { return u.Role == RoleAdmin || u.Role == RoleSuperAdmin }
func (u *User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }

// IsApproved is true for super admins, approved admins and regular users,
// which are exempt from approval.
func (u *User) IsApproved() bool {
	return u.Role == RoleSuperAdmin || u.Role == RoleUser || u.Approval == approval.Approved
}

// Principal is the access-control view of the user.
func (u *User) Principal() access.Principal {
	role, err := access.ParseRole(u.Role)
	if err != nil {
		return access.AnonymousPrincipal
	}
	return access.Principal{ID: u.ID, Role: role, Approved: u.IsApproved()}
}

type UserResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Name         string         `json:"name"`
	Role         string         `json:"role"`
	Approval     approval.State `json:"approval"`
	IsAdmin      bool           `json:"isAdmin"`
	IsSuperAdmin bool           `json:"isSuperAdmin"`
	IsApproved   bool           `json:"isApproved"`
	OwnerID      string         `json:"ownerId,omitempty"`
	CreatedAt    string         `json:"createdAt"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         u.Role,
		Approval:     u.Approval,
		IsAdmin:      u.IsAdmin(),
		IsSuperAdmin: u.IsSuperAdmin(),
		IsApproved:   u.IsApproved(),
		OwnerID:      u.OwnerID,
		CreatedAt:    u.CreatedAt,
	}
}

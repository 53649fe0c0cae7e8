package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

// UserService manages accounts. Admins manage the regular users they own;
// the super admin manages everyone.
type UserService struct {
	base
	cost int
}

func NewUserService(store repository.Store, bcryptCost int, timeout time.Duration, log logger.Logger) *UserService {
	return &UserService{base: newBase(store, timeout, log), cost: bcryptCost}
}

type CreateUserInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name"  validate:"max=120"`
	// Role defaults to a regular user. Only the super admin may create
	// admins, which start approved.
	Role     string `json:"role"     validate:"omitempty,oneof=user admin"`
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
}

type UpdateUserInput struct {
	Email    *string `json:"email"    validate:"omitempty,email,max=254"`
	Name     *string `json:"name"     validate:"omitempty,max=120"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

// userResource makes an account without an owner its own owner, so admins
// can reach their own account but not another admin's.
func userResource(u *models.User) access.Resource {
	owner := u.OwnerID
	if owner == "" {
		owner = u.ID
	}
	return access.Owned("user", u.ID, owner)
}

func (s *UserService) List(ctx context.Context, p access.Principal) ([]*models.User, error) {
	if err := access.Check(p, access.UserList, access.Scope("user")); err != nil {
		return nil, err
	}
	filter := repository.UserFilter{OwnerID: p.ID}
	if p.Role == access.SuperAdmin {
		filter = repository.UserFilter{}
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	users, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	return users, nil
}

func (s *UserService) load(ctx context.Context, p access.Principal, a access.Action, id string) (*models.User, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if err := access.Check(p, a, userResource(user)); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, p access.Principal, id string) (*models.User, error) {
	return s.load(ctx, p, access.UserRead, id)
}

func (s *UserService) Create(ctx context.Context, p access.Principal, in CreateUserInput) (*models.User, error) {
	if err := access.Check(p, access.UserCreate, access.Scope("user")); err != nil {
		return nil, err
	}
	if err := checkInput(in); err != nil {
		return nil, err
	}
	role := models.RoleUser
	owner := p.ID
	if in.Role == models.RoleAdmin {
		if p.Role != access.SuperAdmin {
			return nil, access.Decision{Reason: access.ReasonUnauthorized}.Err()
		}
		if in.Password == "" {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "admins need a password").
				With("fields", map[string]string{"password": "required"})
		}
		role, owner = models.RoleAdmin, ""
	}
	now := s.timestamp()
	user := &models.User{
		ID:        newID(),
		Email:     normalizeEmail(in.Email),
		Name:      in.Name,
		Role:      role,
		Approval:  approval.Approved,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password, s.cost)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, apperr.CodeInternal, err, "hash password")
		}
		user.PasswordHash = hash
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, emailTaken(user.Email)
		}
		return nil, storeErr(err, "user")
	}
	return user, nil
}

func (s *UserService) Update(ctx context.Context, p access.Principal, id string, in UpdateUserInput) (*models.User, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	user, err := s.load(ctx, p, access.UserUpdate, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		user.Email = normalizeEmail(*in.Email)
	}
	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password, s.cost)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, apperr.CodeInternal, err, "hash password")
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.timestamp()
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, emailTaken(user.Email)
		}
		return nil, storeErr(err, "user")
	}
	return user, nil
}

// Delete removes an account. Accounts that still own forms must hand them
// over or delete them first, and the super admin account cannot be deleted.
func (s *UserService) Delete(ctx context.Context, p access.Principal, id string) error {
	user, err := s.load(ctx, p, access.UserDelete, id)
	if err != nil {
		return err
	}
	if user.IsSuperAdmin() {
		return apperr.Forbidden(apperr.CodeUnauthorized, "the super admin account cannot be deleted")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return storeErr(s.store.WithTx(ctx, func(tx repository.Repos) error {
		n, err := tx.CountForms(ctx, user.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict(apperr.CodeUserHasForms,
				fmt.Sprintf("user still owns %d forms", n)).With("forms", n)
		}
		return tx.DeleteUser(ctx, user.ID)
	}), "user")
}

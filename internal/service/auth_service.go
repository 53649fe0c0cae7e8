package service

import (
	"context"
	"errors"
	"time"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

type AuthService struct {
	base
	tokens *auth.Tokens
	cost   int
}

func NewAuthService(store repository.Store, tokens *auth.Tokens, bcryptCost int, timeout time.Duration, log logger.Logger) *AuthService {
	return &AuthService{base: newBase(store, timeout, log), tokens: tokens, cost: bcryptCost}
}

type RegisterInput struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name"     validate:"max=120"`
}

type AuthResult struct {
	Token string              `json:"token"`
	User  models.UserResponse `json:"user"`
}

// Register creates a pending admin. No token is issued until a super admin
// approves the account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.UserResponse, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, apperr.CodeInternal, err, "hash password")
	}
	now := s.timestamp()
	user := &models.User{
		ID:           newID(),
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		Name:         in.Name,
		Role:         models.RoleAdmin,
		Approval:     approval.Pending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, emailTaken(user.Email)
		}
		return nil, storeErr(err, "user")
	}
	s.log.Info("auth: admin registered", "user_id", user.ID)
	resp := user.ToResponse()
	return &resp, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	bctx, cancel := s.bounded(ctx)
	defer cancel()
	user, err := s.store.GetUserByEmail(bctx, normalizeEmail(email))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, invalidCredentials()
	case err != nil:
		return nil, storeErr(err, "user")
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, invalidCredentials()
	}
	if user.Role == models.RoleAdmin {
		if err := approval.LoginError(user.Approval); err != nil {
			return nil, err
		}
	}
	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, apperr.CodeInternal, err, "issue token")
	}
	return &AuthResult{Token: token, User: user.ToResponse()}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserResponse, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	resp := user.ToResponse()
	return &resp, nil
}

// SeedSuperAdmin creates the configured super admin when the email is free.
// It reports whether an account was created.
func (s *AuthService) SeedSuperAdmin(ctx context.Context, email, password string) (bool, error) {
	email = normalizeEmail(email)
	bctx, cancel := s.bounded(ctx)
	existing, err := s.store.GetUserByEmail(bctx, email)
	cancel()
	switch {
	case err == nil && existing.IsSuperAdmin():
		return false, nil
	case err == nil:
		return false, emailTaken(email)
	case !errors.Is(err, repository.ErrNotFound):
		return false, storeErr(err, "user")
	}
	hash, err := auth.HashPassword(password, s.cost)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, apperr.CodeInternal, err, "hash password")
	}
	now := s.timestamp()
	user := &models.User{
		ID:           newID(),
		Email:        email,
		PasswordHash: hash,
		Name:         "Super Admin",
		Role:         models.RoleSuperAdmin,
		Approval:     approval.Approved,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	bctx, cancel = s.bounded(ctx)
	defer cancel()
	if err := s.store.CreateUser(bctx, user); err != nil {
		return false, storeErr(err, "user")
	}
	s.log.Info("auth: super admin seeded", "user_id", user.ID, "email", email)
	return true, nil
}

func invalidCredentials() error {
	return apperr.New(apperr.KindAuthorization, apperr.CodeInvalidCredentials, "invalid email or password")
}

func emailTaken(email string) error {
	return apperr.Conflict(apperr.CodeEmailTaken, "email already registered").With("email", email)
}

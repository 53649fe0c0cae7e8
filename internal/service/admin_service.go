package service

import (
	"context"
	"time"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

// ApprovalRecorder counts approval transitions; *metrics.Metrics is one.
type ApprovalRecorder interface {
	ObserveApproval(state string)
}

// AdminService is the super admin's approval queue.
type AdminService struct {
	base
	rec ApprovalRecorder
}

func NewAdminService(store repository.Store, rec ApprovalRecorder, timeout time.Duration, log logger.Logger) *AdminService {
	return &AdminService{base: newBase(store, timeout, log), rec: rec}
}

func (s *AdminService) ListPending(ctx context.Context, p access.Principal) ([]*models.User, error) {
	if err := access.Check(p, access.AdminListPending, access.Scope("user")); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	users, err := s.store.ListUsers(ctx, repository.UserFilter{Role: models.RoleAdmin, Approval: approval.Pending})
	if err != nil {
		return nil, storeErr(err, "user")
	}
	return users, nil
}

func (s *AdminService) Approve(ctx context.Context, p access.Principal, userID string) (*models.User, error) {
	return s.transition(ctx, p, access.AdminApprove, userID, approval.Approve)
}

func (s *AdminService) Reject(ctx context.Context, p access.Principal, userID string) (*models.User, error) {
	return s.transition(ctx, p, access.AdminReject, userID, approval.Reject)
}

func (s *AdminService) transition(ctx context.Context, p access.Principal, a access.Action, userID string, ev approval.Event) (*models.User, error) {
	if err := access.Check(p, a, access.Owned("user", userID, userID)); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if user.Role != models.RoleAdmin {
		return nil, apperr.NotFound("admin")
	}
	next, err := approval.Transition(user.Approval, ev)
	if err != nil {
		return nil, err
	}
	user.Approval = next
	user.UpdatedAt = s.timestamp()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, storeErr(err, "user")
	}
	if s.rec != nil {
		s.rec.ObserveApproval(string(next))
	}
	logger.FromContext(ctx).Info("admin: approval changed", "user_id", user.ID, "state", next, "by", p.ID)
	return user, nil
}

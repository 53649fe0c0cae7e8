package service

import (
	"context"
	"time"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

type DashboardService struct {
	base
}

func NewDashboardService(store repository.Store, timeout time.Duration, log logger.Logger) *DashboardService {
	return &DashboardService{base: newBase(store, timeout, log)}
}

type FormStats struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	PublicID        string `json:"publicId"`
	OwnerID         string `json:"ownerId"`
	FieldCount      int    `json:"fieldCount"`
	SubmissionCount int    `json:"submissionCount"`
	CreatedAt       string `json:"createdAt"`
}

type Dashboard struct {
	FormCount       int         `json:"formCount"`
	SubmissionCount int         `json:"submissionCount"`
	UserCount       int         `json:"userCount"`
	PendingAdmins   int         `json:"pendingAdmins,omitempty"`
	Forms           []FormStats `json:"forms"`
}

// Summary counts what the principal can see: its own forms and users, or
// everything for the super admin.
func (s *DashboardService) Summary(ctx context.Context, p access.Principal) (*Dashboard, error) {
	if err := access.Check(p, access.DashboardView, access.Scope("dashboard")); err != nil {
		return nil, err
	}
	super := p.Role == access.SuperAdmin
	owner, users := p.ID, repository.UserFilter{OwnerID: p.ID}
	if super {
		owner, users = "", repository.UserFilter{}
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()
	forms, err := s.store.ListForms(ctx, owner)
	if err != nil {
		return nil, storeErr(err, "form")
	}
	d := &Dashboard{FormCount: len(forms), Forms: make([]FormStats, 0, len(forms))}
	for _, f := range forms {
		n, err := s.store.CountSubmissions(ctx, f.ID)
		if err != nil {
			return nil, storeErr(err, "submission")
		}
		d.SubmissionCount += n
		d.Forms = append(d.Forms, FormStats{
			ID:              f.ID,
			Title:           f.Title,
			PublicID:        f.PublicID,
			OwnerID:         f.OwnerID,
			FieldCount:      f.FieldCount(),
			SubmissionCount: n,
			CreatedAt:       f.CreatedAt,
		})
	}
	all, err := s.store.ListUsers(ctx, users)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	d.UserCount = len(all)
	if super {
		for _, u := range all {
			if u.Role == models.RoleAdmin && u.Approval == approval.Pending {
				d.PendingAdmins++
			}
		}
	}
	return d, nil
}

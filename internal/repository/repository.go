// Package repository holds the persistence contracts shared by the store
// drivers in oxistore and sqlstore.
package repository

import (
	"context"
	"errors"

	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
)

var (
	ErrNotFound  = errors.New("repository: not found")
	ErrDuplicate = errors.New("repository: duplicate key")
)

// UserFilter narrows ListUsers. Zero fields match everything.
type UserFilter struct {
	Role     string
	Approval approval.State
	OwnerID  string
}

// SubmissionQuery selects one page of a form's submissions, newest first.
// Equals matches stored text values exactly. Limit 0 returns every match and
// Skip applies only together with a Limit.
type SubmissionQuery struct {
	FormID string
	Equals map[string]string
	Skip   int
	Limit  int
}

type Users interface {
	// CreateUser fails with ErrDuplicate when the email is taken.
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	// GetUserByEmail matches the lower-cased address.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error
}

type Forms interface {
	CreateForm(ctx context.Context, f *models.Form) error
	GetForm(ctx context.Context, id string) (*models.Form, error)
	GetFormByPublicID(ctx context.Context, publicID string) (*models.Form, error)
	// ListForms returns every form when ownerID is empty.
	ListForms(ctx context.Context, ownerID string) ([]*models.Form, error)
	CountForms(ctx context.Context, ownerID string) (int, error)
	UpdateForm(ctx context.Context, f *models.Form) error
	DeleteForm(ctx context.Context, id string) error
}

type Submissions interface {
	CreateSubmission(ctx context.Context, s *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	// ListSubmissions returns newest first.
	ListSubmissions(ctx context.Context, formID string) ([]*models.Submission, error)
	// FindSubmissions returns the requested page and the number of matches.
	FindSubmissions(ctx context.Context, q SubmissionQuery) ([]*models.Submission, int, error)
	CountSubmissions(ctx context.Context, formID string) (int, error)
	DeleteSubmission(ctx context.Context, id string) error
	DeleteSubmissionsByForm(ctx context.Context, formID string) error
}

// Repos is the full set of record operations, scoped either to the store or
// to one transaction.
type Repos interface {
	Users
	Forms
	Submissions
}

type Store interface {
	Repos
	// WithTx runs fn in one transaction. fn's error rolls everything back
	// and is returned unchanged.
	WithTx(ctx context.Context, fn func(tx Repos) error) error
	HealthCheck(ctx context.Context) error
	Close() error
}

package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Name         string `db:"name"`
	Role         string `db:"role"`
	Approval     string `db:"approval"`
	OwnerID      string `db:"owner_id"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r userRow) model() *models.User {
	return &models.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Name:         r.Name,
		Role:         r.Role,
		Approval:     approval.State(r.Approval),
		OwnerID:      r.OwnerID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

var userColumns = []string{
	"id", "email", "password_hash", "name", "role", "approval", "owner_id", "created_at", "updated_at",
}

func (r *repos) CreateUser(ctx context.Context, u *models.User) error {
	query, args, err := r.sq.Insert("users").
		Columns(userColumns...).
		Values(u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Name, u.Role, string(u.Approval), u.OwnerID, u.CreatedAt, u.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build insert user: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: create user: %w", classify(err))
	}
	return nil
}

func (r *repos) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, squirrel.Eq{"id": id})
}

func (r *repos) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, squirrel.Eq{"email": strings.ToLower(email)})
}

func (r *repos) getUser(ctx context.Context, where squirrel.Sqlizer) (*models.User, error) {
	query, args, err := r.sq.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build select user: %w", err)
	}
	var row userRow
	if err := sqlscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: get user: %w", err)
	}
	return row.model(), nil
}

func (r *repos) ListUsers(ctx context.Context, f repository.UserFilter) ([]*models.User, error) {
	where := squirrel.Eq{}
	if f.Role != "" {
		where["role"] = f.Role
	}
	if f.Approval != "" {
		where["approval"] = string(f.Approval)
	}
	if f.OwnerID != "" {
		where["owner_id"] = f.OwnerID
	}
	query, args, err := r.sq.Select(userColumns...).From("users").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build list users: %w", err)
	}
	var rows []userRow
	if err := sqlscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: list users: %w", err)
	}
	out := make([]*models.User, len(rows))
	for i, row := range rows {
		out[i] = row.model()
	}
	return out, nil
}

func (r *repos) UpdateUser(ctx context.Context, u *models.User) error {
	query, args, err := r.sq.Update("users").
		SetMap(map[string]any{
			"email":         strings.ToLower(u.Email),
			"password_hash": u.PasswordHash,
			"name":          u.Name,
			"role":          u.Role,
			"approval":      string(u.Approval),
			"owner_id":      u.OwnerID,
			"updated_at":    u.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": u.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build update user: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: update user: %w", classify(err))
	}
	return rowsAffected(res, "update user")
}

func (r *repos) DeleteUser(ctx context.Context, id string) error {
	query, args, err := r.sq.Delete("users").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build delete user: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: delete user: %w", err)
	}
	return rowsAffected(res, "delete user")
}

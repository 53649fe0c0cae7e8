package oxistore

import (
	"context"
	"fmt"
	"strings"

	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

const UsersCollection = "oxiforms_users"

func (r *repos) CreateUser(ctx context.Context, u *models.User) error {
	doc, err := toDoc(u)
	if err != nil {
		return fmt.Errorf("oxistore: encode user: %w", err)
	}
	if _, err := r.conn().Insert(ctx, UsersCollection, doc); err != nil {
		return classify("create user", err)
	}
	return nil
}

func (r *repos) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.findUser(ctx, byID(id))
}

func (r *repos) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findUser(ctx, map[string]any{"email": strings.ToLower(email)})
}

func (r *repos) findUser(ctx context.Context, query map[string]any) (*models.User, error) {
	doc, err := r.conn().FindOne(ctx, UsersCollection, query)
	if err != nil {
		return nil, classify("find user", err)
	}
	if doc == nil {
		return nil, repository.ErrNotFound
	}
	var u models.User
	if err := fromDoc(doc, &u); err != nil {
		return nil, fmt.Errorf("oxistore: decode user: %w", err)
	}
	return &u, nil
}

func (r *repos) ListUsers(ctx context.Context, f repository.UserFilter) ([]*models.User, error) {
	query := map[string]any{}
	if f.Role != "" {
		query["role"] = f.Role
	}
	if f.Approval != "" {
		query["approval"] = string(f.Approval)
	}
	if f.OwnerID != "" {
		query["ownerId"] = f.OwnerID
	}
	docs, err := r.conn().Find(ctx, UsersCollection, query, newestFirst)
	if err != nil {
		return nil, classify("list users", err)
	}
	users := make([]*models.User, 0, len(docs))
	for _, d := range docs {
		var u models.User
		if err := fromDoc(d, &u); err != nil {
			return nil, fmt.Errorf("oxistore: decode user: %w", err)
		}
		users = append(users, &u)
	}
	return users, nil
}

func (r *repos) UpdateUser(ctx context.Context, u *models.User) error {
	doc, err := toDoc(u)
	if err != nil {
		return fmt.Errorf("oxistore: encode user: %w", err)
	}
	res, err := r.conn().UpdateOne(ctx, UsersCollection, byID(u.ID), map[string]any{"$set": doc})
	if err != nil {
		return classify("update user", err)
	}
	if !affected(res, "modified") {
		return repository.ErrNotFound
	}
	return nil
}

func (r *repos) DeleteUser(ctx context.Context, id string) error {
	res, err := r.conn().DeleteOne(ctx, UsersCollection, byID(id))
	if err != nil {
		return classify("delete user", err)
	}
	if !affected(res, "deleted") {
		return repository.ErrNotFound
	}
	return nil
}

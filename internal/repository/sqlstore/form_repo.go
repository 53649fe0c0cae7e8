package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/schema"
)

type formRow struct {
	ID           string `db:"id"`
	OwnerID      string `db:"owner_id"`
	Title        string `db:"title"`
	Description  string `db:"description"`
	PublicID     string `db:"public_id"`
	ContactField string `db:"contact_field"`
	Fields       string `db:"fields"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r formRow) model() (*models.Form, error) {
	s := new(schema.Schema)
	if err := json.Unmarshal([]byte(r.Fields), s); err != nil {
		return nil, fmt.Errorf("sqlstore: decode fields of form %s: %w", r.ID, err)
	}
	return &models.Form{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Title:        r.Title,
		Description:  r.Description,
		PublicID:     r.PublicID,
		ContactField: r.ContactField,
		Schema:       s,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

var formColumns = []string{
	"id", "owner_id", "title", "description", "public_id", "contact_field", "fields", "created_at", "updated_at",
}

func encodeFields(f *models.Form) (string, error) {
	if f.Schema == nil {
		return "[]", nil
	}
	data, err := json.Marshal(f.Schema)
	if err != nil {
		return "", fmt.Errorf("sqlstore: encode fields: %w", err)
	}
	return string(data), nil
}

func (r *repos) CreateForm(ctx context.Context, f *models.Form) error {
	fields, err := encodeFields(f)
	if err != nil {
		return err
	}
	query, args, err := r.sq.Insert("forms").
		Columns(formColumns...).
		Values(f.ID, f.OwnerID, f.Title, f.Description, f.PublicID, f.ContactField, fields, f.CreatedAt, f.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build insert form: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: create form: %w", classify(err))
	}
	return nil
}

func (r *repos) GetForm(ctx context.Context, id string) (*models.Form, error) {
	return r.getForm(ctx, squirrel.Eq{"id": id})
}

func (r *repos) GetFormByPublicID(ctx context.Context, publicID string) (*models.Form, error) {
	return r.getForm(ctx, squirrel.Eq{"public_id": publicID})
}

func (r *repos) getForm(ctx context.Context, where squirrel.Sqlizer) (*models.Form, error) {
	query, args, err := r.sq.Select(formColumns...).From("forms").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build select form: %w", err)
	}
	var row formRow
	if err := sqlscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: get form: %w", err)
	}
	return row.model()
}

func ownerWhere(ownerID string) squirrel.Eq {
	if ownerID == "" {
		return squirrel.Eq{}
	}
	return squirrel.Eq{"owner_id": ownerID}
}

func (r *repos) ListForms(ctx context.Context, ownerID string) ([]*models.Form, error) {
	query, args, err := r.sq.Select(formColumns...).From("forms").
		Where(ownerWhere(ownerID)).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build list forms: %w", err)
	}
	var rows []formRow
	if err := sqlscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: list forms: %w", err)
	}
	out := make([]*models.Form, 0, len(rows))
	for _, row := range rows {
		f, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *repos) CountForms(ctx context.Context, ownerID string) (int, error) {
	query, args, err := r.sq.Select("COUNT(*)").From("forms").Where(ownerWhere(ownerID)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: build count forms: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: count forms: %w", err)
	}
	return n, nil
}

func (r *repos) UpdateForm(ctx context.Context, f *models.Form) error {
	fields, err := encodeFields(f)
	if err != nil {
		return err
	}
	query, args, err := r.sq.Update("forms").
		SetMap(map[string]any{
			"title":         f.Title,
			"description":   f.Description,
			"contact_field": f.ContactField,
			"fields":        fields,
			"updated_at":    f.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": f.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build update form: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: update form: %w", classify(err))
	}
	return rowsAffected(res, "update form")
}

func (r *repos) DeleteForm(ctx context.Context, id string) error {
	query, args, err := r.sq.Delete("forms").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build delete form: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: delete form: %w", err)
	}
	return rowsAffected(res, "delete form")
}

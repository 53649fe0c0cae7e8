package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/schema"
)

type submissionRow struct {
	ID          string `db:"id"`
	FormID      string `db:"form_id"`
	SubmitterID string `db:"submitter_id"`
	Data        string `db:"data"`
	CreatedAt   string `db:"created_at"`
}

func (r submissionRow) model() (*models.Submission, error) {
	var data schema.Values
	if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
		return nil, fmt.Errorf("sqlstore: decode data of submission %s: %w", r.ID, err)
	}
	return &models.Submission{
		ID:          r.ID,
		FormID:      r.FormID,
		SubmitterID: r.SubmitterID,
		Data:        data,
		CreatedAt:   r.CreatedAt,
	}, nil
}

var submissionColumns = []string{"id", "form_id", "submitter_id", "data", "created_at"}

func (r *repos) CreateSubmission(ctx context.Context, s *models.Submission) error {
	data, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("sqlstore: encode submission data: %w", err)
	}
	query, args, err := r.sq.Insert("submissions").
		Columns(submissionColumns...).
		Values(s.ID, s.FormID, s.SubmitterID, string(data), s.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build insert submission: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: create submission: %w", classify(err))
	}
	return nil
}

func (r *repos) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	query, args, err := r.sq.Select(submissionColumns...).From("submissions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build select submission: %w", err)
	}
	var row submissionRow
	if err := sqlscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: get submission: %w", err)
	}
	return row.model()
}

func (r *repos) ListSubmissions(ctx context.Context, formID string) ([]*models.Submission, error) {
	query, args, err := r.sq.Select(submissionColumns...).From("submissions").
		Where(squirrel.Eq{"form_id": formID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build list submissions: %w", err)
	}
	var rows []submissionRow
	if err := sqlscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: list submissions: %w", err)
	}
	return decodeRows(rows)
}

// FindSubmissions filters on data ->> field, which SQLite and Postgres both
// read as the text of a top-level JSON key.
func (r *repos) FindSubmissions(ctx context.Context, q repository.SubmissionQuery) ([]*models.Submission, int, error) {
	where := squirrel.And{squirrel.Eq{"form_id": q.FormID}}
	fields := make([]string, 0, len(q.Equals))
	for f := range q.Equals {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		where = append(where, squirrel.Expr("(data ->> CAST(? AS TEXT)) = ?", f, q.Equals[f]))
	}

	sel := r.sq.Select(submissionColumns...).From("submissions").
		Where(where).
		OrderBy("created_at DESC", "id DESC")
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit)).Offset(uint64(q.Skip))
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: build find submissions: %w", err)
	}
	var rows []submissionRow
	if err := sqlscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("sqlstore: find submissions: %w", err)
	}

	query, args, err = r.sq.Select("COUNT(*)").From("submissions").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: build count matching submissions: %w", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlstore: count matching submissions: %w", err)
	}
	subs, err := decodeRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func decodeRows(rows []submissionRow) ([]*models.Submission, error) {
	out := make([]*models.Submission, 0, len(rows))
	for _, row := range rows {
		s, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *repos) CountSubmissions(ctx context.Context, formID string) (int, error) {
	query, args, err := r.sq.Select("COUNT(*)").From("submissions").
		Where(squirrel.Eq{"form_id": formID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: build count submissions: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: count submissions: %w", err)
	}
	return n, nil
}

func (r *repos) DeleteSubmission(ctx context.Context, id string) error {
	query, args, err := r.sq.Delete("submissions").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build delete submission: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: delete submission: %w", err)
	}
	return rowsAffected(res, "delete submission")
}

func (r *repos) DeleteSubmissionsByForm(ctx context.Context, formID string) error {
	query, args, err := r.sq.Delete("submissions").Where(squirrel.Eq{"form_id": formID}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build delete form submissions: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: delete form submissions: %w", err)
	}
	return nil
}

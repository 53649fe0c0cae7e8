package oxistore

import (
	"context"
	"fmt"

	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

const SubmissionsCollection = "oxiforms_submissions"

func (r *repos) CreateSubmission(ctx context.Context, s *models.Submission) error {
	doc, err := toDoc(s)
	if err != nil {
		return fmt.Errorf("oxistore: encode submission: %w", err)
	}
	if _, err := r.conn().Insert(ctx, SubmissionsCollection, doc); err != nil {
		return classify("create submission", err)
	}
	return nil
}

func (r *repos) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	doc, err := r.conn().FindOne(ctx, SubmissionsCollection, byID(id))
	if err != nil {
		return nil, classify("find submission", err)
	}
	if doc == nil {
		return nil, repository.ErrNotFound
	}
	var s models.Submission
	if err := fromDoc(doc, &s); err != nil {
		return nil, fmt.Errorf("oxistore: decode submission: %w", err)
	}
	return &s, nil
}

func (r *repos) ListSubmissions(ctx context.Context, formID string) ([]*models.Submission, error) {
	docs, err := r.conn().Find(ctx, SubmissionsCollection, map[string]any{"formId": formID}, newestFirst)
	if err != nil {
		return nil, classify("list submissions", err)
	}
	return decodeSubmissions(docs)
}

// FindSubmissions matches Equals against the stored data.<field> values.
func (r *repos) FindSubmissions(ctx context.Context, q repository.SubmissionQuery) ([]*models.Submission, int, error) {
	query := map[string]any{"formId": q.FormID}
	for field, v := range q.Equals {
		query["data."+field] = v
	}
	opts := &oxidb.FindOptions{Sort: newestFirst.Sort}
	if q.Limit > 0 {
		opts.Skip, opts.Limit = q.Skip, q.Limit
	}
	c := r.conn()
	docs, err := c.Find(ctx, SubmissionsCollection, query, opts)
	if err != nil {
		return nil, 0, classify("find submissions", err)
	}
	total, err := c.Count(ctx, SubmissionsCollection, query)
	if err != nil {
		return nil, 0, classify("count matching submissions", err)
	}
	subs, err := decodeSubmissions(docs)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func decodeSubmissions(docs []map[string]any) ([]*models.Submission, error) {
	subs := make([]*models.Submission, 0, len(docs))
	for _, d := range docs {
		var s models.Submission
		if err := fromDoc(d, &s); err != nil {
			return nil, fmt.Errorf("oxistore: decode submission: %w", err)
		}
		subs = append(subs, &s)
	}
	return subs, nil
}

func (r *repos) CountSubmissions(ctx context.Context, formID string) (int, error) {
	n, err := r.conn().Count(ctx, SubmissionsCollection, map[string]any{"formId": formID})
	if err != nil {
		return 0, classify("count submissions", err)
	}
	return n, nil
}

func (r *repos) DeleteSubmission(ctx context.Context, id string) error {
	res, err := r.conn().DeleteOne(ctx, SubmissionsCollection, byID(id))
	if err != nil {
		return classify("delete submission", err)
	}
	if !affected(res, "deleted") {
		return repository.ErrNotFound
	}
	return nil
}

func (r *repos) DeleteSubmissionsByForm(ctx context.Context, formID string) error {
	if _, err := r.conn().Delete(ctx, SubmissionsCollection, map[string]any{"formId": formID}); err != nil {
		return classify("delete form submissions", err)
	}
	return nil
}

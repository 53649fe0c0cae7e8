package oxistore

import (
	"context"
	"fmt"

	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

const FormsCollection = "oxiforms_forms"

func (r *repos) CreateForm(ctx context.Context, f *models.Form) error {
	doc, err := toDoc(f)
	if err != nil {
		return fmt.Errorf("oxistore: encode form: %w", err)
	}
	if _, err := r.conn().Insert(ctx, FormsCollection, doc); err != nil {
		return classify("create form", err)
	}
	return nil
}

func (r *repos) GetForm(ctx context.Context, id string) (*models.Form, error) {
	return r.findForm(ctx, byID(id))
}

func (r *repos) GetFormByPublicID(ctx context.Context, publicID string) (*models.Form, error) {
	return r.findForm(ctx, map[string]any{"publicId": publicID})
}

func (r *repos) findForm(ctx context.Context, query map[string]any) (*models.Form, error) {
	doc, err := r.conn().FindOne(ctx, FormsCollection, query)
	if err != nil {
		return nil, classify("find form", err)
	}
	if doc == nil {
		return nil, repository.ErrNotFound
	}
	var f models.Form
	if err := fromDoc(doc, &f); err != nil {
		return nil, fmt.Errorf("oxistore: decode form: %w", err)
	}
	return &f, nil
}

func (r *repos) ListForms(ctx context.Context, ownerID string) ([]*models.Form, error) {
	docs, err := r.conn().Find(ctx, FormsCollection, ownerQuery(ownerID), newestFirst)
	if err != nil {
		return nil, classify("list forms", err)
	}
	forms := make([]*models.Form, 0, len(docs))
	for _, d := range docs {
		var f models.Form
		if err := fromDoc(d, &f); err != nil {
			return nil, fmt.Errorf("oxistore: decode form: %w", err)
		}
		forms = append(forms, &f)
	}
	return forms, nil
}

func (r *repos) CountForms(ctx context.Context, ownerID string) (int, error) {
	n, err := r.conn().Count(ctx, FormsCollection, ownerQuery(ownerID))
	if err != nil {
		return 0, classify("count forms", err)
	}
	return n, nil
}

func (r *repos) UpdateForm(ctx context.Context, f *models.Form) error {
	doc, err := toDoc(f)
	if err != nil {
		return fmt.Errorf("oxistore: encode form: %w", err)
	}
	res, err := r.conn().UpdateOne(ctx, FormsCollection, byID(f.ID), map[string]any{"$set": doc})
	if err != nil {
		return classify("update form", err)
	}
	if !affected(res, "modified") {
		return repository.ErrNotFound
	}
	return nil
}

func (r *repos) DeleteForm(ctx context.Context, id string) error {
	res, err := r.conn().DeleteOne(ctx, FormsCollection, byID(id))
	if err != nil {
		return classify("delete form", err)
	}
	if !affected(res, "deleted") {
		return repository.ErrNotFound
	}
	return nil
}

func ownerQuery(ownerID string) map[string]any {
	if ownerID == "" {
		return map[string]any{}
	}
	return map[string]any{"ownerId": ownerID}
}

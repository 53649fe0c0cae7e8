package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/segmentio/ksuid"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/schema"
)

const publicIDAttempts = 3

type FormService struct {
	base
	files *blob.Resolver
}

func NewFormService(store repository.Store, files *blob.Resolver, timeout time.Duration, log logger.Logger) *FormService {
	return &FormService{base: newBase(store, timeout, log), files: files}
}

type FormInput struct {
	Title        string             `json:"title"        validate:"required,max=200"`
	Description  string             `json:"description"  validate:"max=2000"`
	ContactField string             `json:"contactField"`
	Fields       []schema.FieldSpec `json:"fields"       validate:"required,min=1"`
}

// build defines the schema and checks the contact field against it.
func (in FormInput) build() (*schema.Schema, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	sch, err := schema.Define(in.Fields)
	if err != nil {
		return nil, err
	}
	if in.ContactField != "" {
		f, ok := sch.Field(in.ContactField)
		if !ok || f.Type != schema.ShortText {
			return nil, apperr.Validation(apperr.CodeInvalidInput,
				"contact field must name a short text field").With("field", in.ContactField)
		}
	}
	return sch, nil
}

func formResource(f *models.Form) access.Resource {
	return access.Owned("form", f.ID, f.OwnerID)
}

func (s *FormService) Create(ctx context.Context, p access.Principal, in FormInput) (*models.Form, error) {
	if err := access.Check(p, access.FormCreate, access.Scope("form")); err != nil {
		return nil, err
	}
	sch, err := in.build()
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	form := &models.Form{
		ID:           newID(),
		OwnerID:      p.ID,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		ContactField: in.ContactField,
		Schema:       sch,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	for attempt := 1; ; attempt++ {
		form.PublicID = publicID(form.Title)
		err = s.store.CreateForm(ctx, form)
		if !errors.Is(err, repository.ErrDuplicate) || attempt == publicIDAttempts {
			break
		}
	}
	if err != nil {
		return nil, storeErr(err, "form")
	}
	s.log.Info("form: created", "form_id", form.ID, "owner_id", form.OwnerID, "fields", form.FieldCount())
	return form, nil
}

// publicID is the title slug plus a random suffix.
func publicID(title string) string {
	stem := slug.Make(title)
	if len(stem) > 48 {
		stem = strings.Trim(stem[:48], "-")
	}
	if stem == "" {
		stem = "form"
	}
	id := ksuid.New().String()
	return stem + "-" + strings.ToLower(id[len(id)-8:])
}

// List returns every form for a super admin and the caller's own otherwise.
func (s *FormService) List(ctx context.Context, p access.Principal) ([]*models.Form, error) {
	if err := access.Check(p, access.FormList, access.Scope("form")); err != nil {
		return nil, err
	}
	owner := p.ID
	if p.Role == access.SuperAdmin {
		owner = ""
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	forms, err := s.store.ListForms(ctx, owner)
	if err != nil {
		return nil, storeErr(err, "form")
	}
	return forms, nil
}

func (s *FormService) load(ctx context.Context, id string) (*models.Form, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	form, err := s.store.GetForm(ctx, id)
	if err != nil {
		return nil, storeErr(err, "form")
	}
	return form, nil
}

func (s *FormService) Get(ctx context.Context, p access.Principal, id string) (*models.Form, error) {
	form, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Check(p, access.FormRead, formResource(form)); err != nil {
		return nil, err
	}
	return form, nil
}

// GetPublic returns the form behind a public id, for rendering the public
// submit page.
func (s *FormService) GetPublic(ctx context.Context, publicID string) (*models.Form, error) {
	if err := access.Check(access.AnonymousPrincipal, access.PublicSubmit, access.Scope("form")); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	form, err := s.store.GetFormByPublicID(ctx, publicID)
	if err != nil {
		return nil, storeErr(err, "form")
	}
	return form, nil
}

// Update replaces the form's metadata and schema. Once submissions exist a
// field may not be removed or retyped.
func (s *FormService) Update(ctx context.Context, p access.Principal, id string, in FormInput) (*models.Form, error) {
	form, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Check(p, access.FormUpdate, formResource(form)); err != nil {
		return nil, err
	}
	sch, err := in.build()
	if err != nil {
		return nil, err
	}
	change := form.Schema.Diff(sch)
	form.Title = strings.TrimSpace(in.Title)
	form.Description = in.Description
	form.ContactField = in.ContactField
	form.Schema = sch
	form.UpdatedAt = s.timestamp()

	// the lock check and the write run in one transaction
	tctx, cancel := s.bounded(ctx)
	defer cancel()
	err = s.store.WithTx(tctx, func(tx repository.Repos) error {
		if change.Breaking() {
			n, err := tx.CountSubmissions(tctx, form.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return apperr.Conflict(apperr.CodeFieldLocked,
					fmt.Sprintf("form has %d submissions; fields cannot be removed or retyped", n)).
					With("removed", change.Removed).With("retyped", change.Retyped)
			}
		}
		return tx.UpdateForm(tctx, form)
	})
	if err != nil {
		return nil, storeErr(err, "form")
	}
	return form, nil
}

// Delete removes the form and its submissions in one transaction, then
// discards every blob those submissions referenced.
func (s *FormService) Delete(ctx context.Context, p access.Principal, id string) error {
	form, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := access.Check(p, access.FormDelete, formResource(form)); err != nil {
		return err
	}
	var refs []schema.FileRef
	tctx, cancel := s.bounded(ctx)
	defer cancel()
	err = s.store.WithTx(tctx, func(tx repository.Repos) error {
		subs, err := tx.ListSubmissions(tctx, form.ID)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			refs = append(refs, sub.Data.Files()...)
		}
		if err := tx.DeleteSubmissionsByForm(tctx, form.ID); err != nil {
			return err
		}
		return tx.DeleteForm(tctx, form.ID)
	})
	if err != nil {
		return storeErr(err, "form")
	}
	s.files.Discard(ctx, refs...)
	logger.FromContext(ctx).Info("form: deleted", "form_id", form.ID, "files", len(refs))
	return nil
}

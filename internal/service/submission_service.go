package service

import (
	"context"
	"errors"
	"time"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/schema"
)

// SubmissionRecorder counts submission outcomes; *metrics.Metrics is one.
type SubmissionRecorder interface {
	ObserveSubmission(outcome string)
}

// upsertAttempts bounds retries of a submission whose contact insert lost a
// race.
const upsertAttempts = 2

const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type SubmissionService struct {
	base
	files *blob.Resolver
	rec   SubmissionRecorder
}

func NewSubmissionService(store repository.Store, files *blob.Resolver, rec SubmissionRecorder, timeout time.Duration, log logger.Logger) *SubmissionService {
	return &SubmissionService{base: newBase(store, timeout, log), files: files, rec: rec}
}

func (s *SubmissionService) observe(err error) {
	if s.rec == nil {
		return
	}
	switch {
	case err == nil:
		s.rec.ObserveSubmission(outcomeAccepted)
	case apperr.Retryable(err) || apperr.KindOf(err) == apperr.KindInternal:
		s.rec.ObserveSubmission(outcomeFailed)
	default:
		s.rec.ObserveSubmission(outcomeRejected)
	}
}

// Submit validates and stores a public submission. Uploads are stored first
// and discarded again if validation or the write fails, so a failed call
// leaves no blob behind and a stored submission never points at a missing
// blob.
func (s *SubmissionService) Submit(ctx context.Context, publicID string, payload map[string]any, uploads []blob.Upload) (sub *models.Submission, err error) {
	defer func() { s.observe(err) }()
	if err := access.Check(access.AnonymousPrincipal, access.PublicSubmit, access.Scope("form")); err != nil {
		return nil, err
	}
	bctx, cancel := s.bounded(ctx)
	form, err := s.store.GetFormByPublicID(bctx, publicID)
	cancel()
	if err != nil {
		return nil, storeErr(err, "form")
	}
	if err := checkUploads(form.Schema, payload, uploads); err != nil {
		return nil, err
	}

	refs, err := s.files.ResolveAll(ctx, form.ID, uploads)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(payload)+len(refs))
	for k, v := range payload {
		merged[k] = v
	}
	for i, ref := range refs {
		merged[uploads[i].Field] = ref
	}

	sub, err = s.persist(ctx, form, merged)
	if err != nil {
		s.files.Discard(ctx, refs...)
		return nil, err
	}
	logger.FromContext(ctx).Info("submission: stored",
		"form_id", form.ID, "submission_id", sub.ID, "files", len(refs))
	return sub, nil
}

func (s *SubmissionService) persist(ctx context.Context, form *models.Form, payload map[string]any) (*models.Submission, error) {
	values, err := form.Schema.Validate(payload)
	if err != nil {
		return nil, err
	}
	sub := &models.Submission{
		ID:        newID(),
		FormID:    form.ID,
		Data:      values,
		CreatedAt: s.timestamp(),
	}
	contact := ""
	if form.ContactField != "" {
		contact = normalizeEmail(values[form.ContactField].Text)
	}
	tctx, cancel := s.bounded(ctx)
	defer cancel()
	for attempt := 1; ; attempt++ {
		err = s.store.WithTx(tctx, func(tx repository.Repos) error {
			sub.SubmitterID = ""
			if contact != "" {
				id, err := s.upsertContact(tctx, tx, form, contact)
				if err != nil {
					return err
				}
				sub.SubmitterID = id
			}
			return tx.CreateSubmission(tctx, sub)
		})
		// a concurrent first submission may have created the contact; the
		// next attempt finds it
		if !errors.Is(err, repository.ErrDuplicate) || attempt == upsertAttempts {
			break
		}
		logger.FromContext(ctx).Debug("submission: contact created concurrently, retrying",
			"form_id", form.ID, "attempt", attempt)
	}
	if err != nil {
		return nil, storeErr(err, "submission")
	}
	return sub, nil
}

// upsertContact returns the regular user keyed by contact, creating one
// owned by the form's owner when none exists. A contact that belongs to an
// admin account, or to a user another admin owns, is not linked.
func (s *SubmissionService) upsertContact(ctx context.Context, tx repository.Repos, form *models.Form, contact string) (string, error) {
	existing, err := tx.GetUserByEmail(ctx, contact)
	switch {
	case err == nil && existing.Role == models.RoleUser && existing.OwnerID == form.OwnerID:
		return existing.ID, nil
	case err == nil:
		return "", nil
	case !errors.Is(err, repository.ErrNotFound):
		return "", err
	}
	now := s.timestamp()
	user := &models.User{
		ID:        newID(),
		Email:     contact,
		Name:      contact,
		Role:      models.RoleUser,
		Approval:  approval.Approved,
		OwnerID:   form.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return "", err
	}
	return user.ID, nil
}

// checkUploads rejects file parts that cannot belong to the form before any
// byte is stored. A field may not be sent both as a part and in the payload.
func checkUploads(sch *schema.Schema, payload map[string]any, uploads []blob.Upload) error {
	seen := make(map[string]bool, len(uploads))
	for _, up := range uploads {
		f, ok := sch.Field(up.Field)
		if !ok {
			return apperr.Validation(apperr.CodeUnknownField, "unknown field "+up.Field).With("field", up.Field)
		}
		if f.Type != schema.File {
			return apperr.Validation(apperr.CodeInvalidFieldValue,
				"field "+up.Field+" does not accept files").With("field", up.Field)
		}
		if _, dup := payload[up.Field]; dup || seen[up.Field] {
			return apperr.Validation(apperr.CodeInvalidFieldValue,
				"field "+up.Field+" was sent more than once").With("field", up.Field)
		}
		seen[up.Field] = true
	}
	return nil
}

// formFor loads the parent form of a submission and authorizes a against
// its owner.
func (s *SubmissionService) formFor(ctx context.Context, p access.Principal, a access.Action, formID string) (*models.Form, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	form, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return nil, storeErr(err, "form")
	}
	if err := access.Check(p, a, formResource(form)); err != nil {
		return nil, err
	}
	return form, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ListOptions pages and filters a form's submissions. Equals maps field
// names to the exact stored value; file fields cannot be filtered.
type ListOptions struct {
	Skip   int
	Limit  int
	Equals map[string]string
}

type SubmissionPage struct {
	Submissions []*models.Submission `json:"submissions"`
	Total       int                  `json:"total"`
	Skip        int                  `json:"skip"`
	Limit       int                  `json:"limit"`
}

// query checks the options against the form and applies the page size
// defaults.
func (o ListOptions) query(form *models.Form) (repository.SubmissionQuery, error) {
	if o.Skip < 0 || o.Limit < 0 {
		return repository.SubmissionQuery{}, apperr.Validation(apperr.CodeInvalidInput, "skip and limit must not be negative")
	}
	limit := o.Limit
	switch {
	case limit == 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	for name := range o.Equals {
		f, ok := form.Schema.Field(name)
		if !ok {
			return repository.SubmissionQuery{}, apperr.Validation(apperr.CodeUnknownField,
				"unknown field "+name).With("field", name)
		}
		if f.Type == schema.File {
			return repository.SubmissionQuery{}, apperr.Validation(apperr.CodeInvalidInput,
				"file field "+name+" cannot be filtered").With("field", name)
		}
	}
	return repository.SubmissionQuery{FormID: form.ID, Equals: o.Equals, Skip: o.Skip, Limit: limit}, nil
}

// List returns one page of the form's submissions, newest first.
func (s *SubmissionService) List(ctx context.Context, p access.Principal, formID string, opts ListOptions) (*SubmissionPage, error) {
	form, err := s.formFor(ctx, p, access.SubmissionList, formID)
	if err != nil {
		return nil, err
	}
	q, err := opts.query(form)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	subs, total, err := s.store.FindSubmissions(ctx, q)
	if err != nil {
		return nil, storeErr(err, "submission")
	}
	return &SubmissionPage{Submissions: subs, Total: total, Skip: q.Skip, Limit: q.Limit}, nil
}

func (s *SubmissionService) load(ctx context.Context, p access.Principal, a access.Action, id string) (*models.Submission, error) {
	bctx, cancel := s.bounded(ctx)
	sub, err := s.store.GetSubmission(bctx, id)
	cancel()
	if err != nil {
		return nil, storeErr(err, "submission")
	}
	if _, err := s.formFor(ctx, p, a, sub.FormID); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubmissionService) Get(ctx context.Context, p access.Principal, id string) (*models.Submission, error) {
	return s.load(ctx, p, access.SubmissionRead, id)
}

// Delete removes the submission, then discards its blobs.
func (s *SubmissionService) Delete(ctx context.Context, p access.Principal, id string) error {
	sub, err := s.load(ctx, p, access.SubmissionDelete, id)
	if err != nil {
		return err
	}
	bctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.DeleteSubmission(bctx, sub.ID); err != nil {
		return storeErr(err, "submission")
	}
	s.files.Discard(ctx, sub.Data.Files()...)
	return nil
}

// Download returns the bytes of the file stored in field.
func (s *SubmissionService) Download(ctx context.Context, p access.Principal, id, field string) ([]byte, schema.FileRef, error) {
	sub, err := s.load(ctx, p, access.FileDownload, id)
	if err != nil {
		return nil, schema.FileRef{}, err
	}
	v, ok := sub.Data[field]
	if !ok || v.File == nil {
		return nil, schema.FileRef{}, apperr.NotFound("file").With("field", field)
	}
	data, err := s.files.Open(ctx, *v.File)
	if err != nil {
		return nil, schema.FileRef{}, err
	}
	return data, *v.File, nil
}

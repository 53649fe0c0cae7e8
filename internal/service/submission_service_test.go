package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/schema"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

// twoFileForm has a PDF field and an image field.
func twoFileForm() FormInput {
	return FormInput{
		Title: "Portfolio",
		Fields: []schema.FieldSpec{
			{Name: "name", Type: schema.ShortText, Required: true},
			{Name: "cv", Type: schema.File, Required: true, Accept: []string{"application/pdf"}},
			{Name: "photo", Type: schema.File, Required: true, Accept: []string{"image/*"}},
		},
	}
}

func (e *env) submissionCount(t *testing.T, formID string) int {
	t.Helper()
	n, err := e.store.CountSubmissions(context.Background(), formID)
	require.NoError(t, err)
	return n
}

func TestSubmitWithFile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.admin(t, "a@x.com")
	form, err := e.forms.Create(ctx, a, jobForm())
	require.NoError(t, err)

	t.Run("Should reject a missing required file and store nothing", func(t *testing.T) {
		_, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "x@y.com"}, nil)
		requireCode(t, err, apperr.CodeMissingRequiredField)
		ae, _ := apperr.As(err)
		assert.Equal(t, "resume", ae.Details["field"])
		assert.Zero(t, e.blobCount(t))
		assert.Zero(t, e.submissionCount(t, form.ID))
	})

	t.Run("Should store the submission with a retrievable file reference", func(t *testing.T) {
		sub, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "x@y.com", "size": "M"},
			[]blob.Upload{{Field: "resume", FileName: "My CV.PDF", Data: pdf}})
		require.NoError(t, err)

		stored, err := e.subs.Get(ctx, a, sub.ID)
		require.NoError(t, err)
		ref := stored.Data["resume"].File
		require.NotNil(t, ref)
		assert.Equal(t, "application/pdf", ref.ContentType)
		assert.Equal(t, "My CV.PDF", ref.FileName)
		assert.Equal(t, "M", stored.Data["size"].Text)

		data, got, err := e.subs.Download(ctx, a, sub.ID, "resume")
		require.NoError(t, err)
		assert.Equal(t, pdf, data)
		assert.Equal(t, *ref, got)
		assert.Equal(t, 1, e.blobCount(t))
	})
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.admin(t, "a@x.com")
	form, err := e.forms.Create(ctx, a, jobForm())
	require.NoError(t, err)
	resume := []blob.Upload{{Field: "resume", FileName: "cv.pdf", Data: pdf}}

	t.Run("Should name the missing required field", func(t *testing.T) {
		_, err := e.subs.Submit(ctx, form.PublicID, map[string]any{}, resume)
		requireCode(t, err, apperr.CodeMissingRequiredField)
		ae, _ := apperr.As(err)
		assert.Equal(t, "email", ae.Details["field"])
	})

	t.Run("Should reject unknown keys the same way every time", func(t *testing.T) {
		payload := map[string]any{"email": "x@y.com", "zeta": "1", "alpha": "2"}
		for range 2 {
			_, err := e.subs.Submit(ctx, form.PublicID, payload, resume)
			requireCode(t, err, apperr.CodeUnknownField)
			ae, _ := apperr.As(err)
			assert.Equal(t, "alpha", ae.Details["field"])
		}
	})

	t.Run("Should reject an option outside the list", func(t *testing.T) {
		_, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "x@y.com", "size": "XL"}, resume)
		requireCode(t, err, apperr.CodeInvalidOption)
	})

	t.Run("Should reject uploads before storing anything", func(t *testing.T) {
		before := e.blobs.putCount()
		_, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "x@y.com"},
			append(resume, blob.Upload{Field: "avatar", FileName: "a.png", Data: png}))
		requireCode(t, err, apperr.CodeUnknownField)

		_, err = e.subs.Submit(ctx, form.PublicID, map[string]any{},
			[]blob.Upload{{Field: "email", FileName: "a.png", Data: png}})
		requireCode(t, err, apperr.CodeInvalidFieldValue)
		assert.Equal(t, before, e.blobs.putCount())
	})

	t.Run("Should not accept client-made file references", func(t *testing.T) {
		forged := map[string]any{"email": "x@y.com", "resume": map[string]any{"key": "forms/other/x/cv.pdf"}}
		_, err := e.subs.Submit(ctx, form.PublicID, forged, nil)
		requireCode(t, err, apperr.CodeInvalidFileReference)
	})

	t.Run("Should report an unknown public id", func(t *testing.T) {
		_, err := e.subs.Submit(ctx, "nope", map[string]any{}, nil)
		requireCode(t, err, apperr.CodeNotFound)
	})

	t.Run("Should leave nothing behind", func(t *testing.T) {
		assert.Zero(t, e.blobCount(t))
		assert.Zero(t, e.submissionCount(t, form.ID))
		assert.Positive(t, e.recorder.submitted(outcomeRejected))
		assert.Zero(t, e.recorder.submitted(outcomeAccepted))
	})
}

func TestSubmitOrphanCleanup(t *testing.T) {
	ctx := context.Background()
	payload := map[string]any{"name": "Ann"}

	t.Run("Should discard the first upload when the second file fails validation", func(t *testing.T) {
		e := newEnv(t)
		form, err := e.forms.Create(ctx, e.admin(t, "a@x.com"), twoFileForm())
		require.NoError(t, err)
		_, err = e.subs.Submit(ctx, form.PublicID, payload, []blob.Upload{
			{Field: "cv", FileName: "cv.pdf", Data: pdf},
			{Field: "photo", FileName: "photo.png", Data: pdf},
		})
		requireCode(t, err, apperr.CodeFileRejected)
		assert.Equal(t, 2, e.blobs.putCount())
		assert.Zero(t, e.blobCount(t))
		assert.Zero(t, e.submissionCount(t, form.ID))
	})

	t.Run("Should discard the first upload when the second upload fails", func(t *testing.T) {
		e := newEnv(t)
		form, err := e.forms.Create(ctx, e.admin(t, "a@x.com"), twoFileForm())
		require.NoError(t, err)
		e.blobs.failPut = "photo.png"
		_, err = e.subs.Submit(ctx, form.PublicID, payload, []blob.Upload{
			{Field: "cv", FileName: "cv.pdf", Data: pdf},
			{Field: "photo", FileName: "photo.png", Data: png},
		})
		requireCode(t, err, apperr.CodeUploadFailed)
		assert.True(t, apperr.Retryable(err))
		assert.Zero(t, e.blobCount(t))
		assert.Equal(t, 1, e.recorder.submitted(outcomeFailed))
	})

	t.Run("Should discard uploads when the write fails", func(t *testing.T) {
		e := newEnv(t, withStore(func(s repository.Store) repository.Store { return txFailing{s} }))
		form, err := e.forms.Create(ctx, e.admin(t, "a@x.com"), twoFileForm())
		require.NoError(t, err)
		_, err = e.subs.Submit(ctx, form.PublicID, payload, []blob.Upload{
			{Field: "cv", FileName: "cv.pdf", Data: pdf},
			{Field: "photo", FileName: "photo.png", Data: png},
		})
		requireCode(t, err, apperr.CodeStoreUnavailable)
		assert.Zero(t, e.blobCount(t))
	})

	t.Run("Should keep the original error when cleanup fails", func(t *testing.T) {
		e := newEnv(t)
		form, err := e.forms.Create(ctx, e.admin(t, "a@x.com"), twoFileForm())
		require.NoError(t, err)
		e.blobs.failDelete = true
		_, err = e.subs.Submit(ctx, form.PublicID, payload, []blob.Upload{
			{Field: "cv", FileName: "cv.pdf", Data: pdf},
			{Field: "photo", FileName: "photo.png", Data: pdf},
		})
		requireCode(t, err, apperr.CodeFileRejected)
		assert.Equal(t, 2, e.recorder.cleanupFailed)
	})
}

func TestSubmitContactUpsert(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.admin(t, "a@x.com")
	form, err := e.forms.Create(ctx, a, jobForm())
	require.NoError(t, err)
	resume := []blob.Upload{{Field: "resume", FileName: "cv.pdf", Data: pdf}}

	t.Run("Should link repeat submissions to one regular user", func(t *testing.T) {
		first, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "Ann@Y.com"}, resume)
		require.NoError(t, err)
		second, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "ann@y.com"}, resume)
		require.NoError(t, err)
		require.NotEmpty(t, first.SubmitterID)
		assert.Equal(t, first.SubmitterID, second.SubmitterID)

		user, err := e.store.GetUser(ctx, first.SubmitterID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, user.Role)
		assert.Equal(t, "ann@y.com", user.Email)
		assert.Equal(t, a.ID, user.OwnerID)
		assert.Empty(t, user.PasswordHash)

		owned, err := e.users.List(ctx, a)
		require.NoError(t, err)
		assert.Len(t, owned, 1)
	})

	t.Run("Should not link an admin's address", func(t *testing.T) {
		sub, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "a@x.com"}, resume)
		require.NoError(t, err)
		assert.Empty(t, sub.SubmitterID)
	})

	t.Run("Should not link a user another admin owns", func(t *testing.T) {
		b := e.admin(t, "b@x.com")
		other, err := e.forms.Create(ctx, b, jobForm())
		require.NoError(t, err)
		sub, err := e.subs.Submit(ctx, other.PublicID, map[string]any{"email": "ann@y.com"}, resume)
		require.NoError(t, err)
		assert.Empty(t, sub.SubmitterID)

		owned, err := e.users.List(ctx, b)
		require.NoError(t, err)
		assert.Empty(t, owned)
	})
}

// contactRace makes the first contact insert lose to a concurrent
// submission that commits the same contact right after.
type contactRace struct {
	repository.Store
	mu     sync.Mutex
	winner *models.User
	raced  bool
}

func (s *contactRace) WithTx(ctx context.Context, fn func(repository.Repos) error) error {
	err := s.Store.WithTx(ctx, func(tx repository.Repos) error {
		return fn(racingRepos{Repos: tx, s: s})
	})
	s.mu.Lock()
	winner := s.winner
	s.winner = nil
	s.mu.Unlock()
	if winner != nil {
		if cerr := s.Store.CreateUser(ctx, winner); cerr != nil {
			return cerr
		}
	}
	return err
}

type racingRepos struct {
	repository.Repos
	s *contactRace
}

func (r racingRepos) CreateUser(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.s.raced {
		r.s.raced = true
		w := *u
		w.ID = "concurrent-" + u.ID
		r.s.winner = &w
		return fmt.Errorf("insert user: %w", repository.ErrDuplicate)
	}
	return r.Repos.CreateUser(ctx, u)
}

func TestSubmitContactRace(t *testing.T) {
	ctx := context.Background()
	race := &contactRace{}
	e := newEnv(t, withStore(func(s repository.Store) repository.Store {
		race.Store = s
		return race
	}))
	a := e.admin(t, "a@x.com")
	form, err := e.forms.Create(ctx, a, jobForm())
	require.NoError(t, err)

	t.Run("Should link the contact created by a concurrent submission", func(t *testing.T) {
		sub, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "ann@y.com"},
			[]blob.Upload{{Field: "resume", FileName: "cv.pdf", Data: pdf}})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sub.SubmitterID, "concurrent-"))
		assert.Equal(t, 1, e.submissionCount(t, form.ID))
		assert.Equal(t, 1, e.blobCount(t))
	})
}

func TestStoreErr(t *testing.T) {
	t.Run("Should map a duplicate key to a conflict", func(t *testing.T) {
		err := storeErr(fmt.Errorf("insert: %w", repository.ErrDuplicate), "user")
		requireCode(t, err, apperr.CodeDuplicate)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.False(t, apperr.Retryable(err))
	})
}

func TestSubmissionAccess(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.admin(t, "a@x.com")
	b := e.admin(t, "b@x.com")
	form, err := e.forms.Create(ctx, a, jobForm())
	require.NoError(t, err)
	sub, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "x@y.com"},
		[]blob.Upload{{Field: "resume", FileName: "cv.pdf", Data: pdf}})
	require.NoError(t, err)

	t.Run("Should hide submissions from other admins", func(t *testing.T) {
		_, err := e.subs.List(ctx, b, form.ID, ListOptions{})
		requireCode(t, err, apperr.CodeNotOwner)
		_, err = e.subs.Get(ctx, b, sub.ID)
		requireCode(t, err, apperr.CodeNotOwner)
		_, _, err = e.subs.Download(ctx, b, sub.ID, "resume")
		requireCode(t, err, apperr.CodeNotOwner)
		requireCode(t, e.subs.Delete(ctx, b, sub.ID), apperr.CodeNotOwner)
	})

	t.Run("Should list newest first", func(t *testing.T) {
		later, err := e.subs.Submit(ctx, form.PublicID, map[string]any{"email": "z@y.com"},
			[]blob.Upload{{Field: "resume", FileName: "cv.pdf", Data: pdf}})
		require.NoError(t, err)
		page, err := e.subs.List(ctx, a, form.ID, ListOptions{})
		require.NoError(t, err)
		subs := page.Submissions
		require.Len(t, subs, 2)
		assert.Equal(t, 2, page.Total)
		assert.Equal(t, defaultPageSize, page.Limit)
		assert.ElementsMatch(t, []string{sub.ID, later.ID}, []string{subs[0].ID, subs[1].ID})
		assert.GreaterOrEqual(t, subs[0].CreatedAt, subs[1].CreatedAt)
	})

	t.Run("Should page and filter on field values", func(t *testing.T) {
		page, err := e.subs.List(ctx, a, form.ID, ListOptions{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, page.Submissions, 1)
		assert.Equal(t, 2, page.Total)

		page, err = e.subs.List(ctx, a, form.ID, ListOptions{Equals: map[string]string{"email": "z@y.com"}})
		require.NoError(t, err)
		require.Len(t, page.Submissions, 1)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, "z@y.com", page.Submissions[0].Data["email"].Text)

		page, err = e.subs.List(ctx, a, form.ID, ListOptions{Limit: 10_000})
		require.NoError(t, err)
		assert.Equal(t, maxPageSize, page.Limit)
	})

	t.Run("Should reject filters the form cannot answer", func(t *testing.T) {
		_, err := e.subs.List(ctx, a, form.ID, ListOptions{Equals: map[string]string{"bogus": "x"}})
		requireCode(t, err, apperr.CodeUnknownField)
		_, err = e.subs.List(ctx, a, form.ID, ListOptions{Equals: map[string]string{"resume": "cv.pdf"}})
		requireCode(t, err, apperr.CodeInvalidInput)
		_, err = e.subs.List(ctx, a, form.ID, ListOptions{Skip: -1})
		requireCode(t, err, apperr.CodeInvalidInput)
	})

	t.Run("Should report a field without a file", func(t *testing.T) {
		_, _, err := e.subs.Download(ctx, a, sub.ID, "email")
		requireCode(t, err, apperr.CodeNotFound)
	})

	t.Run("Should delete the submission and its blob", func(t *testing.T) {
		before := e.blobCount(t)
		require.NoError(t, e.subs.Delete(ctx, a, sub.ID))
		_, err := e.subs.Get(ctx, a, sub.ID)
		requireCode(t, err, apperr.CodeNotFound)
		assert.Equal(t, before-1, e.blobCount(t))
	})
}

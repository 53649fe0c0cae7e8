// Package repotest is the behavioural suite every repository.Store driver
// must pass.
package repotest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/schema"
)

// Run executes the suite; newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("Users", func(t *testing.T) { users(t, newStore(t)) })
	t.Run("Forms", func(t *testing.T) { forms(t, newStore(t)) })
	t.Run("Submissions", func(t *testing.T) { submissions(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { transactions(t, newStore(t)) })
}

func Admin(id, email string, state approval.State) *models.User {
	return &models.User{
		ID: id, Email: email, Name: id, PasswordHash: "hash",
		Role: models.RoleAdmin, Approval: state,
		CreatedAt: "2024-01-01T00:00:0" + id[len(id)-1:] + "Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
}

func Form(id, ownerID, createdAt string) *models.Form {
	return &models.Form{
		ID: id, OwnerID: ownerID, Title: "Form " + id, PublicID: "form-" + id,
		ContactField: "email",
		Schema: schema.MustDefine([]schema.FieldSpec{
			{Name: "email", Type: schema.ShortText, Required: true, MaxLength: 120},
			{Name: "size", Type: schema.SingleSelect, Options: []string{"S", "M"}},
			{Name: "cv", Type: schema.File, Accept: []string{"application/pdf"}, MaxSize: 1024},
		}),
		CreatedAt: createdAt, UpdatedAt: createdAt,
	}
}

func Submission(id, formID, createdAt string) *models.Submission {
	return &models.Submission{
		ID: id, FormID: formID, CreatedAt: createdAt,
		Data: schema.Values{
			"email": {Text: "a@example.com"},
			"cv": {File: &schema.FileRef{
				Key: "forms/" + formID + "/u/cv.pdf", FileName: "cv.pdf",
				ContentType: "application/pdf", Size: 12, Checksum: "abc",
			}},
		},
	}
}

func users(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, Admin("u1", "one@example.com", approval.Pending)))
	require.NoError(t, s.CreateUser(ctx, Admin("u2", "two@example.com", approval.Approved)))
	regular := &models.User{ID: "u3", Email: "three@example.com", Role: models.RoleUser, Approval: approval.Approved, OwnerID: "u2", CreatedAt: "2024-01-01T00:00:03Z"}
	require.NoError(t, s.CreateUser(ctx, regular))

	t.Run("Should reject a taken email", func(t *testing.T) {
		err := s.CreateUser(ctx, Admin("u9", "one@example.com", approval.Pending))
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})

	t.Run("Should get by id and case-insensitive email", func(t *testing.T) {
		u, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "one@example.com", u.Email)
		assert.Equal(t, approval.Pending, u.Approval)
		assert.Equal(t, "hash", u.PasswordHash)

		u, err = s.GetUserByEmail(ctx, "ONE@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)

		_, err = s.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = s.GetUserByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Should filter the listing", func(t *testing.T) {
		all, err := s.ListUsers(ctx, repository.UserFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
		assert.Equal(t, "u3", all[0].ID)

		pending, err := s.ListUsers(ctx, repository.UserFilter{Role: models.RoleAdmin, Approval: approval.Pending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "u1", pending[0].ID)

		owned, err := s.ListUsers(ctx, repository.UserFilter{OwnerID: "u2"})
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, "u3", owned[0].ID)
	})

	t.Run("Should update and delete", func(t *testing.T) {
		u, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		u.Approval = approval.Approved
		u.Name = "Renamed"
		require.NoError(t, s.UpdateUser(ctx, u))
		got, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, approval.Approved, got.Approval)
		assert.Equal(t, "Renamed", got.Name)

		require.NoError(t, s.DeleteUser(ctx, "u1"))
		assert.ErrorIs(t, s.DeleteUser(ctx, "u1"), repository.ErrNotFound)
		assert.ErrorIs(t, s.UpdateUser(ctx, u), repository.ErrNotFound)
	})
}

func forms(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateForm(ctx, Form("f1", "a1", "2024-01-01T00:00:01Z")))
	require.NoError(t, s.CreateForm(ctx, Form("f2", "a1", "2024-01-01T00:00:02Z")))
	require.NoError(t, s.CreateForm(ctx, Form("f3", "a2", "2024-01-01T00:00:03Z")))

	t.Run("Should round trip the schema", func(t *testing.T) {
		f, err := s.GetForm(ctx, "f1")
		require.NoError(t, err)
		require.NotNil(t, f.Schema)
		assert.Equal(t, Form("f1", "a1", "").Schema.Specs(), f.Schema.Specs())
		assert.Equal(t, "email", f.ContactField)

		byPublic, err := s.GetFormByPublicID(ctx, "form-f2")
		require.NoError(t, err)
		assert.Equal(t, "f2", byPublic.ID)

		_, err = s.GetForm(ctx, "nope")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Should list and count per owner", func(t *testing.T) {
		owned, err := s.ListForms(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, owned, 2)
		assert.Equal(t, "f2", owned[0].ID)

		all, err := s.ListForms(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		n, err := s.CountForms(ctx, "a2")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should reject a duplicate public id", func(t *testing.T) {
		dup := Form("f4", "a1", "2024-01-01T00:00:04Z")
		dup.PublicID = "form-f1"
		assert.ErrorIs(t, s.CreateForm(ctx, dup), repository.ErrDuplicate)
	})

	t.Run("Should update and delete", func(t *testing.T) {
		f, err := s.GetForm(ctx, "f1")
		require.NoError(t, err)
		f.Title = "Renamed"
		f.Schema = schema.MustDefine([]schema.FieldSpec{{Name: "email", Type: schema.ShortText}})
		require.NoError(t, s.UpdateForm(ctx, f))
		got, err := s.GetForm(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, 1, got.FieldCount())

		require.NoError(t, s.DeleteForm(ctx, "f1"))
		assert.ErrorIs(t, s.DeleteForm(ctx, "f1"), repository.ErrNotFound)
	})
}

func submissions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateForm(ctx, Form("f1", "a1", "2024-01-01T00:00:00Z")))
	require.NoError(t, s.CreateForm(ctx, Form("f2", "a1", "2024-01-01T00:00:00Z")))
	require.NoError(t, s.CreateSubmission(ctx, Submission("s1", "f1", "2024-01-02T00:00:01Z")))
	s2 := Submission("s2", "f1", "2024-01-02T00:00:02Z")
	s2.Data["email"] = schema.Value{Text: "b@example.com"}
	require.NoError(t, s.CreateSubmission(ctx, s2))
	require.NoError(t, s.CreateSubmission(ctx, Submission("s3", "f2", "2024-01-02T00:00:03Z")))

	t.Run("Should round trip typed values", func(t *testing.T) {
		sub, err := s.GetSubmission(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, Submission("s1", "f1", "2024-01-02T00:00:01Z").Data, sub.Data)
		_, err = s.GetSubmission(ctx, "nope")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Should list newest first and count", func(t *testing.T) {
		subs, err := s.ListSubmissions(ctx, "f1")
		require.NoError(t, err)
		require.Len(t, subs, 2)
		assert.Equal(t, "s2", subs[0].ID)
		n, err := s.CountSubmissions(ctx, "f2")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should page newest first with the total", func(t *testing.T) {
		page, total, err := s.FindSubmissions(ctx, repository.SubmissionQuery{FormID: "f1", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, page, 1)
		assert.Equal(t, "s2", page[0].ID)

		page, total, err = s.FindSubmissions(ctx, repository.SubmissionQuery{FormID: "f1", Skip: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, page, 1)
		assert.Equal(t, "s1", page[0].ID)

		page, total, err = s.FindSubmissions(ctx, repository.SubmissionQuery{FormID: "f1"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, page, 2)
	})

	t.Run("Should filter on stored text values", func(t *testing.T) {
		page, total, err := s.FindSubmissions(ctx, repository.SubmissionQuery{
			FormID: "f1",
			Equals: map[string]string{"email": "b@example.com"},
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, page, 1)
		assert.Equal(t, "s2", page[0].ID)

		page, total, err = s.FindSubmissions(ctx, repository.SubmissionQuery{
			FormID: "f2",
			Equals: map[string]string{"email": "b@example.com"},
		})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, page)
	})

	t.Run("Should delete one and cascade per form", func(t *testing.T) {
		require.NoError(t, s.DeleteSubmission(ctx, "s3"))
		assert.ErrorIs(t, s.DeleteSubmission(ctx, "s3"), repository.ErrNotFound)

		require.NoError(t, s.DeleteSubmissionsByForm(ctx, "f1"))
		n, err := s.CountSubmissions(ctx, "f1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func transactions(t *testing.T, s repository.Store) {
	ctx := context.Background()

	t.Run("Should commit every write", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx repository.Repos) error {
			if err := tx.CreateUser(ctx, Admin("t1", "tx1@example.com", approval.Approved)); err != nil {
				return err
			}
			return tx.CreateForm(ctx, Form("tf1", "t1", "2024-01-01T00:00:00Z"))
		})
		require.NoError(t, err)
		_, err = s.GetUser(ctx, "t1")
		assert.NoError(t, err)
		_, err = s.GetForm(ctx, "tf1")
		assert.NoError(t, err)
	})

	t.Run("Should roll back and return fn's error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx repository.Repos) error {
			if err := tx.CreateUser(ctx, Admin("t2", "tx2@example.com", approval.Approved)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		_, err = s.GetUser(ctx, "t2")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Should surface a duplicate inside the transaction", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx repository.Repos) error {
			if err := tx.CreateUser(ctx, Admin("t3", "tx3@example.com", approval.Approved)); err != nil {
				return err
			}
			return tx.CreateUser(ctx, Admin("t4", "tx1@example.com", approval.Approved))
		})
		assert.ErrorIs(t, err, repository.ErrDuplicate)
		_, err = s.GetUser(ctx, "t3")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

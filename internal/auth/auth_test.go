package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

const secret = "test-secret-0123456789"

func approvedAdmin() *models.User {
	return &models.User{ID: "u1", Email: "a@x.com", Role: models.RoleAdmin, Approval: approval.Approved}
}

func TestPassword(t *testing.T) {
	t.Run("Should verify the hashed password", func(t *testing.T) {
		hash, err := HashPassword("hunter22", 4)
		require.NoError(t, err)
		assert.True(t, CheckPassword("hunter22", hash))
		assert.False(t, CheckPassword("hunter23", hash))
	})

	t.Run("Should never match an empty hash", func(t *testing.T) {
		assert.False(t, CheckPassword("", ""))
	})
}

func TestTokens(t *testing.T) {
	t.Run("Should carry the user claims", func(t *testing.T) {
		tokens := NewTokens(secret, time.Hour)
		signed, err := tokens.Generate(approvedAdmin())
		require.NoError(t, err)
		claims, err := tokens.Validate(signed)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, "a@x.com", claims.Email)
		assert.Equal(t, models.RoleAdmin, claims.Role)
		assert.True(t, claims.Approved)
	})

	t.Run("Should reject an expired token", func(t *testing.T) {
		tokens := NewTokens(secret, time.Minute)
		tokens.now = func() time.Time { return time.Now().Add(-time.Hour) }
		signed, err := tokens.Generate(approvedAdmin())
		require.NoError(t, err)
		_, err = NewTokens(secret, time.Minute).Validate(signed)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("Should reject another secret", func(t *testing.T) {
		signed, err := NewTokens(secret, time.Hour).Generate(approvedAdmin())
		require.NoError(t, err)
		_, err = NewTokens("another-secret-0123456789", time.Hour).Validate(signed)
		assert.Error(t, err)
	})

	t.Run("Should reject an unsigned token", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			UserID:           "u1",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})
		signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = NewTokens(secret, time.Hour).Validate(signed)
		assert.Error(t, err)
	})
}

type userMap map[string]*models.User

func (m userMap) GetUser(_ context.Context, id string) (*models.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens(secret, time.Hour)
	var gotErr error
	writeErr := func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	serve := func(users UserLookup, header string) (*httptest.ResponseRecorder, access.Principal) {
		gotErr = nil
		var p access.Principal
		h := Middleware(tokens, users, 200*time.Millisecond, writeErr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p = Principal(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec, p
	}

	t.Run("Should reject a missing token", func(t *testing.T) {
		rec, _ := serve(userMap{}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, apperr.HasCode(gotErr, apperr.CodeUnauthorized))
	})

	t.Run("Should reload the principal from the store", func(t *testing.T) {
		stale := &models.User{ID: "u1", Role: models.RoleAdmin, Approval: approval.Pending}
		signed, err := tokens.Generate(stale)
		require.NoError(t, err)

		rec, p := serve(userMap{"u1": approvedAdmin()}, "Bearer "+signed)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, access.Principal{ID: "u1", Role: access.Admin, Approved: true}, p)
	})

	t.Run("Should reject tokens of deleted accounts", func(t *testing.T) {
		signed, err := tokens.Generate(approvedAdmin())
		require.NoError(t, err)
		rec, _ := serve(userMap{}, "Bearer "+signed)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, apperr.HasCode(gotErr, apperr.CodeUnauthorized))
	})

	t.Run("Should reject tokens of rejected admins", func(t *testing.T) {
		rejected := approvedAdmin()
		rejected.Approval = approval.Rejected
		signed, err := tokens.Generate(approvedAdmin())
		require.NoError(t, err)
		_, _ = serve(userMap{"u1": rejected}, "Bearer "+signed)
		assert.True(t, apperr.HasCode(gotErr, apperr.CodeRejected))
	})

	t.Run("Should report a store outage as retryable", func(t *testing.T) {
		users := &mockUsers{}
		users.On("GetUser", mock.Anything, "u1").Return(nil, errors.New("connection reset")).Once()
		signed, err := tokens.Generate(approvedAdmin())
		require.NoError(t, err)
		rec, _ := serve(users, "Bearer "+signed)
		assert.NotEqual(t, http.StatusNoContent, rec.Code)
		assert.True(t, apperr.Retryable(gotErr))
		users.AssertExpectations(t)
	})

	t.Run("Should give up on a slow account lookup", func(t *testing.T) {
		users := &mockUsers{}
		users.On("GetUser", mock.Anything, "u1").Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).Return(nil, context.DeadlineExceeded).Once()
		signed, err := tokens.Generate(approvedAdmin())
		require.NoError(t, err)

		start := time.Now()
		rec, _ := serve(users, "Bearer "+signed)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.NotEqual(t, http.StatusNoContent, rec.Code)
		assert.True(t, apperr.Retryable(gotErr))
		users.AssertExpectations(t)
	})
}

func TestPrincipal(t *testing.T) {
	t.Run("Should default to anonymous", func(t *testing.T) {
		assert.Equal(t, access.AnonymousPrincipal, Principal(context.Background()))
		assert.Nil(t, GetUser(context.Background()))
	})
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/models"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

type contextKey string

const userContextKey contextKey = "user"

// UserLookup loads the account behind a token.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// defaultLookupTimeout bounds the account reload when the caller passes none.
const defaultLookupTimeout = 5 * time.Second

// Middleware authenticates the bearer token and reloads the user, so role
// changes, approvals and deletions apply to tokens already issued. The reload
// gives up after timeout.
func Middleware(tokens *Tokens, users UserLookup, timeout time.Duration, writeErr ErrorWriter) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticate(r, tokens, users, timeout)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			ctx := WithUser(r.Context(), user)
			ctx = logger.ContextWithLogger(ctx, logger.FromContext(ctx).With("user_id", user.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, tokens *Tokens, users UserLookup, timeout time.Duration) (*models.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return nil, apperr.New(apperr.KindAuthorization, apperr.CodeUnauthorized, "missing bearer token")
	}
	claims, err := tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		logger.FromContext(r.Context()).Debug("auth: token rejected", "error", err)
		return nil, apperr.New(apperr.KindAuthorization, apperr.CodeUnauthorized, "invalid token")
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	user, err := users.GetUser(ctx, claims.UserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.New(apperr.KindAuthorization, apperr.CodeUnauthorized, "account no longer exists")
	case err != nil:
		return nil, apperr.StoreUnavailable(err)
	}
	if user.Role == models.RoleAdmin && user.Approval == approval.Rejected {
		return nil, approval.LoginError(user.Approval)
	}
	return user, nil
}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// GetUser returns the authenticated user, or nil for anonymous requests.
func GetUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	return u
}

// Principal is the access-control identity of the request.
func Principal(ctx context.Context) access.Principal {
	if u := GetUser(ctx); u != nil {
		return u.Principal()
	}
	return access.AnonymousPrincipal
}

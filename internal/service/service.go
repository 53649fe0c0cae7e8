// Package service orchestrates forms, submissions and accounts. Every
// operation consults the access evaluator before touching the store.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/segmentio/ksuid"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type base struct {
	store   repository.Store
	timeout time.Duration
	log     logger.Logger
	now     func() time.Time
}

func newBase(store repository.Store, timeout time.Duration, log logger.Logger) base {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewForTests()
	}
	return base{store: store, timeout: timeout, log: log, now: time.Now}
}

// bounded derives the per-call store deadline.
func (b *base) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b *base) timestamp() string {
	return b.now().UTC().Format(timeLayout)
}

func newID() string { return ksuid.New().String() }

// storeErr classifies a repository failure. what names the resource for
// not-found errors. Errors that are already classified pass through.
func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(what)
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Wrap(apperr.KindConflict, apperr.CodeDuplicate, err, what+" already exists").
			With("resource", what)
	}
	return apperr.StoreUnavailable(err)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// checkInput runs the struct tags of an input and reports every failing
// field at once.
func checkInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(apperr.CodeInvalidInput, err.Error())
	}
	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		fields[name] = fe.Tag()
		names = append(names, name)
	}
	return apperr.Validation(apperr.CodeInvalidInput, "invalid "+strings.Join(names, ", ")).
		With("fields", fields)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

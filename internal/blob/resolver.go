package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/schema"
)

// Upload is one file part of a submission, before it is stored.
type Upload struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// Recorder receives upload and cleanup outcomes; *metrics.Metrics is one.
type Recorder interface {
	ObserveUpload(size int64, err error)
	CleanupFailed(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpload(int64, error) {}
func (nopRecorder) CleanupFailed(int)          {}

type Options struct {
	// Timeout bounds each store call.
	Timeout time.Duration
	// Concurrency bounds parallel uploads in ResolveAll.
	Concurrency int
	// DiscardRetries and DiscardBackoff shape the cleanup retry.
	DiscardRetries uint64
	DiscardBackoff time.Duration
	Recorder       Recorder
	Logger         logger.Logger
}

type Resolver struct {
	store Store
	opts  Options
	log   logger.Logger
	rec   Recorder
	now   func() time.Time
}

func NewResolver(store Store, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.DiscardRetries == 0 {
		opts.DiscardRetries = 3
	}
	if opts.DiscardBackoff <= 0 {
		opts.DiscardBackoff = 100 * time.Millisecond
	}
	r := &Resolver{store: store, opts: opts, log: opts.Logger, rec: opts.Recorder, now: time.Now}
	if r.log == nil {
		r.log = logger.NewForTests()
	}
	if r.rec == nil {
		r.rec = nopRecorder{}
	}
	return r
}

// Resolve stores one upload and returns its reference. It does not retry:
// a store failure or timeout is an UploadFailed error the caller may retry.
func (r *Resolver) Resolve(ctx context.Context, formID string, up Upload) (schema.FileRef, error) {
	if len(up.Data) == 0 {
		return schema.FileRef{}, apperr.Validation(apperr.CodeInvalidFileReference,
			"uploaded file is empty").With("field", up.Field)
	}
	sum := sha256.Sum256(up.Data)
	ref := schema.FileRef{
		Key:         Key(formID, up.FileName),
		FileName:    displayName(up.FileName),
		ContentType: contentType(up.ContentType, up.Data),
		Size:        int64(len(up.Data)),
		Checksum:    hex.EncodeToString(sum[:]),
	}

	putCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	start := r.now()
	err := r.store.Put(putCtx, ref.Key, up.Data, ref.ContentType)
	r.rec.ObserveUpload(ref.Size, err)
	if err != nil {
		r.log.Warn("blob: upload failed",
			"field", up.Field, "key", ref.Key, "elapsed", r.now().Sub(start), "error", err)
		return schema.FileRef{}, apperr.UploadFailed(err).With("field", up.Field)
	}
	return ref, nil
}

// ResolveAll stores every upload concurrently and returns the references in
// input order. When any upload fails the ones that succeeded are discarded
// before the first error is returned.
func (r *Resolver) ResolveAll(ctx context.Context, formID string, ups []Upload) ([]schema.FileRef, error) {
	refs := make([]schema.FileRef, len(ups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, up := range ups {
		g.Go(func() error {
			ref, err := r.Resolve(gctx, formID, up)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.Discard(ctx, refs...)
		return nil, err
	}
	return refs, nil
}

// Discard deletes refs best-effort with bounded retry. Failures are logged
// and counted, never returned: an orphaned blob is tolerable, a failed
// request because of one is not. It ignores cancellation of ctx.
func (r *Resolver) Discard(ctx context.Context, refs ...schema.FileRef) {
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for _, ref := range refs {
		if !ref.Resolved() {
			continue
		}
		backoff := retry.WithMaxRetries(r.opts.DiscardRetries, retry.NewExponential(r.opts.DiscardBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			delCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()
			err := r.store.Delete(delCtx, ref.Key)
			if err == nil || errors.Is(err, ErrNotFound) {
				return nil
			}
			return retry.RetryableError(err)
		})
		if err != nil {
			failed++
			r.log.Error("blob: orphan cleanup failed", "key", ref.Key, "error", err)
		}
	}
	r.rec.CleanupFailed(failed)
}

// Open reads the bytes behind ref.
func (r *Resolver) Open(ctx context.Context, ref schema.FileRef) ([]byte, error) {
	getCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	data, err := r.store.Get(getCtx, ref.Key)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, apperr.NotFound("file")
	case err != nil:
		return nil, apperr.Wrap(apperr.KindDependency, apperr.CodeStoreUnavailable, err, "blob store unavailable")
	}
	return data, nil
}

// Key builds forms/<formID>/<uuid>/<sanitized file name>.
func Key(formID, fileName string) string {
	return path.Join("forms", formID, uuid.NewString(), sanitize(fileName))
}

// sanitize keeps a readable, path-safe file name: the slugged stem plus a
// lower-cased extension.
func sanitize(name string) string {
	name = displayName(name)
	ext := strings.ToLower(path.Ext(name))
	stem := slug.Make(strings.TrimSuffix(name, path.Ext(name)))
	if len(stem) > 80 {
		stem = strings.Trim(stem[:80], "-")
	}
	if stem == "" {
		stem = "file"
	}
	if slug.Make(strings.TrimPrefix(ext, ".")) != strings.TrimPrefix(ext, ".") {
		ext = ""
	}
	return stem + ext
}

// displayName strips any client-supplied directories.
func displayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

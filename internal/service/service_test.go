package service

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiForms/internal/access"
	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob/fsblob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository/sqlstore"
)

const (
	superEmail    = "root@x.com"
	superPassword = "root-password"
	blobDir       = "/blobs"
)

var pdf = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

type env struct {
	store     repository.Store
	fs        afero.Fs
	blobs     *flakyBlobs
	files     *blob.Resolver
	recorder  *recorder
	tokens    *auth.Tokens
	auth      *AuthService
	forms     *FormService
	subs      *SubmissionService
	admins    *AdminService
	users     *UserService
	dashboard *DashboardService
	super     access.Principal
}

type envOption func(*envConfig)

type envConfig struct {
	wrapStore func(repository.Store) repository.Store
}

func withStore(wrap func(repository.Store) repository.Store) envOption {
	return func(c *envConfig) { c.wrapStore = wrap }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	var cfg envConfig
	for _, o := range opts {
		o(&cfg)
	}
	ctx := context.Background()
	dsn := "file:" + t.TempDir() + "/oxiforms.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sql, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sql.Close() })
	require.NoError(t, sql.Migrate(ctx))
	var store repository.Store = sql
	if cfg.wrapStore != nil {
		store = cfg.wrapStore(store)
	}

	memfs := afero.NewMemMapFs()
	fsStore, err := fsblob.New(memfs, blobDir)
	require.NoError(t, err)
	blobs := &flakyBlobs{Store: fsStore}
	rec := &recorder{}
	log := logger.NewForTests()
	files := blob.NewResolver(blobs, blob.Options{
		Timeout:        time.Second,
		DiscardRetries: 2,
		DiscardBackoff: time.Millisecond,
		Recorder:       rec,
		Logger:         log,
	})
	tokens := auth.NewTokens("service-test-secret-0123", time.Hour)
	e := &env{
		store:     store,
		fs:        memfs,
		blobs:     blobs,
		files:     files,
		recorder:  rec,
		tokens:    tokens,
		auth:      NewAuthService(store, tokens, 4, time.Second, log),
		forms:     NewFormService(store, files, time.Second, log),
		subs:      NewSubmissionService(store, files, rec, time.Second, log),
		admins:    NewAdminService(store, rec, time.Second, log),
		users:     NewUserService(store, 4, time.Second, log),
		dashboard: NewDashboardService(store, time.Second, log),
	}
	created, err := e.auth.SeedSuperAdmin(ctx, superEmail, superPassword)
	require.NoError(t, err)
	require.True(t, created)
	root, err := store.GetUserByEmail(ctx, superEmail)
	require.NoError(t, err)
	e.super = root.Principal()
	return e
}

// admin registers and approves an admin account.
func (e *env) admin(t *testing.T, email string) access.Principal {
	t.Helper()
	ctx := context.Background()
	resp, err := e.auth.Register(ctx, RegisterInput{Email: email, Password: "password-123", Name: email})
	require.NoError(t, err)
	u, err := e.admins.Approve(ctx, e.super, resp.ID)
	require.NoError(t, err)
	return u.Principal()
}

// blobCount counts the files stored in the blob directory.
func (e *env) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := afero.Walk(e.fs, blobDir, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

// flakyBlobs fails Put for keys ending in failPut and every Delete when
// failDelete is set.
type flakyBlobs struct {
	blob.Store
	mu         sync.Mutex
	failPut    string
	failDelete bool
	puts       int
}

func (f *flakyBlobs) Put(ctx context.Context, key string, data []byte, ct string) error {
	f.mu.Lock()
	f.puts++
	fail := f.failPut != "" && strings.HasSuffix(key, f.failPut)
	f.mu.Unlock()
	if fail {
		return errors.New("bucket unavailable")
	}
	return f.Store.Put(ctx, key, data, ct)
}

func (f *flakyBlobs) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failDelete
	f.mu.Unlock()
	if fail {
		return errors.New("bucket unavailable")
	}
	return f.Store.Delete(ctx, key)
}

func (f *flakyBlobs) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

type recorder struct {
	mu            sync.Mutex
	submissions   map[string]int
	approvals     map[string]int
	cleanupFailed int
	uploads       int
}

func (r *recorder) ObserveSubmission(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submissions == nil {
		r.submissions = map[string]int{}
	}
	r.submissions[outcome]++
}

func (r *recorder) ObserveApproval(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approvals == nil {
		r.approvals = map[string]int{}
	}
	r.approvals[state]++
}

func (r *recorder) ObserveUpload(int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads++
}

func (r *recorder) CleanupFailed(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupFailed += n
}

func (r *recorder) submitted(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submissions[outcome]
}

// txFailing makes every transaction fail as a lost connection would.
type txFailing struct {
	repository.Store
}

func (txFailing) WithTx(context.Context, func(repository.Repos) error) error {
	return errors.New("connection reset by peer")
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), "error: %v", err)
}

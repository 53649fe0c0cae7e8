package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should return defaults when nothing is set", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, "sqlite", cfg.Store.Driver)
		assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
		assert.Equal(t, 4444, cfg.OxiDB.Port)
		assert.Equal(t, "fs", cfg.Blob.Driver)
	})
	t.Run("Should apply environment overrides", func(t *testing.T) {
		t.Setenv("OXIFORMS_ADDR", ":9090")
		t.Setenv("OXIFORMS_STORE_TIMEOUT", "750ms")
		t.Setenv("OXIDB_PORT", "5555")
		t.Setenv("OXIFORMS_LOG_JSON", "true")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.Equal(t, 750*time.Millisecond, cfg.Store.Timeout)
		assert.Equal(t, 5555, cfg.OxiDB.Port)
		assert.True(t, cfg.Log.JSON)
	})
	t.Run("Should read a dotenv file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("OXIFORMS_BLOB_DIR=/tmp/oxiforms-test-blobs\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("OXIFORMS_BLOB_DIR") })
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/oxiforms-test-blobs", cfg.Blob.Dir)
	})
	t.Run("Should reject an unknown store driver", func(t *testing.T) {
		t.Setenv("OXIFORMS_STORE_DRIVER", "mongo")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("Should require super admin email and password together", func(t *testing.T) {
		t.Setenv("OXIFORMS_SUPER_ADMIN_EMAIL", "root@example.com")
		_, err := Load("")
		assert.ErrorContains(t, err, "super_admin")
	})
}

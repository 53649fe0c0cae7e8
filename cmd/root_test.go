package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	t.Run("Should register every subcommand", func(t *testing.T) {
		root := RootCmd()
		for _, name := range []string{"serve", "migrate", "seed-super-admin"} {
			c, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, c.Name())
		}
	})

	t.Run("Should let flags override the environment", func(t *testing.T) {
		t.Setenv("OXIFORMS_LOG_LEVEL", "warn")
		root := RootCmd()
		serve, _, err := root.Find([]string{"serve"})
		require.NoError(t, err)
		require.NoError(t, serve.ParseFlags([]string{
			"--env-file", filepath.Join(t.TempDir(), "missing.env"),
			"--log-level", "debug",
			"--log-json",
		}))

		rt, err := setup(serve)
		require.NoError(t, err)
		defer rt.close()
		assert.Equal(t, "debug", rt.cfg.Log.Level)
		assert.True(t, rt.cfg.Log.JSON)
	})

	t.Run("Should keep the environment value without a flag", func(t *testing.T) {
		t.Setenv("OXIFORMS_LOG_LEVEL", "warn")
		root := RootCmd()
		serve, _, err := root.Find([]string{"serve"})
		require.NoError(t, err)
		require.NoError(t, serve.ParseFlags([]string{"--env-file", ""}))

		rt, err := setup(serve)
		require.NoError(t, err)
		defer rt.close()
		assert.Equal(t, "warn", rt.cfg.Log.Level)
		assert.False(t, rt.cfg.Log.JSON)
	})

	t.Run("Should require both seed credentials", func(t *testing.T) {
		root := RootCmd()
		root.SetArgs([]string{"seed-super-admin", "--env-file", "", "--email", "root@example.com"})
		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both email and password")
	})
}

package helpers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spot-perf/spot/internal/config"
)

func runProbe(t *testing.T, configYAML string, args ...string) *Env {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	t.Setenv("SPOT_CONFIG", path)
	t.Setenv("SPOT_WORKERS", "")
	t.Setenv("SPOT_LOG_LEVEL", "")

	var env *Env
	root := &cobra.Command{Use: "spot", SilenceUsage: true, SilenceErrors: true}
	AddGlobalFlags(root)
	root.AddCommand(&cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			env, err = NewEnv(cmd)
			return err
		},
	})

	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"probe"}, args...))
	require.NoError(t, root.Execute())
	return env
}

func TestNewEnvFlagsOverrideConfig(t *testing.T) {
	env := runProbe(t, "workers: 4\nlogging:\n  level: error\n", "--workers", "2", "--log-level", "debug")

	assert.Equal(t, 2, env.Config.Workers)
	assert.Equal(t, "debug", env.Config.Logging.Level)
	assert.Equal(t, "cali-query", env.Config.Tool.Path)
}

func TestNewEnvUsesConfigFile(t *testing.T) {
	env := runProbe(t, "workers: 4\nstore:\n  path: /tmp/runs.sqlite\n")

	assert.Equal(t, 4, env.Config.Workers)

	path, err := env.StorePath("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/runs.sqlite", path)

	path, err = env.StorePath("other.duckdb")
	require.NoError(t, err)
	assert.Equal(t, "other.duckdb", path)
}

func TestStorePathRequired(t *testing.T) {
	env := &Env{Config: config.DefaultConfig(t.TempDir())}
	_, err := env.StorePath("")
	assert.Error(t, err)
}

func TestValidateStorePath(t *testing.T) {
	for _, ok := range []string{"runs.sqlite", "runs.db", "runs.duckdb", "RUNS.DuckDB"} {
		assert.NoError(t, ValidateStorePath(ok), ok)
	}
	for _, bad := range []string{"runs", "runs.cali", "runs.json"} {
		assert.Error(t, ValidateStorePath(bad), bad)
	}
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/gogps/config"
)

func TestDefaultsPrintsParsableConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"defaults", "--log-level", "warn"})
	require.NoError(t, rootCmd.Execute())

	c, err := config.Parse(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, config.Default().Algorithm.T, c.Algorithm.T)
}

func TestRunWithConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("algorithm:\n  horizon: 5\n"),
		0o644))

	rootCmd.SetArgs([]string{"run", "--config", path, "--iterations", "1",
		"--log-level", "warn"})
	require.NoError(t, rootCmd.Execute())
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	rootCmd.SetArgs([]string{"run", "--log-level", "loud"})
	assert.Error(t, rootCmd.Execute())
}

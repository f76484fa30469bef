package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, loadEnv(""))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TASTY_STREAMER_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("TASTY_STREAMER_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("TASTY_STREAMER_TEST_KEY"))

	require.NoError(t, loadEnv(path))
	assert.Equal(t, "from-file", os.Getenv("TASTY_STREAMER_TEST_KEY"))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run", "--env-file", "", "--config", filepath.Join(t.TempDir(), "nope.yaml")})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/cli"
)

func TestRunConfigWithoutFile(t *testing.T) {
	out := &bytes.Buffer{}
	err := run(context.Background(), out, io.Discard, []string{"config"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "configuration file: (none)")
}

func TestRunReportsExitCodes(t *testing.T) {
	out := &bytes.Buffer{}
	err := run(context.Background(), out, io.Discard, []string{"model", "BlogContext"})
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
	assert.Contains(t, out.String(), "no context types registered")

	path := filepath.Join(t.TempDir(), "codefirst.toml")
	require.NoError(t, os.WriteFile(path, []byte("interceptors = [\"audit\"]\n"), 0o644))
	err = run(context.Background(), io.Discard, io.Discard, []string{"--config", path, "config"})
	require.Error(t, err)
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(err))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), io.Discard, io.Discard, []string{"migrate"})
	require.Error(t, err)
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(err))
}

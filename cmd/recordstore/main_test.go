package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordstore/recordstore"
)

type cliEnv struct {
	uri    string
	config string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LOG_FILE_NAME", filepath.Join(dir, "cli.log"))
	t.Setenv("SERVICE_LOG_DIR", "")
	return cliEnv{
		uri:    "bolt://" + filepath.Join(dir, "cli.db"),
		config: filepath.Join(dir, "missing.yaml"),
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", e.config, "--uri", e.uri}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLIRecordLifecycle(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "put", "u1", "10")
	require.NoError(t, err)
	assert.Contains(t, out, `"ID": "u1"`)

	_, err = env.run(t, "put", "u1", "15")
	require.NoError(t, err, "second put updates instead of failing")

	_, err = env.run(t, "update", "u1", "20.5")
	require.NoError(t, err)

	out, err = env.run(t, "get", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, `"data": 20.5`)

	_, err = env.run(t, "delete", "u1")
	require.NoError(t, err)

	_, err = env.run(t, "get", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCLIListAndPurge(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	for _, id := range []string{"a", "b"} {
		_, err := env.run(t, "put", id, "1")
		require.NoError(t, err)
	}

	out, err = env.run(t, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, `"deletedCount": 2`)

	out, err = env.run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestCLIRejectsBadInput(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "put", "u1", "ten")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a number")

	_, err = env.run(t, "put", "", "1")
	require.ErrorIs(t, err, recordstore.ErrInvalidArgument)

	_, err = env.run(t, "put", "u1", "NaN")
	require.ErrorIs(t, err, recordstore.ErrInvalidArgument)

	_, err = env.run(t, "get")
	require.Error(t, err, "get needs an ID")
}

func TestCLIConnectionFailure(t *testing.T) {
	env := newCLIEnv(t)
	env.uri = "bolt://" + filepath.Join(t.TempDir(), "no", "such", "dir.db")

	_, err := env.run(t, "list")
	require.ErrorIs(t, err, recordstore.ErrConnection)
}

func TestCLIConfigFile(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  uri: \""+env.uri+"\"\n  collection: balances\n"), 0644))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "put", "u1", "3"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"data": 3`)

	got, err := env.run(t, "--collection", "balances", "get", "u1")
	require.NoError(t, err)
	assert.Contains(t, got, `"ID": "u1"`)

	_, err = env.run(t, "get", "u1")
	require.Error(t, err, "default collection does not hold the record")
}

func TestVersionCommand(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "recordstore dev")
}

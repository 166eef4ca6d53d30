package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.2.0", "abc123", "2026-10-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "chatdesk 1.2.0 (commit: abc123, built: 2026-10-01)\n", buf.String())
}

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"version", "serve", "migrate"} {
		assert.True(t, names[want], want)
	}
}

func writeConfig(t *testing.T) (cfgPath, envPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "chatdesk.yaml")
	body := "database:\n  path: " + filepath.Join(dir, "chat.db") + "\nchat:\n  time_zone: UTC\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	envPath = filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, nil, 0o644))
	return cfgPath, envPath
}

func TestMigrateCmd(t *testing.T) {
	cfgPath, envPath := writeConfig(t)

	run := func() string {
		cmd := newRootCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"migrate", "--config", cfgPath, "--env-file", envPath})
		require.NoError(t, cmd.Execute())
		return buf.String()
	}

	assert.Contains(t, run(), "Applied migration")
	assert.Equal(t, "Database schema is up to date\n", run())
}

func TestMigrateCmdBadConfig(t *testing.T) {
	_, envPath := writeConfig(t)
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--env-file", envPath})

	assert.Equal(t, 1, execute(cmd))
}

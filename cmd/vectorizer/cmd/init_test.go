package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorizer-project/vectorizer/internal/output"
)

func TestInitCmd_WritesProjectConfigInCwd(t *testing.T) {
	withTempUserConfigHome(t)
	projectDir := t.TempDir()

	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Chdir(projectDir))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"init"})

	err = cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "created")
	assert.FileExists(t, filepath.Join(projectDir, ".vectorizer.yaml"))
}

func TestGenerateProjectConfig_PreservesExistingYAML(t *testing.T) {
	out := output.New(io.Discard)
	projectDir := t.TempDir()
	existing := filepath.Join(projectDir, ".vectorizer.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("version: 1\n"), 0o644))

	err := generateProjectConfig(out, projectDir)

	require.NoError(t, err)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestGenerateProjectConfig_PreservesExistingYML(t *testing.T) {
	out := output.New(io.Discard)
	projectDir := t.TempDir()
	existing := filepath.Join(projectDir, ".vectorizer.yml")
	require.NoError(t, os.WriteFile(existing, []byte("version: 1\n"), 0o644))

	err := generateProjectConfig(out, projectDir)

	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(projectDir, ".vectorizer.yaml"))
}

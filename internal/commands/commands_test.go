package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "chatsync.yaml")
	body := `
settings:
  backend: memory
  secret: very-secret
notify:
  desktop: false
log:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommand_MasksSecrets(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "config")
	require.NoError(t, err)

	assert.Contains(t, out, "backend: memory")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "very-secret")
}

func TestLogoutCommand(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
}

func TestLoginCommand_RequiresToken(t *testing.T) {
	t.Setenv("CHATSYNC_TOKEN", "")

	_, err := execute(t, "--config", writeConfig(t), "login")
	assert.Error(t, err)
}

func TestUnknownConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Empty(t, mask(""))
	assert.Equal(t, "********", mask("x"))
}

package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wentf9/nirvana/pkg/failure"
)

func TestExpandHome(t *testing.T) {
	home := homeDir()
	require.Equal(t, home, ExpandHome("~"))
	require.Equal(t, filepath.Join(home, ".ssh", "id_ed25519"), ExpandHome("~/.ssh/id_ed25519"))
	require.Equal(t, "/etc/hosts", ExpandHome("/etc/hosts"))
}

func TestGlobalOptionsComplete(t *testing.T) {
	g := &GlobalOptions{}
	g.Complete()
	require.Equal(t, DefaultKeyPath(), g.KeyFile)
	require.Equal(t, DefaultAuditDir(), g.AuditDir)
}

func TestLoadRunConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  host: 10.0.0.5\n  user: admin\n  password: pw\n"), 0600))

	cfg, err := LoadRunConfig(path, &GlobalOptions{KeyFile: filepath.Join(dir, "key")})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:22", cfg.Addr())

	require.NoError(t, os.WriteFile(path, []byte("target:\n  host: 10.0.0.5\n  user: admin\n"), 0600))
	_, err = LoadRunConfig(path, &GlobalOptions{KeyFile: filepath.Join(dir, "key")})
	require.Equal(t, failure.KindValidation, failure.Classify(err))
}

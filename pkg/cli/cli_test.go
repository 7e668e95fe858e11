package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	root := Root()
	root.Writer = &buf

	require.NoError(t, root.Run(t.Context(), []string{name, "version"}))
	assert.Contains(t, buf.String(), name)
	assert.Contains(t, buf.String(), version)
}

func TestCollectDryRun(t *testing.T) {
	inv := writeFile(t, "nodes.json", `[
		{"id": 1, "cluster": 1, "roles": ["compute"], "ip": "10.0.0.1", "online": true}
	]`)
	cfg := writeFile(t, "run.yaml", `
outdir: `+t.TempDir()+`
actions:
  cmds:
    - uname: uname -a
`)

	var buf bytes.Buffer
	root := Root()
	root.Writer = &buf

	err := root.Run(t.Context(), []string{
		name, "collect", "--config", cfg, "--inventory", inv, "--dry-run",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "node 1 (10.0.0.1)")
	assert.Contains(t, buf.String(), "uname -a")
}

func TestExecRequiresCommand(t *testing.T) {
	err := Root().Run(t.Context(), []string{name, "exec"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command argument")
}

func TestPublishRequiresOCITarget(t *testing.T) {
	err := Root().Run(t.Context(), []string{
		name, "publish", "--source", t.TempDir(), "/local/path",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oci://")
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	cfgPath := writeFile(t, "run.yaml", `
outdir: /tmp/from-file
parallel: 10
`)

	cmd := &cli.Command{
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config"},
			&cli.StringFlag{Name: "outdir"},
			&cli.IntFlag{Name: "parallel"},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			require.NoError(t, err)
			assert.Equal(t, "/tmp/flag-wins", cfg.OutDir)
			assert.Equal(t, 10, cfg.Parallel)
			return nil
		},
	}
	require.NoError(t, cmd.Run(t.Context(), []string{
		"test", "--config", cfgPath, "--outdir", "/tmp/flag-wins",
	}))
}

func TestCollectDirTimestampFlag(t *testing.T) {
	inv := writeFile(t, "nodes.json", `[
		{"id": 1, "cluster": 1, "roles": ["compute"], "ip": "10.0.0.1", "online": true}
	]`)
	out := t.TempDir()
	cfg := writeFile(t, "run.yaml", `
outdir: `+out+`
actions:
  cmds:
    - uname: uname -a
`)

	root := Root()
	root.Writer = &bytes.Buffer{}

	err := root.Run(t.Context(), []string{
		name, "collect", "--config", cfg, "--inventory", inv, "--dir-timestamp", "--dry-run",
	})
	require.NoError(t, err)

	// The run directory was created next to the configured root, suffixed.
	entries, err := filepath.Glob(out + "_*")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

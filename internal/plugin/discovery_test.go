package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePlugin creates root/dir with a manifest and an executable run.sh.
func writePlugin(t *testing.T, root, dir, manifest, script string) string {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, manifestFilename), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "run.sh"), []byte(script), 0o755))
	return pluginDir
}

func manifestFor(name string, hooks string) string {
	return "name: " + name + "\nversion: 1.0.0\nprotocol: 1\nentrypoint: run.sh\nhooks: " + hooks + "\n"
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name      string
		setupFn   func(t *testing.T) string
		wantCount int
		wantErr   bool
		checkFn   func(t *testing.T, c *Catalog)
	}{
		{
			name: "valid plugin discovered",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writePlugin(t, dir, "notify", manifestFor("notify", "[mail, sms]"), "#!/bin/sh\n")
				return dir
			},
			wantCount: 1,
			checkFn: func(t *testing.T, c *Catalog) {
				p, ok := c.Get("notify")
				require.True(t, ok)
				assert.Equal(t, []string{"mail", "sms"}, p.Hooks)
				assert.True(t, p.HandlesHook("sms"))
				assert.False(t, p.HandlesHook("fax"))
				assert.True(t, filepath.IsAbs(p.Entrypoint))
			},
		},
		{
			name: "nested plugins sorted by name",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writePlugin(t, dir, "b", manifestFor("beta", "[x]"), "#!/bin/sh\n")
				writePlugin(t, dir, filepath.Join("group", "a"), manifestFor("alpha", "[x]"), "#!/bin/sh\n")
				return dir
			},
			wantCount: 2,
			checkFn: func(t *testing.T, c *Catalog) {
				all := c.All()
				assert.Equal(t, "alpha", all[0].Name)
				assert.Equal(t, "beta", all[1].Name)
			},
		},
		{
			name: "duplicate name keeps first",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writePlugin(t, dir, "a", manifestFor("same", "[x]"), "#!/bin/sh\n")
				writePlugin(t, dir, "b", manifestFor("same", "[y]"), "#!/bin/sh\n")
				return dir
			},
			wantCount: 1,
			checkFn: func(t *testing.T, c *Catalog) {
				p, _ := c.Get("same")
				assert.Equal(t, []string{"x"}, p.Hooks)
			},
		},
		{
			name: "unsupported protocol skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writePlugin(t, dir, "old", "name: old\nprotocol: 2\nentrypoint: run.sh\nhooks: [x]\n", "#!/bin/sh\n")
				return dir
			},
			wantCount: 0,
		},
		{
			name: "non-executable entrypoint skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				pluginDir := writePlugin(t, dir, "noexec", manifestFor("noexec", "[x]"), "#!/bin/sh\n")
				require.NoError(t, os.Chmod(filepath.Join(pluginDir, "run.sh"), 0o644))
				return dir
			},
			wantCount: 0,
		},
		{
			name: "directory without manifest skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0o755))
				return dir
			},
			wantCount: 0,
		},
		{
			name: "nonexistent directory",
			setupFn: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := Discover(tt.setupFn(t), nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, catalog.All(), tt.wantCount)
			if tt.checkFn != nil {
				tt.checkFn(t, catalog)
			}
		})
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Manifest
		wantErr string
	}{
		{name: "valid", m: Manifest{Name: "p", Protocol: 1, Entrypoint: "run.sh", Hooks: []string{"a"}}},
		{name: "missing name", m: Manifest{Protocol: 1, Entrypoint: "run.sh", Hooks: []string{"a"}}, wantErr: "name is required"},
		{name: "missing protocol", m: Manifest{Name: "p", Entrypoint: "run.sh", Hooks: []string{"a"}}, wantErr: "protocol"},
		{name: "missing entrypoint", m: Manifest{Name: "p", Protocol: 1, Hooks: []string{"a"}}, wantErr: "entrypoint is required"},
		{name: "path traversal", m: Manifest{Name: "p", Protocol: 1, Entrypoint: "../run.sh", Hooks: []string{"a"}}, wantErr: "traversal"},
		{name: "no hooks", m: Manifest{Name: "p", Protocol: 1, Entrypoint: "run.sh"}, wantErr: "at least one hook"},
		{name: "empty hook", m: Manifest{Name: "p", Protocol: 1, Entrypoint: "run.sh", Hooks: []string{" "}}, wantErr: "empty"},
		{name: "duplicate hook", m: Manifest{Name: "p", Protocol: 1, Entrypoint: "run.sh", Hooks: []string{"a", "a"}}, wantErr: "twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTrustWorldWritable(t *testing.T) {
	root := t.TempDir()
	pluginDir := writePlugin(t, root, "open", manifestFor("open", "[x]"), "#!/bin/sh\n")
	require.NoError(t, os.Chmod(pluginDir, 0o777))

	err := validateTrust(filepath.Join(pluginDir, "run.sh"), pluginDir, root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world-writable")
}

func TestValidateTrustOutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	pluginDir := writePlugin(t, other, "p", manifestFor("p", "[x]"), "#!/bin/sh\n")

	err := validateTrust(filepath.Join(pluginDir, "run.sh"), pluginDir, root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not under plugins dir")
}

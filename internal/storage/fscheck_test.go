package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFilesystemAllowsLocal(t *testing.T) {
	t.Parallel()

	err := checkFilesystem(filepath.Join(t.TempDir(), "state.db"), func(string) (string, error) {
		return "ext4", nil
	})
	require.NoError(t, err)
}

func TestCheckFilesystemRejectsNetworkMount(t *testing.T) {
	t.Parallel()

	err := checkFilesystem(filepath.Join(t.TempDir(), "state.db"), func(string) (string, error) {
		return "nfs", nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkFilesystem)
	assert.Contains(t, err.Error(), "state.path")
}

func TestCheckFilesystemToleratesUnknownPlatform(t *testing.T) {
	t.Parallel()

	err := checkFilesystem(filepath.Join(t.TempDir(), "state.db"), func(string) (string, error) {
		return "", errDetectionUnsupported
	})
	require.NoError(t, err)
}

func TestCheckFilesystemSurfacesDetectionFailure(t *testing.T) {
	t.Parallel()

	eacces := errors.New("statfs: permission denied")
	err := checkFilesystem(filepath.Join(t.TempDir(), "state.db"), func(string) (string, error) {
		return "", eacces
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, eacces)
	assert.NotErrorIs(t, err, ErrNetworkFilesystem)
}

func TestDetectFilesystemTypeOnTempDir(t *testing.T) {
	t.Parallel()

	fsType, err := detectFilesystemType(t.TempDir())
	if errors.Is(err, errDetectionUnsupported) {
		t.Skip("no filesystem detection on this platform")
	}
	require.NoError(t, err)
	assert.NotEmpty(t, fsType)
}

func TestCheckFilesystemInspectsNearestExistingParent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var inspected string
	err := checkFilesystem(filepath.Join(root, "a", "b", "state.db"), func(p string) (string, error) {
		inspected = p
		return "apfs", nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, inspected)
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"nfs":    true,
		"SMBFS":  true,
		" cifs ": true,
		"apfs":   false,
		"0x6969": false,
	}
	for fs, want := range cases {
		assert.Equal(t, want, isNetworkFilesystem(fs), fs)
	}
}

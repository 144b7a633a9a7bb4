package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name, stored next to the root config.
const ChecksumFile = ".checksums"

// ChecksumManifest maps config file names (relative to the config dir) to
// BLAKE3 hex digests.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ErrChecksumMismatch is returned when a config file no longer matches the
// manifest.
var ErrChecksumMismatch = errors.New("config checksum mismatch")

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Lock writes a manifest covering every source file of the config at
// configPath and returns the manifest path.
func Lock(configPath string) (string, error) {
	files, err := SourceFiles(configPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(files[0])

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string, len(files)),
	}
	for _, f := range files {
		hash, err := ComputeBlake3Hash(f)
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", f, err)
		}
		manifest.Hashes[manifestKey(dir, f)] = hash
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksums: %w", err)
	}
	out := filepath.Join(dir, ChecksumFile)
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write checksums: %w", err)
	}
	return out, nil
}

// LoadChecksums reads the manifest from dir. It returns (nil, nil) when there
// is none.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// VerifyChecksums checks files against the manifest in dir. Without a
// manifest there is nothing to verify.
func VerifyChecksums(dir string, files []string) error {
	manifest, err := LoadChecksums(dir)
	if err != nil || manifest == nil {
		return err
	}

	var problems []string
	for _, f := range files {
		key := manifestKey(dir, f)
		expected, ok := manifest.Hashes[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s is not in %s", key, ChecksumFile))
			continue
		}
		actual, err := ComputeBlake3Hash(f)
		if err != nil {
			return err
		}
		if actual != expected {
			problems = append(problems, fmt.Sprintf("%s changed (expected %s, got %s)", key, short(expected), short(actual)))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %v\nIf you edited these files intentionally, run: spool config lock", ErrChecksumMismatch, problems)
	}
	return nil
}

func manifestKey(dir, file string) string {
	if rel, err := filepath.Rel(dir, file); err == nil {
		return filepath.ToSlash(rel)
	}
	return file
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

package plugin

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/spool/internal/protocol"
)

const manifestFilename = "manifest.yaml"

// Catalog holds discovered exec plugins by name.
type Catalog struct {
	plugins map[string]*Plugin
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{plugins: make(map[string]*Plugin)}
}

// Get looks up a plugin by name. A nil catalog holds nothing.
func (c *Catalog) Get(name string) (*Plugin, bool) {
	if c == nil {
		return nil, false
	}
	p, ok := c.plugins[name]
	return p, ok
}

// All returns the plugins sorted by name.
func (c *Catalog) All() []*Plugin {
	if c == nil {
		return nil
	}
	out := make([]*Plugin, 0, len(c.plugins))
	for _, p := range c.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Add stores p. Names must be unique.
func (c *Catalog) Add(p *Plugin) error {
	if _, exists := c.plugins[p.Name]; exists {
		return fmt.Errorf("plugin %q already registered", p.Name)
	}
	c.plugins[p.Name] = p
	return nil
}

// Discover walks dir for manifest.yaml files. Plugins that fail to load are
// logged and skipped; a missing or unreadable dir is an error.
func Discover(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	root, err := filepath.Abs(strings.TrimSpace(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugins dir %q: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plugins dir does not exist: %s", root)
		}
		return nil, fmt.Errorf("failed to stat plugins dir %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plugins dir is not a directory: %s", root)
	}

	catalog := NewCatalog()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != manifestFilename {
			return nil
		}

		pluginPath := filepath.Dir(path)
		p, err := loadPlugin(pluginPath, root)
		if err != nil {
			logger.Warn("failed to load plugin", "path", pluginPath, "error", err)
			return nil
		}
		if err := catalog.Add(p); err != nil {
			existing, _ := catalog.Get(p.Name)
			logger.Warn("duplicate plugin ignored (keeping first discovered)",
				"plugin", p.Name, "ignored_path", p.Path, "kept_path", existing.Path)
			return nil
		}
		logger.Info("loaded plugin", "plugin", p.Name, "path", p.Path, "version", p.Version, "hooks", p.Hooks)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan plugins dir %s: %w", root, err)
	}
	return catalog, nil
}

func loadPlugin(pluginPath, root string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(pluginPath, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.Protocol != protocol.Version {
		return nil, fmt.Errorf("unsupported protocol version %d (supported: %d)", m.Protocol, protocol.Version)
	}

	entrypoint := filepath.Join(pluginPath, m.Entrypoint)
	if err := validateTrust(entrypoint, pluginPath, root); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	return &Plugin{
		Name:        m.Name,
		Path:        pluginPath,
		Entrypoint:  entrypoint,
		Protocol:    m.Protocol,
		Version:     m.Version,
		Description: m.Description,
		Hooks:       m.Hooks,
	}, nil
}

// validateTrust requires the resolved entrypoint to be an executable inside
// both the plugin dir and the plugins root, and the plugin dir to not be
// world-writable.
func validateTrust(entrypoint, pluginPath, root string) error {
	resolvedEntry, err := filepath.EvalSymlinks(entrypoint)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}
	resolvedPlugin, err := filepath.EvalSymlinks(pluginPath)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin path symlink: %w", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("failed to resolve plugins dir symlink: %w", err)
	}

	sep := string(os.PathSeparator)
	if !strings.HasPrefix(resolvedEntry, resolvedRoot+sep) {
		return fmt.Errorf("entrypoint %s is not under plugins dir %s", resolvedEntry, resolvedRoot)
	}
	if !strings.HasPrefix(resolvedEntry, resolvedPlugin+sep) {
		return fmt.Errorf("entrypoint %s is not under plugin directory %s", resolvedEntry, resolvedPlugin)
	}

	info, err := os.Stat(resolvedEntry)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntry)
	}

	dirInfo, err := os.Stat(resolvedPlugin)
	if err != nil {
		return fmt.Errorf("plugin directory not found: %w", err)
	}
	if dirInfo.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("plugin directory is world-writable: %s", resolvedPlugin)
	}
	return nil
}

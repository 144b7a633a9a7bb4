package plugin

import (
	"fmt"
	"slices"
	"strings"
)

// Manifest is the content of a plugin's manifest.yaml.
type Manifest struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Protocol    int      `yaml:"protocol"`
	Entrypoint  string   `yaml:"entrypoint"`
	Description string   `yaml:"description,omitempty"`
	Hooks       []string `yaml:"hooks"`
}

// Plugin is a discovered exec plugin whose manifest and entrypoint passed
// validation.
type Plugin struct {
	Name        string // from manifest
	Path        string // absolute plugin directory
	Entrypoint  string // absolute path to the executable
	Protocol    int
	Version     string
	Description string
	// Hooks lists the events the plugin handles, in manifest order.
	Hooks []string
}

// HandlesHook reports whether the manifest lists event.
func (p *Plugin) HandlesHook(event string) bool {
	return slices.Contains(p.Hooks, event)
}

func (m *Manifest) validate() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Protocol == 0 {
		return fmt.Errorf("protocol version is required")
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if strings.Contains(m.Entrypoint, "..") {
		return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
	}
	if len(m.Hooks) == 0 {
		return fmt.Errorf("at least one hook must be declared")
	}

	seen := make(map[string]struct{}, len(m.Hooks))
	for i, h := range m.Hooks {
		h = strings.TrimSpace(h)
		if h == "" {
			return fmt.Errorf("hooks[%d] is empty", i)
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("hook %q declared twice", h)
		}
		seen[h] = struct{}{}
		m.Hooks[i] = h
	}
	return nil
}

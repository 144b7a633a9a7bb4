package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/spool/internal/config"
)

const (
	DefaultMaxBodySize     = 1 << 20
	DefaultSignatureHeader = "X-Spool-Signature-256"
)

// Endpoint is one resolved webhook route.
type Endpoint struct {
	Path            string
	Transport       string
	Secret          string
	SignatureHeader string
	MaxBodySize     int64
}

// FromConfig resolves defaults and sizes for the configured webhooks.
func FromConfig(cfgs []config.WebhookConfig) ([]Endpoint, error) {
	out := make([]Endpoint, 0, len(cfgs))
	for _, c := range cfgs {
		size, err := parseSize(c.MaxBodySize)
		if err != nil {
			return nil, fmt.Errorf("webhook %s: invalid max_body_size %q: %w", c.Path, c.MaxBodySize, err)
		}
		header := c.SignatureHeader
		if header == "" {
			header = DefaultSignatureHeader
		}
		out = append(out, Endpoint{
			Path:            c.Path,
			Transport:       c.Transport,
			Secret:          c.Secret,
			SignatureHeader: header,
			MaxBodySize:     size,
		})
	}
	return out, nil
}

// parseSize reads "2048", "64KB", "1MB" or "1GB". Empty means the default.
func parseSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30}} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.mult
			upper = strings.TrimSuffix(upper, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}

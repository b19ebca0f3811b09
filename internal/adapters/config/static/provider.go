// Package static serves a fixed, in-memory configuration. It is used when the
// gateway is embedded and configured programmatically.
package static

import (
	"context"
	"fmt"

	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
)

// Provider implements ports.ConfigProvider for a configuration that never changes.
type Provider struct {
	cfg *config.Config
}

// NewProvider validates cfg and wraps it.
func NewProvider(cfg *config.Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{cfg: cfg}, nil
}

func (p *Provider) Load(ctx context.Context) (*config.Config, error) {
	return p.cfg, nil
}

// Watch never calls onChange.
func (p *Provider) Watch(ctx context.Context, onChange func(*config.Config)) error {
	return nil
}

func (p *Provider) Close() error {
	return nil
}

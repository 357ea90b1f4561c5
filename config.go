package opflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/viant/afs"
	"github.com/viant/opflow/internal/logger"
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/service/executor/shell"
	"github.com/viant/opflow/service/order"
	"github.com/viant/opflow/tracing"
	"gopkg.in/yaml.v3"
)

// Registry kinds
const (
	RegistryMemory = "memory"
	RegistryFs     = "fs"
)

// Config is a serialisable representation of a run.  The zero value of every
// optional field falls back to DefaultConfig.
type Config struct {
	Operations     []*model.Operation `json:"operations" yaml:"operations"`
	Configurations []string           `json:"configurations" yaml:"configurations"`
	PollInterval   time.Duration      `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty"`
	// ErrorTolerance is the number of failed launches that ends a
	// configuration; zero, whether omitted or explicit, selects the default of 3
	ErrorTolerance int `json:"errorTolerance,omitempty" yaml:"errorTolerance,omitempty"`
	// Order names the orderer applied to eligible configurations, see service/order
	Order    string            `json:"order,omitempty" yaml:"order,omitempty"`
	Registry RegistryConfig    `json:"registry,omitempty" yaml:"registry,omitempty"`
	Shell    shell.Config      `json:"shell,omitempty" yaml:"shell,omitempty"`
	Workdir  string            `json:"workdir,omitempty" yaml:"workdir,omitempty"`
	Env      map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Log      logger.Config     `json:"log,omitempty" yaml:"log,omitempty"`
	Tracing  tracing.Config    `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// RegistryConfig selects the status registry
type RegistryConfig struct {
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
	// URL is the afs base URL of the fs registry
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		PollInterval:   10 * time.Second,
		ErrorTolerance: 3,
		Order:          order.NameIdentity,
		Registry:       RegistryConfig{Kind: RegistryMemory},
		Shell:          shell.DefaultConfig(),
		Log:            logger.DefaultConfig(),
	}
}

// Init fills unset optional fields with defaults
func (c *Config) Init() {
	defaults := DefaultConfig()
	if c.PollInterval == 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.ErrorTolerance == 0 {
		c.ErrorTolerance = defaults.ErrorTolerance
	}
	if c.Order == "" {
		c.Order = defaults.Order
	}
	if c.Registry.Kind == "" {
		c.Registry.Kind = defaults.Registry.Kind
	}
	if c.Shell.Host == "" {
		c.Shell.Host = defaults.Shell.Host
	}
	if c.Shell.Timeout == 0 {
		c.Shell.Timeout = defaults.Shell.Timeout
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = defaults.Log.MaxBackups
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config was nil")
	}
	var result *multierror.Error
	if len(c.Operations) == 0 {
		result = multierror.Append(result, fmt.Errorf("operations were empty"))
	}
	names := map[string]bool{}
	for i, op := range c.Operations {
		if op == nil {
			result = multierror.Append(result, fmt.Errorf("operation #%d was nil", i))
			continue
		}
		if err := op.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		if names[op.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate operation: %s", op.Name))
		}
		names[op.Name] = true
	}
	for i, cfg := range c.Configurations {
		if strings.TrimSpace(cfg) == "" {
			result = multierror.Append(result, fmt.Errorf("configuration #%d was empty", i))
		}
	}
	if c.PollInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("pollInterval must not be negative"))
	}
	if c.ErrorTolerance < 0 {
		result = multierror.Append(result, fmt.Errorf("errorTolerance must not be negative, but had %d", c.ErrorTolerance))
	}
	if _, err := order.New(c.Order); err != nil {
		result = multierror.Append(result, err)
	}
	switch c.Registry.Kind {
	case "", RegistryMemory:
	case RegistryFs:
		if c.Registry.URL == "" {
			result = multierror.Append(result, fmt.Errorf("registry.url is required for the %s registry", RegistryFs))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported registry kind: %s", c.Registry.Kind))
	}
	return result.ErrorOrNil()
}

// LoadConfig reads a YAML (or JSON) config from any afs supported URL
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download config %s: %w", URL, err)
	}
	return DecodeConfig(data)
}

// DecodeConfig decodes a YAML (or JSON) config and applies defaults
func DecodeConfig(data []byte) (*Config, error) {
	ret := &Config{}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	ret.Init()
	return ret, nil
}

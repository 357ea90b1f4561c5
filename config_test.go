package opflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/opflow/model"
)

const sampleConfig = `
operations:
  - name: prepare
    maxParallel: 4
    command: ./prepare.sh ${config}
    marker: /data/${config}/prepare.done
  - name: train
    maxParallel: 2
    command: python train.py --config ${config} --gpu ${slot}
    timeout: 2h
configurations: ["1", "2", "10"]
pollInterval: 5s
errorTolerance: 2
order: numeric-desc
registry:
  kind: fs
  url: /tmp/opflow/registry
shell:
  host: ssh://gpu-box:22
  credentials: /secrets/gpu-box.json
env:
  DATA_DIR: /data
log:
  level: debug
  file: /tmp/opflow.log
`

func TestDecodeConfig(t *testing.T) {
	config, err := DecodeConfig([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, []*model.Operation{
		{Name: "prepare", MaxParallel: 4, Command: "./prepare.sh ${config}", Marker: "/data/${config}/prepare.done"},
		{Name: "train", MaxParallel: 2, Command: "python train.py --config ${config} --gpu ${slot}", Timeout: 2 * time.Hour},
	}, config.Operations)
	assert.Equal(t, []string{"1", "2", "10"}, config.Configurations)
	assert.Equal(t, 5*time.Second, config.PollInterval)
	assert.Equal(t, 2, config.ErrorTolerance)
	assert.Equal(t, "numeric-desc", config.Order)
	assert.Equal(t, RegistryConfig{Kind: RegistryFs, URL: "/tmp/opflow/registry"}, config.Registry)
	assert.Equal(t, "ssh://gpu-box:22", config.Shell.Host)
	assert.Equal(t, "/secrets/gpu-box.json", config.Shell.Credentials)
	assert.Equal(t, 24*time.Hour, config.Shell.Timeout)
	assert.Equal(t, map[string]string{"DATA_DIR": "/data"}, config.Env)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)
	assert.Equal(t, 5, config.Log.MaxSizeMB)
}

func TestDecodeConfig_Defaults(t *testing.T) {
	config, err := DecodeConfig([]byte("operations:\n  - name: a\n    maxParallel: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, config.PollInterval)
	assert.Equal(t, 3, config.ErrorTolerance)
	assert.Equal(t, "identity", config.Order)
	assert.Equal(t, RegistryMemory, config.Registry.Kind)
	assert.NoError(t, config.Validate())
}

func TestDecodeConfig_ZeroToleranceSelectsDefault(t *testing.T) {
	config, err := DecodeConfig([]byte("operations:\n  - name: a\n    maxParallel: 1\nerrorTolerance: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, config.ErrorTolerance)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		config := &Config{
			Operations:     []*model.Operation{{Name: "a", MaxParallel: 1}, {Name: "b", MaxParallel: 2}},
			Configurations: []string{"x"},
		}
		config.Init()
		return config
	}
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no operations", mutate: func(c *Config) { c.Operations = nil }, wantErr: "operations were empty"},
		{name: "zero max parallel", mutate: func(c *Config) { c.Operations[0].MaxParallel = 0 }, wantErr: "maxParallel must be >= 1"},
		{name: "duplicate operation", mutate: func(c *Config) { c.Operations[1].Name = "a" }, wantErr: "duplicate operation: a"},
		{name: "empty configuration", mutate: func(c *Config) { c.Configurations = []string{" "} }, wantErr: "configuration #0 was empty"},
		{name: "unknown order", mutate: func(c *Config) { c.Order = "random" }, wantErr: "unsupported order"},
		{name: "fs registry without url", mutate: func(c *Config) { c.Registry.Kind = RegistryFs }, wantErr: "registry.url is required"},
		{name: "unknown registry", mutate: func(c *Config) { c.Registry.Kind = "redis" }, wantErr: "unsupported registry kind"},
		{name: "negative tolerance", mutate: func(c *Config) { c.ErrorTolerance = -1 }, wantErr: "errorTolerance must not be negative"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := valid()
			tc.mutate(config)
			err := config.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	location := filepath.Join(t.TempDir(), "opflow.yaml")
	require.NoError(t, os.WriteFile(location, []byte(sampleConfig), 0o644))
	config, err := LoadConfig(context.Background(), location)
	require.NoError(t, err)
	assert.Len(t, config.Operations, 2)

	_, err = LoadConfig(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

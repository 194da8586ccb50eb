package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the unprefixed variables a developer shell may carry
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"AWS_REGION", "APP_TAG", "ADOT_TAG"} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	assert.Equal(t, "ap-northeast-1", cfg.Region)
	assert.Equal(t, "latest", cfg.Images.AppTag)
	assert.Equal(t, "latest", cfg.Images.ADOTTag)
	assert.Equal(t, 1, cfg.Network.NATGateways)
	assert.Equal(t, "/healthcheck", cfg.LoadBalancer.HealthCheck.Path)
	assert.Equal(t, 8080, cfg.Task.ContainerPort)
	assert.Equal(t, 80, cfg.LoadBalancer.ListenerPort)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("APP_TAG", "v1.4.2")
	t.Setenv("ADOT_TAG", "v0.40.0")
	t.Setenv("APPSIGNALS_NETWORK_MAX_AZS", "3")
	t.Setenv("APPSIGNALS_SCALING_SCALE_IN_COOLDOWN", "2m")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfg.Region)
	assert.Equal(t, "v1.4.2", cfg.Images.AppTag)
	assert.Equal(t, "v0.40.0", cfg.Images.ADOTTag)
	assert.Equal(t, 3, cfg.Network.MaxAZs)
	assert.Equal(t, 2*time.Minute, cfg.Scaling.ScaleInCooldown)
}

func TestLoadPrefixedWinsOverLegacyName(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("APPSIGNALS_REGION", "eu-west-1")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_TAG", "from-env")

	path := filepath.Join(t.TempDir(), "appsignals.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stack-name: DemoStack
images:
  app-tag: from-file
  app-repository: 123456789012.dkr.ecr.ap-northeast-1.amazonaws.com/dice-server
network:
  max-azs: 3
load-balancer:
  health-check:
    interval: 20s
    timeout: 5s
scaling:
  max-capacity: 8
`), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "DemoStack", cfg.StackName)
	assert.Equal(t, "123456789012.dkr.ecr.ap-northeast-1.amazonaws.com/dice-server", cfg.Images.AppRepository)
	assert.Equal(t, 3, cfg.Network.MaxAZs)
	assert.Equal(t, 20*time.Second, cfg.LoadBalancer.HealthCheck.Interval)
	assert.Equal(t, 5*time.Second, cfg.LoadBalancer.HealthCheck.Timeout)
	assert.Equal(t, 8, cfg.Scaling.MaxCapacity)

	// Environment beats the file
	assert.Equal(t, "from-env", cfg.Images.AppTag)

	// Untouched keys keep their defaults
	assert.Equal(t, "/healthcheck", cfg.LoadBalancer.HealthCheck.Path)
	assert.Equal(t, 4, cfg.LoadBalancer.HealthCheck.UnhealthyThreshold)
	assert.Equal(t, 1, cfg.Scaling.MinCapacity)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no stack name", mutate: func(c *Config) { c.StackName = "" }, errMsg: "stack-name"},
		{name: "two NAT gateways", mutate: func(c *Config) { c.Network.NATGateways = 2 }, errMsg: "nat-gateways must be 1"},
		{name: "zero AZs", mutate: func(c *Config) { c.Network.MaxAZs = 0 }, errMsg: "max-azs"},
		{name: "bad architecture", mutate: func(c *Config) { c.Task.Architecture = "ppc64" }, errMsg: "architecture"},
		{name: "listener port", mutate: func(c *Config) { c.LoadBalancer.ListenerPort = 0 }, errMsg: "listener-port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.errMsg)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("APPSIGNALS_NETWORK_NAT_GATEWAYS", "2")

	_, err := Load(viper.New(), "")
	assert.ErrorContains(t, err, "nat-gateways must be 1")
}

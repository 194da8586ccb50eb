package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix namespaces every environment override (APPSIGNALS_NETWORK_MAX_AZS, ...)
	EnvPrefix = "APPSIGNALS"

	DefaultRegion = "ap-northeast-1"
	DefaultTag    = "latest"
)

// Config is resolved once at startup and handed to every composer.
// Composers never read the environment themselves.
type Config struct {
	Region      string `mapstructure:"region"`
	StackName   string `mapstructure:"stack-name"`
	ServiceName string `mapstructure:"service-name"`
	Environment string `mapstructure:"environment"`
	DataDir     string `mapstructure:"data-dir"`

	Images       Images       `mapstructure:"images"`
	Network      Network      `mapstructure:"network"`
	Task         Task         `mapstructure:"task"`
	LoadBalancer LoadBalancer `mapstructure:"load-balancer"`
	Scaling      Scaling      `mapstructure:"scaling"`
	Canary       Canary       `mapstructure:"canary"`
	Log          Log          `mapstructure:"log"`
}

// Images holds the container image coordinates
type Images struct {
	AppRepository     string `mapstructure:"app-repository"`
	AppTag            string `mapstructure:"app-tag"`
	ADOTRepository    string `mapstructure:"adot-repository"`
	ADOTTag           string `mapstructure:"adot-tag"`
	CWAgentRepository string `mapstructure:"cw-agent-repository"`
	CWAgentTag        string `mapstructure:"cw-agent-tag"`
}

// Network sizes the VPC
type Network struct {
	CIDR        string `mapstructure:"cidr"`
	MaxAZs      int    `mapstructure:"max-azs"`
	NATGateways int    `mapstructure:"nat-gateways"`
}

// Task sizes the Fargate task and its containers
type Task struct {
	CPU           int    `mapstructure:"cpu"`
	Memory        int    `mapstructure:"memory"`
	Architecture  string `mapstructure:"architecture"`
	ContainerPort int    `mapstructure:"container-port"`

	AppCPU        int `mapstructure:"app-cpu"`
	AppMemory     int `mapstructure:"app-memory"`
	ADOTCPU       int `mapstructure:"adot-cpu"`
	ADOTMemory    int `mapstructure:"adot-memory"`
	CWAgentCPU    int `mapstructure:"cw-agent-cpu"`
	CWAgentMemory int `mapstructure:"cw-agent-memory"`

	LogRetentionDays int `mapstructure:"log-retention-days"`
}

// LoadBalancer configures the listener and target health checks
type LoadBalancer struct {
	ListenerPort int         `mapstructure:"listener-port"`
	HealthCheck  HealthCheck `mapstructure:"health-check"`
}

// HealthCheck mirrors types.HealthCheckPolicy in configuration form
type HealthCheck struct {
	Path               string        `mapstructure:"path"`
	StatusCodes        []int         `mapstructure:"status-codes"`
	Interval           time.Duration `mapstructure:"interval"`
	Timeout            time.Duration `mapstructure:"timeout"`
	HealthyThreshold   int           `mapstructure:"healthy-threshold"`
	UnhealthyThreshold int           `mapstructure:"unhealthy-threshold"`
}

// Scaling configures the service's target-tracking policy
type Scaling struct {
	DesiredCount     int           `mapstructure:"desired-count"`
	MinCapacity      int           `mapstructure:"min-capacity"`
	MaxCapacity      int           `mapstructure:"max-capacity"`
	TargetCPUPercent float64       `mapstructure:"target-cpu-percent"`
	ScaleInCooldown  time.Duration `mapstructure:"scale-in-cooldown"`
	ScaleOutCooldown time.Duration `mapstructure:"scale-out-cooldown"`
}

// Canary configures the synthetic monitor
type Canary struct {
	Name                  string `mapstructure:"name"`
	Schedule              string `mapstructure:"schedule"`
	RuntimeVersion        string `mapstructure:"runtime-version"`
	Handler               string `mapstructure:"handler"`
	Path                  string `mapstructure:"path"`
	ServiceTag            string `mapstructure:"service-tag"`
	AssetPath             string `mapstructure:"asset-path"`
	AssetBucket           string `mapstructure:"asset-bucket"`
	ArtifactRetentionDays int    `mapstructure:"artifact-retention-days"`
}

// Log configures the process logger
type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Default returns the configuration of the reference deployment
func Default() Config {
	return Config{
		Region:      DefaultRegion,
		StackName:   "AppSignalsStack",
		ServiceName: "dice-server",
		Environment: "ecs",
		DataDir:     ".appsignals",
		Images: Images{
			AppRepository:     "dice-server",
			AppTag:            DefaultTag,
			ADOTRepository:    "public.ecr.aws/aws-observability/aws-otel-collector",
			ADOTTag:           DefaultTag,
			CWAgentRepository: "public.ecr.aws/cloudwatch-agent/cloudwatch-agent",
			CWAgentTag:        DefaultTag,
		},
		Network: Network{
			CIDR:        "10.0.0.0/16",
			MaxAZs:      2,
			NATGateways: 1,
		},
		Task: Task{
			CPU:              1024,
			Memory:           2048,
			Architecture:     "ARM64",
			ContainerPort:    8080,
			AppCPU:           512,
			AppMemory:        1024,
			ADOTCPU:          256,
			ADOTMemory:       512,
			CWAgentCPU:       128,
			CWAgentMemory:    256,
			LogRetentionDays: 7,
		},
		LoadBalancer: LoadBalancer{
			ListenerPort: 80,
			HealthCheck: HealthCheck{
				Path:               "/healthcheck",
				StatusCodes:        []int{200},
				Interval:           30 * time.Second,
				Timeout:            15 * time.Second,
				HealthyThreshold:   2,
				UnhealthyThreshold: 4,
			},
		},
		Scaling: Scaling{
			DesiredCount:     1,
			MinCapacity:      1,
			MaxCapacity:      4,
			TargetCPUPercent: 70,
			ScaleInCooldown:  60 * time.Second,
			ScaleOutCooldown: 60 * time.Second,
		},
		Canary: Canary{
			Name:                  "dice-server-canary",
			Schedule:              "rate(5 minutes)",
			RuntimeVersion:        "syn-nodejs-puppeteer-9.1",
			Handler:               "index.handler",
			Path:                  "/",
			ServiceTag:            "dice-server-canary",
			AssetPath:             "assets/canary",
			ArtifactRetentionDays: 30,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file, the
// environment and any flags already bound to v. Later sources win.
func Load(v *viper.Viper, file string) (Config, error) {
	cfg := Default()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Unprefixed names honoured for compatibility with existing pipelines
	_ = v.BindEnv("region", EnvPrefix+"_REGION", "AWS_REGION")
	_ = v.BindEnv("images.app-tag", EnvPrefix+"_IMAGES_APP_TAG", "APP_TAG")
	_ = v.BindEnv("images.adot-tag", EnvPrefix+"_IMAGES_ADOT_TAG", "ADOT_TAG")

	// AutomaticEnv only resolves keys viper already knows about
	for _, key := range knownKeys {
		_ = v.BindEnv(key)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Empty values fall back to the documented defaults
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Images.AppTag == "" {
		cfg.Images.AppTag = DefaultTag
	}
	if cfg.Images.ADOTTag == "" {
		cfg.Images.ADOTTag = DefaultTag
	}
	if cfg.Images.CWAgentTag == "" {
		cfg.Images.CWAgentTag = DefaultTag
	}

	return cfg, cfg.Validate()
}

var knownKeys = []string{
	"stack-name", "service-name", "environment", "data-dir",
	"images.app-repository", "images.adot-repository", "images.cw-agent-repository", "images.cw-agent-tag",
	"network.cidr", "network.max-azs", "network.nat-gateways",
	"task.cpu", "task.memory", "task.architecture", "task.container-port",
	"load-balancer.listener-port",
	"load-balancer.health-check.path", "load-balancer.health-check.interval", "load-balancer.health-check.timeout",
	"load-balancer.health-check.healthy-threshold", "load-balancer.health-check.unhealthy-threshold",
	"scaling.desired-count", "scaling.min-capacity", "scaling.max-capacity", "scaling.target-cpu-percent",
	"scaling.scale-in-cooldown", "scaling.scale-out-cooldown",
	"canary.name", "canary.schedule", "canary.asset-path", "canary.asset-bucket",
	"log.level", "log.json",
}

// Validate rejects configurations the composers cannot turn into a reachable graph
func (c Config) Validate() error {
	var errs []error

	if c.StackName == "" {
		errs = append(errs, errors.New("stack-name is required"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service-name is required"))
	}
	if c.Images.AppRepository == "" {
		errs = append(errs, errors.New("images.app-repository is required"))
	}
	if c.Network.MaxAZs < 1 {
		errs = append(errs, fmt.Errorf("network.max-azs must be at least 1, got %d", c.Network.MaxAZs))
	}
	// The topology shares a single NAT gateway across all private subnets
	if c.Network.NATGateways != 1 {
		errs = append(errs, fmt.Errorf("network.nat-gateways must be 1, got %d", c.Network.NATGateways))
	}
	switch c.Task.Architecture {
	case "ARM64", "X86_64":
	default:
		errs = append(errs, fmt.Errorf("task.architecture must be ARM64 or X86_64, got %q", c.Task.Architecture))
	}
	if c.Task.ContainerPort < 1 || c.Task.ContainerPort > 65535 {
		errs = append(errs, fmt.Errorf("task.container-port %d out of range", c.Task.ContainerPort))
	}
	if c.LoadBalancer.ListenerPort < 1 || c.LoadBalancer.ListenerPort > 65535 {
		errs = append(errs, fmt.Errorf("load-balancer.listener-port %d out of range", c.LoadBalancer.ListenerPort))
	}

	return errors.Join(errs...)
}

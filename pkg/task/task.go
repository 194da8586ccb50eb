package task

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/iam"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// Resource types declared by this package
const (
	TypeTaskDefinition = "AWS::ECS::TaskDefinition"
	TypeLogGroup       = "AWS::Logs::LogGroup"
)

const (
	TaskDefinitionID = "TaskDefinition"

	ADOTContainerName    = "adot"
	CWAgentContainerName = "cw-agent"

	adotDefaultConfig = "--config=/etc/ecs/ecs-default-config.yaml"
)

// Compose assembles the task template: the application container plus the
// collector and CloudWatch agent sidecars. The application waits for both
// sidecars to have started, not to be healthy; exports that fail in the
// short window before the sidecars listen are dropped.
func Compose(cfg config.Config, roles iam.TaskRoles) (*types.TaskTemplate, error) {
	appEnv, err := MergeEnv([]types.EnvVar{portEnv(cfg.Task.ContainerPort)}, ApplicationEnv(cfg))
	if err != nil {
		return nil, err
	}

	app := &types.ContainerSpec{
		Name:              cfg.ServiceName,
		Image:             types.ImageRef{Repository: cfg.Images.AppRepository, Tag: cfg.Images.AppTag},
		Essential:         true,
		CPU:               cfg.Task.AppCPU,
		MemoryReservation: cfg.Task.AppMemory,
		PortMappings: []*types.PortMapping{
			{Name: "http", ContainerPort: cfg.Task.ContainerPort, Protocol: "tcp"},
		},
		Environment: appEnv,
		Log:         &types.LogDestination{LogGroupID: logGroupID(cfg.ServiceName), StreamPrefix: cfg.ServiceName},
		DependsOn: []types.ContainerDependency{
			{Container: ADOTContainerName, Condition: types.DependencyStart},
			{Container: CWAgentContainerName, Condition: types.DependencyStart},
		},
	}

	adot := &types.ContainerSpec{
		Name:              ADOTContainerName,
		Image:             types.ImageRef{Repository: cfg.Images.ADOTRepository, Tag: cfg.Images.ADOTTag},
		CPU:               cfg.Task.ADOTCPU,
		MemoryReservation: cfg.Task.ADOTMemory,
		Command:           []string{adotDefaultConfig},
		PortMappings: []*types.PortMapping{
			{Name: "otlp-grpc", ContainerPort: ADOTGRPCPort, Protocol: "tcp"},
			{Name: "otlp-http", ContainerPort: ADOTHTTPPort, Protocol: "tcp"},
		},
		Log: &types.LogDestination{LogGroupID: logGroupID(ADOTContainerName), StreamPrefix: ADOTContainerName},
	}

	cwAgent := &types.ContainerSpec{
		Name:              CWAgentContainerName,
		Image:             types.ImageRef{Repository: cfg.Images.CWAgentRepository, Tag: cfg.Images.CWAgentTag},
		CPU:               cfg.Task.CWAgentCPU,
		MemoryReservation: cfg.Task.CWAgentMemory,
		Environment:       []types.EnvVar{{Name: EnvCWAgentConfig, Value: cwAgentApplicationSignals}},
		PortMappings: []*types.PortMapping{
			{Name: "signals", ContainerPort: CWAgentOTLPPort, Protocol: "tcp"},
			{Name: "xray", ContainerPort: CWAgentXRayPort, Protocol: "udp"},
		},
		Log: &types.LogDestination{LogGroupID: logGroupID(CWAgentContainerName), StreamPrefix: CWAgentContainerName},
	}

	tmpl := &types.TaskTemplate{
		LogicalID:       TaskDefinitionID,
		Family:          cfg.StackName + "-" + cfg.ServiceName,
		CPU:             cfg.Task.CPU,
		Memory:          cfg.Task.Memory,
		Architecture:    types.CPUArchitecture(cfg.Task.Architecture),
		OSFamily:        types.OSFamilyLinux,
		ExecutionRoleID: roles.Execution.LogicalID,
		TaskRoleID:      roles.Task.LogicalID,
		Containers:      []*types.ContainerSpec{app, adot, cwAgent},
	}

	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("task template %s: %w", tmpl.LogicalID, err)
	}
	return tmpl, nil
}

// AppContainer returns the essential container that serves traffic
func AppContainer(tmpl *types.TaskTemplate) *types.ContainerSpec {
	for _, c := range tmpl.Containers {
		if c.Essential && len(c.PortMappings) > 0 {
			return c
		}
	}
	return nil
}

// Declare adds the task definition and one log group per container
func Declare(g *graph.Graph, tmpl *types.TaskTemplate, retentionDays int) error {
	logger := log.WithComponent("task")

	var errs []error
	containers := make([]any, 0, len(tmpl.Containers))
	for _, c := range tmpl.Containers {
		if c.Log != nil {
			errs = append(errs, g.AddNode(&graph.Node{
				ID:             c.Log.LogGroupID,
				Type:           TypeLogGroup,
				Properties:     map[string]any{"RetentionInDays": retentionDays},
				DeletionPolicy: "Delete",
			}))
		}
		containers = append(containers, containerDefinition(c))
		logger.Debug().Str("container", c.Name).Str("image", c.Image.String()).Msg("container declared")
	}

	errs = append(errs, g.AddNode(&graph.Node{
		ID:   tmpl.LogicalID,
		Type: TypeTaskDefinition,
		Properties: map[string]any{
			"Family":                  tmpl.Family,
			"Cpu":                     strconv.Itoa(tmpl.CPU),
			"Memory":                  strconv.Itoa(tmpl.Memory),
			"NetworkMode":             "awsvpc",
			"RequiresCompatibilities": []any{"FARGATE"},
			"RuntimePlatform": map[string]any{
				"OperatingSystemFamily": string(tmpl.OSFamily),
				"CpuArchitecture":       string(tmpl.Architecture),
			},
			"ExecutionRoleArn":     graph.Attr{ID: tmpl.ExecutionRoleID, Name: "Arn"},
			"TaskRoleArn":          graph.Attr{ID: tmpl.TaskRoleID, Name: "Arn"},
			"ContainerDefinitions": containers,
		},
	}))

	return errors.Join(errs...)
}

func containerDefinition(c *types.ContainerSpec) map[string]any {
	def := map[string]any{
		"Name":      c.Name,
		"Image":     c.Image.String(),
		"Essential": c.Essential,
	}
	if c.CPU > 0 {
		def["Cpu"] = c.CPU
	}
	if c.MemoryReservation > 0 {
		def["MemoryReservation"] = c.MemoryReservation
	}
	if len(c.Command) > 0 {
		cmd := make([]any, len(c.Command))
		for i, arg := range c.Command {
			cmd[i] = arg
		}
		def["Command"] = cmd
	}
	if len(c.PortMappings) > 0 {
		ports := make([]any, 0, len(c.PortMappings))
		for _, p := range c.PortMappings {
			ports = append(ports, map[string]any{
				"Name":          c.Name + "-" + p.Name,
				"ContainerPort": p.ContainerPort,
				"Protocol":      p.Protocol,
			})
		}
		def["PortMappings"] = ports
	}
	if len(c.Environment) > 0 {
		env := make([]any, 0, len(c.Environment))
		for _, e := range c.Environment {
			env = append(env, map[string]any{"Name": e.Name, "Value": e.Value})
		}
		def["Environment"] = env
	}
	if c.Log != nil {
		def["LogConfiguration"] = map[string]any{
			"LogDriver": "awslogs",
			"Options": map[string]any{
				"awslogs-group":         graph.Ref{ID: c.Log.LogGroupID},
				"awslogs-region":        graph.PseudoRegion,
				"awslogs-stream-prefix": c.Log.StreamPrefix,
			},
		}
	}
	if len(c.DependsOn) > 0 {
		deps := make([]any, 0, len(c.DependsOn))
		for _, d := range c.DependsOn {
			deps = append(deps, map[string]any{"ContainerName": d.Container, "Condition": string(d.Condition)})
		}
		def["DependsOn"] = deps
	}
	return def
}

func logGroupID(container string) string {
	id := make([]rune, 0, len(container))
	upper := true
	for _, r := range container {
		if r == '-' || r == '_' || r == '.' {
			upper = true
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		id = append(id, r)
	}
	return string(id) + "LogGroup"
}

package stack

import (
	"errors"
	"fmt"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/autoscaling"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/canary"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/iam"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/loadbalancer"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/metrics"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/task"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/topology"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// Output names reported by the engine after a deployment
const (
	OutputLoadBalancerDNS = "LoadBalancerDNS"
	OutputServiceURL      = "ServiceURL"
	OutputClusterName     = "ClusterName"
	OutputServiceName     = "ServiceName"
	OutputCanaryName      = "CanaryName"
)

// Stack is the synthesized deployment: the resource graph plus the
// descriptors it was declared from
type Stack struct {
	Name    string
	Region  string
	Graph   *graph.Graph
	Network *types.NetworkDescriptor
	Cluster *types.ClusterDescriptor
	Roles   iam.TaskRoles
	Task    *types.TaskTemplate
	Service *types.ServiceDescriptor
	Canary  *types.CanaryDescriptor
}

// Synthesize runs every composer in order and validates the resulting graph.
// It is a single synchronous pass; any declaration error aborts it.
func Synthesize(cfg config.Config, code types.CodeLocation) (*Stack, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SynthesisDuration)

	logger := log.WithStack(cfg.StackName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Stack{Name: cfg.StackName, Region: cfg.Region, Graph: graph.New()}
	g := s.Graph

	network, err := topology.BuildNetwork(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to build network: %w", err)
	}
	s.Network = network
	s.Cluster = topology.BuildCluster(cfg, network)
	if err := topology.Declare(g, s.Network, s.Cluster); err != nil {
		return nil, fmt.Errorf("failed to declare network: %w", err)
	}

	s.Roles = iam.ComposeTaskRoles()
	canaryRole := iam.ComposeCanaryRole(canary.ArtifactBucketID)
	if err := iam.Declare(g, s.Roles.Execution, s.Roles.Task, canaryRole); err != nil {
		return nil, fmt.Errorf("failed to declare roles: %w", err)
	}

	s.Task, err = task.Compose(cfg, s.Roles)
	if err != nil {
		return nil, fmt.Errorf("failed to compose task: %w", err)
	}
	if err := task.Declare(g, s.Task, cfg.Task.LogRetentionDays); err != nil {
		return nil, fmt.Errorf("failed to declare task: %w", err)
	}

	s.Service, err = loadbalancer.Bind(cfg, s.Cluster, s.Task)
	if err != nil {
		return nil, fmt.Errorf("failed to bind load balancer: %w", err)
	}
	if err := autoscaling.Bind(s.Service, autoscaling.PolicyFromConfig(cfg.Scaling)); err != nil {
		return nil, fmt.Errorf("failed to bind scaling policy: %w", err)
	}
	if err := loadbalancer.Declare(g, s.Network, s.Service); err != nil {
		return nil, fmt.Errorf("failed to declare service: %w", err)
	}
	if err := autoscaling.Declare(g, s.Service); err != nil {
		return nil, fmt.Errorf("failed to declare scaling: %w", err)
	}

	// Tasks must not start before their roles carry the telemetry permissions
	var errs []error
	for _, role := range []*types.RoleDescriptor{s.Roles.Execution, s.Roles.Task} {
		for _, policy := range role.Inline {
			errs = append(errs, g.DependOn(s.Service.LogicalID, policy.LogicalID))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to order service after role policies: %w", err)
	}

	s.Canary, err = canary.Compose(cfg, s.Service, canaryRole.LogicalID, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compose canary: %w", err)
	}
	if err := canary.Declare(g, s.Canary, cfg.Canary.ArtifactRetentionDays); err != nil {
		return nil, fmt.Errorf("failed to declare canary: %w", err)
	}

	s.declareOutputs()

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resource graph: %w", err)
	}

	for typ, n := range g.CountByType() {
		metrics.ResourcesSynthesized.WithLabelValues(typ).Set(float64(n))
	}
	logger.Debug().Int("resources", g.Len()).Msg("stack synthesized")

	return s, nil
}

func (s *Stack) declareOutputs() {
	lbID := s.Service.LoadBalancer.LoadBalancerID
	s.Graph.AddOutput(graph.Output{
		Name:        OutputLoadBalancerDNS,
		Description: "DNS name of the public load balancer",
		Value:       graph.Attr{ID: lbID, Name: "DNSName"},
	})
	s.Graph.AddOutput(graph.Output{
		Name:        OutputServiceURL,
		Description: "URL probed by the canary",
		Value:       canary.URL(s.Canary.Endpoint),
	})
	s.Graph.AddOutput(graph.Output{
		Name:  OutputClusterName,
		Value: graph.Ref{ID: s.Cluster.LogicalID},
	})
	s.Graph.AddOutput(graph.Output{
		Name:  OutputServiceName,
		Value: graph.Attr{ID: s.Service.LogicalID, Name: "Name"},
	})
	s.Graph.AddOutput(graph.Output{
		Name:  OutputCanaryName,
		Value: graph.Ref{ID: s.Canary.LogicalID},
	})
}

package loadbalancer

import (
	"errors"
	"testing"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/iam"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/task"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/topology"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	cfg     config.Config
	network *types.NetworkDescriptor
	cluster *types.ClusterDescriptor
	tmpl    *types.TaskTemplate
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}

	network, err := topology.BuildNetwork(cfg.Network)
	require.NoError(t, err)
	tmpl, err := task.Compose(cfg, iam.ComposeTaskRoles())
	require.NoError(t, err)

	return &fixture{cfg: cfg, network: network, cluster: topology.BuildCluster(cfg, network), tmpl: tmpl}
}

func TestBindProbesContainerPort(t *testing.T) {
	f := newFixture(t, nil)

	svc, err := Bind(f.cfg, f.cluster, f.tmpl)
	require.NoError(t, err)
	require.NotNil(t, svc.LoadBalancer)

	assert.Equal(t, 80, svc.LoadBalancer.ListenerPort)
	assert.Equal(t, 8080, svc.LoadBalancer.ContainerPort)
	assert.Equal(t, 8080, svc.LoadBalancer.HealthCheck.Port)
	assert.Equal(t, "dice-server", svc.LoadBalancer.ContainerName)
	assert.Equal(t, "/healthcheck", svc.LoadBalancer.HealthCheck.Path)
	assert.False(t, svc.AssignPublicIP)
}

func TestBindRejectsInvalidHealthCheck(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.LoadBalancer.HealthCheck.Timeout = c.LoadBalancer.HealthCheck.Interval
	})

	_, err := Bind(f.cfg, f.cluster, f.tmpl)
	assert.True(t, errors.Is(err, types.ErrInvalid), "got %v", err)
}

func TestBindRejectsFractionalHealthCheckTiming(t *testing.T) {
	// 15.9s would be emitted as 15, equal to the timeout
	f := newFixture(t, func(c *config.Config) {
		c.LoadBalancer.HealthCheck.Interval = 15900 * time.Millisecond
		c.LoadBalancer.HealthCheck.Timeout = 15 * time.Second
	})

	_, err := Bind(f.cfg, f.cluster, f.tmpl)
	assert.True(t, errors.Is(err, types.ErrInvalid), "got %v", err)
}

func TestBindRequiresServingContainer(t *testing.T) {
	f := newFixture(t, nil)
	f.tmpl.Containers[0].PortMappings = nil

	_, err := Bind(f.cfg, f.cluster, f.tmpl)
	assert.True(t, errors.Is(err, types.ErrInvalid), "got %v", err)
}

func declare(t *testing.T, f *fixture) *graph.Graph {
	t.Helper()
	svc, err := Bind(f.cfg, f.cluster, f.tmpl)
	require.NoError(t, err)

	g := graph.New()
	require.NoError(t, Declare(g, f.network, svc))
	return g
}

func TestDeclareTargetGroup(t *testing.T) {
	g := declare(t, newFixture(t, nil))

	tg, ok := g.Node(TargetGroupID)
	require.True(t, ok)
	assert.Equal(t, "8080", tg.Properties["HealthCheckPort"])
	assert.Equal(t, "/healthcheck", tg.Properties["HealthCheckPath"])
	assert.Equal(t, 30, tg.Properties["HealthCheckIntervalSeconds"])
	assert.Equal(t, 15, tg.Properties["HealthCheckTimeoutSeconds"])
	assert.Equal(t, 2, tg.Properties["HealthyThresholdCount"])
	assert.Equal(t, 4, tg.Properties["UnhealthyThresholdCount"])
	assert.Equal(t, "ip", tg.Properties["TargetType"])
	assert.Equal(t, map[string]any{"HttpCode": "200"}, tg.Properties["Matcher"])

	listener, ok := g.Node(ListenerID)
	require.True(t, ok)
	assert.Equal(t, 80, listener.Properties["Port"])
	assert.True(t, g.HasDependency(ListenerID, TargetGroupID))
	assert.True(t, g.HasDependency(ListenerID, LoadBalancerID))
}

func TestDeclareHealthCheckFollowsConfig(t *testing.T) {
	g := declare(t, newFixture(t, func(c *config.Config) {
		c.LoadBalancer.ListenerPort = 8000
		c.LoadBalancer.HealthCheck.Interval = 10 * time.Second
		c.LoadBalancer.HealthCheck.Timeout = 5 * time.Second
		c.LoadBalancer.HealthCheck.StatusCodes = []int{200, 204}
	}))

	tg, _ := g.Node(TargetGroupID)
	assert.Equal(t, "8080", tg.Properties["HealthCheckPort"])
	assert.Equal(t, 10, tg.Properties["HealthCheckIntervalSeconds"])
	assert.Equal(t, 5, tg.Properties["HealthCheckTimeoutSeconds"])
	assert.Equal(t, map[string]any{"HttpCode": "200,204"}, tg.Properties["Matcher"])

	sg, _ := g.Node(LoadBalancerSGID)
	ingress := sg.Properties["SecurityGroupIngress"].([]any)[0].(map[string]any)
	assert.Equal(t, 8000, ingress["FromPort"])
}

func TestDeclareService(t *testing.T) {
	f := newFixture(t, nil)
	g := declare(t, f)

	assert.Equal(t, []string{ListenerID}, g.ExplicitDependenciesOf(ServiceID))

	svc, ok := g.Node(ServiceID)
	require.True(t, ok)
	assert.Equal(t, "FARGATE", svc.Properties["LaunchType"])
	assert.Equal(t, 1, svc.Properties["DesiredCount"])

	awsvpc := svc.Properties["NetworkConfiguration"].(map[string]any)["AwsvpcConfiguration"].(map[string]any)
	assert.Equal(t, "DISABLED", awsvpc["AssignPublicIp"])

	var private []any
	for _, s := range f.network.PrivateSubnets() {
		private = append(private, graph.Ref{ID: s.LogicalID})
	}
	assert.Equal(t, private, awsvpc["Subnets"])

	lbs := svc.Properties["LoadBalancers"].([]any)
	require.Len(t, lbs, 1)
	assert.Equal(t, map[string]any{
		"ContainerName":  "dice-server",
		"ContainerPort":  8080,
		"TargetGroupArn": graph.Ref{ID: TargetGroupID},
	}, lbs[0])
}

func TestDeclareLoadBalancerInPublicSubnets(t *testing.T) {
	f := newFixture(t, nil)
	g := declare(t, f)

	lb, ok := g.Node(LoadBalancerID)
	require.True(t, ok)
	assert.Equal(t, "internet-facing", lb.Properties["Scheme"])

	var public []any
	for _, s := range f.network.PublicSubnets() {
		public = append(public, graph.Ref{ID: s.LogicalID})
	}
	assert.Equal(t, public, lb.Properties["Subnets"])

	// Only the load balancer reaches the tasks
	rule, ok := g.Node(serviceIngressFromLBID)
	require.True(t, ok)
	assert.Equal(t, graph.Attr{ID: LoadBalancerSGID, Name: "GroupId"}, rule.Properties["SourceSecurityGroupId"])
	assert.Equal(t, 8080, rule.Properties["FromPort"])
}

func TestDeclareWithoutBinding(t *testing.T) {
	f := newFixture(t, nil)
	err := Declare(graph.New(), f.network, &types.ServiceDescriptor{LogicalID: ServiceID})
	assert.True(t, errors.Is(err, types.ErrInvalid))
}

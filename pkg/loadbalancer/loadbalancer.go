package loadbalancer

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/task"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// Resource types declared by this package
const (
	TypeSecurityGroup = "AWS::EC2::SecurityGroup"
	TypeIngressRule   = "AWS::EC2::SecurityGroupIngress"
	TypeLoadBalancer  = "AWS::ElasticLoadBalancingV2::LoadBalancer"
	TypeListener      = "AWS::ElasticLoadBalancingV2::Listener"
	TypeTargetGroup   = "AWS::ElasticLoadBalancingV2::TargetGroup"
	TypeService       = "AWS::ECS::Service"
)

const (
	LoadBalancerID         = "LB"
	LoadBalancerSGID       = "LBSecurityGroup"
	ListenerID             = "LBPublicListener"
	TargetGroupID          = "LBPublicListenerECSGroup"
	ServiceID              = "Service"
	ServiceSGID            = "ServiceSecurityGroup"
	serviceIngressFromLBID = "ServiceSecurityGroupFromLB"

	healthCheckGracePeriod = 60
)

// Bind attaches the service to a load balancer. The health check probes the
// container port directly, so it keeps working whatever the listener port is.
func Bind(cfg config.Config, cluster *types.ClusterDescriptor, tmpl *types.TaskTemplate) (*types.ServiceDescriptor, error) {
	app := task.AppContainer(tmpl)
	if app == nil {
		return nil, fmt.Errorf("%w: task %s has no essential container with a port mapping", types.ErrInvalid, tmpl.LogicalID)
	}
	containerPort := app.PortMappings[0].ContainerPort

	hc := cfg.LoadBalancer.HealthCheck
	svc := &types.ServiceDescriptor{
		LogicalID:       ServiceID,
		Name:            cfg.ServiceName,
		ClusterID:       cluster.LogicalID,
		TaskID:          tmpl.LogicalID,
		DesiredCount:    cfg.Scaling.DesiredCount,
		AssignPublicIP:  false,
		SecurityGroupID: ServiceSGID,
		LoadBalancer: &types.LoadBalancerBinding{
			LoadBalancerID:  LoadBalancerID,
			SecurityGroupID: LoadBalancerSGID,
			ListenerID:      ListenerID,
			TargetGroupID:   TargetGroupID,
			ListenerPort:    cfg.LoadBalancer.ListenerPort,
			ContainerName:   app.Name,
			ContainerPort:   containerPort,
			HealthCheck: types.HealthCheckPolicy{
				Path:               hc.Path,
				StatusCodes:        append([]int(nil), hc.StatusCodes...),
				Interval:           hc.Interval,
				Timeout:            hc.Timeout,
				HealthyThreshold:   hc.HealthyThreshold,
				UnhealthyThreshold: hc.UnhealthyThreshold,
				Port:               containerPort,
			},
		},
	}

	if err := svc.Validate(); err != nil {
		return nil, fmt.Errorf("service %s: %w", svc.LogicalID, err)
	}
	return svc, nil
}

// Declare adds the load balancer, its listener and target group, both
// security groups and the service itself
func Declare(g *graph.Graph, network *types.NetworkDescriptor, svc *types.ServiceDescriptor) error {
	logger := log.WithComponent("loadbalancer")

	if svc.LoadBalancer == nil {
		return fmt.Errorf("%w: service %s has no load balancer binding", types.ErrInvalid, svc.LogicalID)
	}
	if err := svc.Validate(); err != nil {
		return err
	}
	lb := svc.LoadBalancer
	hc := lb.HealthCheck

	var errs []error
	add := func(n *graph.Node) {
		logger.Debug().Str("logical_id", n.ID).Str("resource_type", n.Type).Msg("resource declared")
		errs = append(errs, g.AddNode(n))
	}

	add(&graph.Node{
		ID:   lb.SecurityGroupID,
		Type: TypeSecurityGroup,
		Properties: map[string]any{
			"GroupDescription": "Load balancer for " + svc.Name,
			"VpcId":            graph.Ref{ID: network.LogicalID},
			"SecurityGroupIngress": []any{map[string]any{
				"CidrIp":      "0.0.0.0/0",
				"Description": "Allow from anyone on port " + strconv.Itoa(lb.ListenerPort),
				"FromPort":    lb.ListenerPort,
				"ToPort":      lb.ListenerPort,
				"IpProtocol":  "tcp",
			}},
		},
	})

	add(&graph.Node{
		ID:   svc.SecurityGroupID,
		Type: TypeSecurityGroup,
		Properties: map[string]any{
			"GroupDescription": "Tasks of " + svc.Name,
			"VpcId":            graph.Ref{ID: network.LogicalID},
			"SecurityGroupEgress": []any{map[string]any{
				"CidrIp":      "0.0.0.0/0",
				"Description": "Allow all outbound traffic by default",
				"IpProtocol":  "-1",
			}},
		},
	})

	// Only the load balancer may reach the container port
	add(&graph.Node{
		ID:   serviceIngressFromLBID,
		Type: TypeIngressRule,
		Properties: map[string]any{
			"GroupId":               graph.Attr{ID: svc.SecurityGroupID, Name: "GroupId"},
			"SourceSecurityGroupId": graph.Attr{ID: lb.SecurityGroupID, Name: "GroupId"},
			"Description":           "Load balancer to target",
			"FromPort":              lb.ContainerPort,
			"ToPort":                lb.ContainerPort,
			"IpProtocol":            "tcp",
		},
	})

	publicSubnets := make([]any, 0, len(network.PublicSubnets()))
	for _, s := range network.PublicSubnets() {
		publicSubnets = append(publicSubnets, graph.Ref{ID: s.LogicalID})
	}
	add(&graph.Node{
		ID:   lb.LoadBalancerID,
		Type: TypeLoadBalancer,
		Properties: map[string]any{
			"Type":           "application",
			"Scheme":         "internet-facing",
			"Subnets":        publicSubnets,
			"SecurityGroups": []any{graph.Attr{ID: lb.SecurityGroupID, Name: "GroupId"}},
			"LoadBalancerAttributes": []any{
				map[string]any{"Key": "deletion_protection.enabled", "Value": "false"},
			},
		},
	})

	add(&graph.Node{
		ID:   lb.TargetGroupID,
		Type: TypeTargetGroup,
		Properties: map[string]any{
			"Port":                       lb.ListenerPort,
			"Protocol":                   "HTTP",
			"TargetType":                 "ip",
			"VpcId":                      graph.Ref{ID: network.LogicalID},
			"HealthCheckPath":            hc.Path,
			"HealthCheckPort":            strconv.Itoa(hc.Port),
			"HealthCheckProtocol":        "HTTP",
			"HealthCheckIntervalSeconds": int(hc.Interval.Seconds()),
			"HealthCheckTimeoutSeconds":  int(hc.Timeout.Seconds()),
			"HealthyThresholdCount":      hc.HealthyThreshold,
			"UnhealthyThresholdCount":    hc.UnhealthyThreshold,
			"Matcher":                    map[string]any{"HttpCode": hc.Matcher()},
		},
	})

	add(&graph.Node{
		ID:   lb.ListenerID,
		Type: TypeListener,
		Properties: map[string]any{
			"LoadBalancerArn": graph.Ref{ID: lb.LoadBalancerID},
			"Port":            lb.ListenerPort,
			"Protocol":        "HTTP",
			"DefaultActions": []any{map[string]any{
				"Type":           "forward",
				"TargetGroupArn": graph.Ref{ID: lb.TargetGroupID},
			}},
		},
	})

	privateSubnets := make([]any, 0, len(network.PrivateSubnets()))
	for _, s := range network.PrivateSubnets() {
		privateSubnets = append(privateSubnets, graph.Ref{ID: s.LogicalID})
	}
	assignPublicIP := "DISABLED"
	if svc.AssignPublicIP {
		assignPublicIP = "ENABLED"
	}
	add(&graph.Node{
		ID:   svc.LogicalID,
		Type: TypeService,
		Properties: map[string]any{
			"ServiceName":                   svc.Name,
			"Cluster":                       graph.Ref{ID: svc.ClusterID},
			"TaskDefinition":                graph.Ref{ID: svc.TaskID},
			"LaunchType":                    "FARGATE",
			"DesiredCount":                  svc.DesiredCount,
			"HealthCheckGracePeriodSeconds": healthCheckGracePeriod,
			"DeploymentConfiguration": map[string]any{
				"MaximumPercent":        200,
				"MinimumHealthyPercent": 50,
			},
			"NetworkConfiguration": map[string]any{
				"AwsvpcConfiguration": map[string]any{
					"AssignPublicIp": assignPublicIP,
					"Subnets":        privateSubnets,
					"SecurityGroups": []any{graph.Attr{ID: svc.SecurityGroupID, Name: "GroupId"}},
				},
			},
			"LoadBalancers": []any{map[string]any{
				"ContainerName":  lb.ContainerName,
				"ContainerPort":  lb.ContainerPort,
				"TargetGroupArn": graph.Ref{ID: lb.TargetGroupID},
			}},
		},
	})

	if err := errors.Join(errs...); err != nil {
		return err
	}

	// A target group cannot be attached to a service until a listener forwards to it
	return g.DependOn(svc.LogicalID, lb.ListenerID)
}

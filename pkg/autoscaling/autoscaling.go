package autoscaling

import (
	"errors"
	"fmt"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// Resource types declared by this package
const (
	TypeScalableTarget = "AWS::ApplicationAutoScaling::ScalableTarget"
	TypeScalingPolicy  = "AWS::ApplicationAutoScaling::ScalingPolicy"
)

const (
	ScalableTargetID = "ServiceTaskCountTarget"
	ScalingPolicyID  = "ServiceTaskCountTargetCpuScaling"

	scalableDimension = "ecs:service:DesiredCount"
	cpuMetric         = "ECSServiceAverageCPUUtilization"
	serviceLinkedRole = "/aws-service-role/ecs.application-autoscaling.amazonaws.com/AWSServiceRoleForApplicationAutoScaling_ECSService"
)

// PolicyFromConfig converts the configured scaling settings into a policy
func PolicyFromConfig(cfg config.Scaling) types.ScalingPolicy {
	return types.ScalingPolicy{
		MinCapacity:      cfg.MinCapacity,
		MaxCapacity:      cfg.MaxCapacity,
		TargetCPUPercent: cfg.TargetCPUPercent,
		ScaleInCooldown:  cfg.ScaleInCooldown,
		ScaleOutCooldown: cfg.ScaleOutCooldown,
	}
}

// Bind attaches the policy to the service. A desired count outside the
// capacity range is rejected rather than clamped: the engine would otherwise
// silently start the service at a different size than declared.
func Bind(svc *types.ServiceDescriptor, policy types.ScalingPolicy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("service %s: %w", svc.LogicalID, err)
	}
	if svc.DesiredCount < policy.MinCapacity || svc.DesiredCount > policy.MaxCapacity {
		return fmt.Errorf("%w: service %s: desired count %d outside scaling range [%d, %d]",
			types.ErrInvalid, svc.LogicalID, svc.DesiredCount, policy.MinCapacity, policy.MaxCapacity)
	}

	p := policy
	svc.Scaling = &p
	svc.ScalableTargetID = ScalableTargetID
	return nil
}

// Declare adds the scalable target and its target-tracking policy
func Declare(g *graph.Graph, svc *types.ServiceDescriptor) error {
	if svc.Scaling == nil {
		return fmt.Errorf("%w: service %s has no scaling policy bound", types.ErrInvalid, svc.LogicalID)
	}
	policy := svc.Scaling

	logger := log.WithComponent("autoscaling")
	logger.Debug().
		Str("service", svc.LogicalID).
		Int("min", policy.MinCapacity).
		Int("max", policy.MaxCapacity).
		Float64("target_cpu", policy.TargetCPUPercent).
		Msg("scaling declared")

	var errs []error
	errs = append(errs, g.AddNode(&graph.Node{
		ID:   svc.ScalableTargetID,
		Type: TypeScalableTarget,
		Properties: map[string]any{
			"MinCapacity":       policy.MinCapacity,
			"MaxCapacity":       policy.MaxCapacity,
			"ScalableDimension": scalableDimension,
			"ServiceNamespace":  "ecs",
			"ResourceId": graph.Join{Parts: []any{
				"service/", graph.Ref{ID: svc.ClusterID}, "/", graph.Attr{ID: svc.LogicalID, Name: "Name"},
			}},
			"RoleARN": graph.Join{Parts: []any{
				"arn:", graph.PseudoPartition, ":iam::", graph.PseudoAccountID, ":role", serviceLinkedRole,
			}},
		},
	}))

	errs = append(errs, g.AddNode(&graph.Node{
		ID:   ScalingPolicyID,
		Type: TypeScalingPolicy,
		Properties: map[string]any{
			"PolicyName":          ScalingPolicyID,
			"PolicyType":          "TargetTrackingScaling",
			"ScalingTargetId":     graph.Ref{ID: svc.ScalableTargetID},
			"TargetTrackingScalingPolicyConfiguration": map[string]any{
				"PredefinedMetricSpecification": map[string]any{"PredefinedMetricType": cpuMetric},
				"TargetValue":                   policy.TargetCPUPercent,
				"ScaleInCooldown":               int(policy.ScaleInCooldown.Seconds()),
				"ScaleOutCooldown":              int(policy.ScaleOutCooldown.Seconds()),
			},
		},
	}))

	return errors.Join(errs...)
}

package iam

import (
	"errors"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// Resource types declared by this package
const (
	TypeRole   = "AWS::IAM::Role"
	TypePolicy = "AWS::IAM::Policy"
)

// Service principals
const (
	PrincipalECSTasks = "ecs-tasks.amazonaws.com"
	PrincipalLambda   = "lambda.amazonaws.com"
)

const (
	ExecutionRoleID = "TaskExecutionRole"
	TaskRoleID      = "TaskRole"
	CanaryRoleID    = "CanaryRole"
)

// TaskRoles holds the two identities of a task: the one the orchestrator uses
// to pull images and write logs, and the one the application code assumes
type TaskRoles struct {
	Execution *types.RoleDescriptor
	Task      *types.RoleDescriptor
}

// TelemetryStatement grants what the telemetry sidecars need to ship
// Application Signals metrics, traces and logs
func TelemetryStatement() types.PolicyStatement {
	return types.PolicyStatement{
		Effect: types.EffectAllow,
		Actions: []string{
			"application-signals:Ingest*",
			"logs:PutLogEvents",
			"logs:CreateLogStream",
			"logs:CreateLogGroup",
			"logs:DescribeLogStreams",
			"logs:DescribeLogGroups",
			"xray:PutTraceSegments",
			"xray:PutTelemetryRecords",
			"xray:GetSamplingRules",
			"xray:GetSamplingTargets",
			"xray:GetSamplingStatisticSummaries",
			"cloudwatch:PutMetricData",
		},
		Resources: []any{"*"},
	}
}

// ComposeTaskRoles builds the execution and runtime roles. Both receive their
// own copy of the telemetry statement so the two trust boundaries stay separate.
func ComposeTaskRoles() TaskRoles {
	execution := &types.RoleDescriptor{
		LogicalID:       ExecutionRoleID,
		Name:            "task-execution",
		Trust:           []types.TrustStatement{{Service: PrincipalECSTasks}},
		ManagedPolicies: []string{"service-role/AmazonECSTaskExecutionRolePolicy"},
		Inline: []types.InlinePolicy{{
			LogicalID:  ExecutionRoleID + "DefaultPolicy",
			Name:       "telemetry",
			Statements: []types.PolicyStatement{TelemetryStatement()},
		}},
	}

	task := &types.RoleDescriptor{
		LogicalID:       TaskRoleID,
		Name:            "task",
		Trust:           []types.TrustStatement{{Service: PrincipalECSTasks}},
		ManagedPolicies: []string{"CloudWatchAgentServerPolicy", "AWSXrayWriteOnlyAccess"},
		Inline: []types.InlinePolicy{{
			LogicalID:  TaskRoleID + "DefaultPolicy",
			Name:       "telemetry",
			Statements: []types.PolicyStatement{TelemetryStatement()},
		}},
	}

	return TaskRoles{Execution: execution, Task: task}
}

// ComposeCanaryRole builds the role the synthetic monitor runs under. It may
// write run artifacts to the given bucket and publish its own metrics and logs.
func ComposeCanaryRole(artifactBucketID string) *types.RoleDescriptor {
	bucketArn := graph.Attr{ID: artifactBucketID, Name: "Arn"}

	return &types.RoleDescriptor{
		LogicalID:       CanaryRoleID,
		Name:            "canary",
		Trust:           []types.TrustStatement{{Service: PrincipalLambda}},
		ManagedPolicies: []string{"service-role/AWSLambdaBasicExecutionRole", "CloudWatchSyntheticsFullAccess"},
		Inline: []types.InlinePolicy{{
			LogicalID: CanaryRoleID + "DefaultPolicy",
			Name:      "canary",
			Statements: []types.PolicyStatement{
				{
					Effect:    types.EffectAllow,
					Actions:   []string{"s3:PutObject", "s3:GetBucketLocation"},
					Resources: []any{bucketArn, graph.Join{Parts: []any{bucketArn, "/*"}}},
				},
				{
					Effect:    types.EffectAllow,
					Actions:   []string{"s3:ListAllMyBuckets", "cloudwatch:PutMetricData", "xray:PutTraceSegments"},
					Resources: []any{"*"},
				},
				{
					Effect:    types.EffectAllow,
					Actions:   []string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
					Resources: []any{"*"},
				},
			},
		}},
	}
}

// Declare adds the roles and their inline policies to the graph
func Declare(g *graph.Graph, roles ...*types.RoleDescriptor) error {
	logger := log.WithComponent("iam")

	var errs []error
	for _, role := range roles {
		if err := role.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}

		managed := make([]any, 0, len(role.ManagedPolicies))
		for _, name := range role.ManagedPolicies {
			managed = append(managed, ManagedPolicyArn(name))
		}

		props := map[string]any{
			"AssumeRolePolicyDocument": trustDocument(role.Trust),
		}
		if len(managed) > 0 {
			props["ManagedPolicyArns"] = managed
		}

		logger.Debug().Str("logical_id", role.LogicalID).Int("managed_policies", len(managed)).Msg("role declared")
		errs = append(errs, g.AddNode(&graph.Node{ID: role.LogicalID, Type: TypeRole, Properties: props}))

		for _, policy := range role.Inline {
			errs = append(errs, g.AddNode(&graph.Node{
				ID:   policy.LogicalID,
				Type: TypePolicy,
				Properties: map[string]any{
					"PolicyName":     policy.LogicalID,
					"PolicyDocument": PolicyDocument(policy.Statements),
					"Roles":          []any{graph.Ref{ID: role.LogicalID}},
				},
			}))
		}
	}
	return errors.Join(errs...)
}

// ManagedPolicyArn builds a partition-aware ARN for an AWS managed policy
func ManagedPolicyArn(name string) graph.Join {
	return graph.Join{Parts: []any{"arn:", graph.PseudoPartition, ":iam::aws:policy/", name}}
}

// PolicyDocument renders statements into an IAM policy document
func PolicyDocument(statements []types.PolicyStatement) map[string]any {
	rendered := make([]any, 0, len(statements))
	for _, st := range statements {
		actions := make([]any, len(st.Actions))
		for i, a := range st.Actions {
			actions[i] = a
		}

		var resource any
		if len(st.Resources) == 1 {
			resource = st.Resources[0]
		} else {
			resource = append([]any(nil), st.Resources...)
		}

		rendered = append(rendered, map[string]any{
			"Effect":   string(st.Effect),
			"Action":   actions,
			"Resource": resource,
		})
	}
	return map[string]any{
		"Version":   "2012-10-17",
		"Statement": rendered,
	}
}

func trustDocument(trust []types.TrustStatement) map[string]any {
	statements := make([]any, 0, len(trust))
	for _, t := range trust {
		statements = append(statements, map[string]any{
			"Action":    "sts:AssumeRole",
			"Effect":    "Allow",
			"Principal": map[string]any{"Service": t.Service},
		})
	}
	return map[string]any{
		"Version":   "2012-10-17",
		"Statement": statements,
	}
}

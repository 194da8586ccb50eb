package canary

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// Resource types declared by this package
const (
	TypeCanary = "AWS::Synthetics::Canary"
	TypeBucket = "AWS::S3::Bucket"
)

const (
	CanaryID         = "Canary"
	ArtifactBucketID = "CanaryArtifactsBucket"

	EnvURL         = "URL"
	EnvServiceName = "SERVICE_NAME"
)

// Compose declares the synthetic monitor for the service's public endpoint.
// The canary always depends on the service: probing before the service
// exists would only record failures.
func Compose(cfg config.Config, svc *types.ServiceDescriptor, roleID string, code types.CodeLocation) (*types.CanaryDescriptor, error) {
	if svc.LoadBalancer == nil {
		return nil, fmt.Errorf("%w: service %s has no public endpoint to probe", types.ErrInvalid, svc.LogicalID)
	}

	path := cfg.Canary.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	c := &types.CanaryDescriptor{
		LogicalID:        CanaryID,
		Name:             cfg.Canary.Name,
		Schedule:         cfg.Canary.Schedule,
		RuntimeVersion:   cfg.Canary.RuntimeVersion,
		Handler:          cfg.Canary.Handler,
		RoleID:           roleID,
		ServiceID:        svc.LogicalID,
		ArtifactBucketID: ArtifactBucketID,
		Endpoint: types.Endpoint{
			LoadBalancerID: svc.LoadBalancer.LoadBalancerID,
			Scheme:         "http",
			Path:           path,
		},
		Code: code,
		Environment: []types.EnvVar{
			{Name: EnvServiceName, Value: cfg.Canary.ServiceTag},
		},
		DependsOn: []string{svc.LogicalID},
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("canary %s: %w", c.LogicalID, err)
	}
	return c, nil
}

// URL resolves to the address the canary probes once the load balancer exists
func URL(e types.Endpoint) graph.Join {
	return graph.Join{Parts: []any{e.Scheme + "://", graph.Attr{ID: e.LoadBalancerID, Name: "DNSName"}, e.Path}}
}

// Declare adds the artifact bucket and the canary, ordered after its service
func Declare(g *graph.Graph, c *types.CanaryDescriptor, retentionDays int) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Code.Bucket == "" || c.Code.Key == "" {
		return fmt.Errorf("%w: canary %s has no code location", types.ErrInvalid, c.LogicalID)
	}

	logger := log.WithComponent("canary")
	logger.Debug().
		Str("name", c.Name).
		Str("schedule", c.Schedule).
		Str("code", c.Code.Bucket+"/"+c.Code.Key).
		Msg("canary declared")

	env := map[string]any{EnvURL: URL(c.Endpoint)}
	for _, e := range c.Environment {
		env[e.Name] = e.Value
	}

	var errs []error
	errs = append(errs, g.AddNode(&graph.Node{
		ID:   c.ArtifactBucketID,
		Type: TypeBucket,
		Properties: map[string]any{
			"BucketEncryption": map[string]any{
				"ServerSideEncryptionConfiguration": []any{map[string]any{
					"ServerSideEncryptionByDefault": map[string]any{"SSEAlgorithm": "AES256"},
				}},
			},
			"LifecycleConfiguration": map[string]any{
				"Rules": []any{map[string]any{
					"Id":               "expire-artifacts",
					"Status":           "Enabled",
					"ExpirationInDays": retentionDays,
				}},
			},
			"PublicAccessBlockConfiguration": map[string]any{
				"BlockPublicAcls":       true,
				"BlockPublicPolicy":     true,
				"IgnorePublicAcls":      true,
				"RestrictPublicBuckets": true,
			},
		},
		DeletionPolicy: "Retain",
	}))

	errs = append(errs, g.AddNode(&graph.Node{
		ID:   c.LogicalID,
		Type: TypeCanary,
		Properties: map[string]any{
			"Name":               c.Name,
			"RuntimeVersion":     c.RuntimeVersion,
			"ExecutionRoleArn":   graph.Attr{ID: c.RoleID, Name: "Arn"},
			"ArtifactS3Location": graph.Join{Parts: []any{"s3://", graph.Ref{ID: c.ArtifactBucketID}}},
			"Code": map[string]any{
				"Handler":  c.Handler,
				"S3Bucket": c.Code.Bucket,
				"S3Key":    c.Code.Key,
			},
			"Schedule": map[string]any{
				"Expression":        c.Schedule,
				"DurationInSeconds": "0",
			},
			"RunConfig": map[string]any{
				"ActiveTracing":        true,
				"EnvironmentVariables": env,
			},
			"StartCanaryAfterCreation": true,
			"SuccessRetentionPeriod":   retentionDays,
			"FailureRetentionPeriod":   retentionDays,
		},
	}))

	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, dep := range c.DependsOn {
		errs = append(errs, g.DependOn(c.LogicalID, dep))
	}
	return errors.Join(errs...)
}

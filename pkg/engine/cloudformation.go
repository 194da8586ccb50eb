package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/metrics"
)

// API is the subset of the CloudFormation client the engine calls
type API interface {
	CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, in *cloudformation.DeleteStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, opts ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// CloudFormation is the Engine backed by AWS CloudFormation
type CloudFormation struct {
	api API
}

// NewCloudFormation creates an engine from an AWS configuration
func NewCloudFormation(cfg aws.Config) *CloudFormation {
	return &CloudFormation{api: cloudformation.NewFromConfig(cfg)}
}

// NewCloudFormationWithAPI creates an engine around an existing client
func NewCloudFormationWithAPI(api API) *CloudFormation {
	return &CloudFormation{api: api}
}

// Deploy creates or updates the stack
func (c *CloudFormation) Deploy(ctx context.Context, req DeployRequest) (Action, error) {
	logger := log.WithStack(req.StackName)

	_, err := c.Describe(ctx, req.StackName)
	switch {
	case errors.Is(err, ErrStackNotFound):
		in := &cloudformation.CreateStackInput{
			StackName:    aws.String(req.StackName),
			Capabilities: []cftypes.Capability{cftypes.CapabilityCapabilityIam},
			OnFailure:    cftypes.OnFailureRollback,
			Tags:         stackTags(req.Tags),
		}
		setTemplate(&in.TemplateBody, &in.TemplateURL, req)

		_, err := c.api.CreateStack(ctx, in)
		metrics.EngineOperationsTotal.WithLabelValues(string(ActionCreate), metrics.Result(err)).Inc()
		if err != nil {
			return ActionCreate, fmt.Errorf("failed to create stack %s: %w", req.StackName, err)
		}
		logger.Info().Msg("stack creation started")
		return ActionCreate, nil

	case err != nil:
		return "", err
	}

	in := &cloudformation.UpdateStackInput{
		StackName:    aws.String(req.StackName),
		Capabilities: []cftypes.Capability{cftypes.CapabilityCapabilityIam},
		Tags:         stackTags(req.Tags),
	}
	setTemplate(&in.TemplateBody, &in.TemplateURL, req)

	_, err = c.api.UpdateStack(ctx, in)
	if isNoUpdates(err) {
		metrics.EngineOperationsTotal.WithLabelValues(string(ActionUpdate), "unchanged").Inc()
		return ActionUpdate, ErrNoChanges
	}
	metrics.EngineOperationsTotal.WithLabelValues(string(ActionUpdate), metrics.Result(err)).Inc()
	if err != nil {
		return ActionUpdate, fmt.Errorf("failed to update stack %s: %w", req.StackName, err)
	}
	logger.Info().Msg("stack update started")
	return ActionUpdate, nil
}

// Describe returns the current stack state
func (c *CloudFormation) Describe(ctx context.Context, stackName string) (*StackState, error) {
	out, err := c.api.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)})
	if isStackMissing(err) {
		return nil, fmt.Errorf("%w: %s", ErrStackNotFound, stackName)
	}
	metrics.EngineOperationsTotal.WithLabelValues("describe", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}
	if len(out.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStackNotFound, stackName)
	}

	s := out.Stacks[0]
	state := &StackState{
		ID:      aws.ToString(s.StackId),
		Name:    aws.ToString(s.StackName),
		Status:  string(s.StackStatus),
		Reason:  aws.ToString(s.StackStatusReason),
		Outputs: make(map[string]string, len(s.Outputs)),
	}
	for _, o := range s.Outputs {
		state.Outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	if s.LastUpdatedTime != nil {
		state.LastUpdated = *s.LastUpdatedTime
	} else if s.CreationTime != nil {
		state.LastUpdated = *s.CreationTime
	}

	// A deleted stack is only visible by ID; by name it no longer exists
	if state.Status == string(cftypes.StackStatusDeleteComplete) {
		return nil, fmt.Errorf("%w: %s", ErrStackNotFound, stackName)
	}
	return state, nil
}

// Delete starts deleting the stack
func (c *CloudFormation) Delete(ctx context.Context, stackName string) error {
	_, err := c.api.DeleteStack(ctx, &cloudformation.DeleteStackInput{StackName: aws.String(stackName)})
	metrics.EngineOperationsTotal.WithLabelValues(string(ActionDelete), metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to delete stack %s: %w", stackName, err)
	}
	logger := log.WithStack(stackName)
	logger.Info().Msg("stack deletion started")
	return nil
}

func setTemplate(body, url **string, req DeployRequest) {
	if req.TemplateURL != "" {
		*url = aws.String(req.TemplateURL)
		return
	}
	*body = aws.String(req.TemplateBody)
}

func stackTags(tags map[string]string) []cftypes.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]cftypes.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, cftypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func validationMessage(err error) (string, bool) {
	var apiErr smithy.APIError
	if err == nil || !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ValidationError" {
		return "", false
	}
	return apiErr.ErrorMessage(), true
}

func isStackMissing(err error) bool {
	msg, ok := validationMessage(err)
	return ok && strings.Contains(msg, "does not exist")
}

func isNoUpdates(err error) bool {
	msg, ok := validationMessage(err)
	return ok && strings.Contains(msg, "No updates are to be performed")
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	stack     *cftypes.Stack
	createErr error
	updateErr error
	deleteErr error

	created *cloudformation.CreateStackInput
	updated *cloudformation.UpdateStackInput
	deleted *cloudformation.DeleteStackInput
}

func (f *fakeAPI) CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.created = in
	return &cloudformation.CreateStackOutput{StackId: aws.String("stack-id")}, f.createErr
}

func (f *fakeAPI) UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	f.updated = in
	return &cloudformation.UpdateStackOutput{}, f.updateErr
}

func (f *fakeAPI) DeleteStack(ctx context.Context, in *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.deleted = in
	return &cloudformation.DeleteStackOutput{}, f.deleteErr
}

func (f *fakeAPI) DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if f.stack == nil {
		return nil, &smithy.GenericAPIError{
			Code:    "ValidationError",
			Message: "Stack with id " + aws.ToString(in.StackName) + " does not exist",
		}
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []cftypes.Stack{*f.stack}}, nil
}

func TestDeployCreatesMissingStack(t *testing.T) {
	api := &fakeAPI{}
	eng := NewCloudFormationWithAPI(api)

	action, err := eng.Deploy(context.Background(), DeployRequest{
		StackName:    "AppSignalsStack",
		TemplateBody: "{}",
		Tags:         map[string]string{"project": "appsignals", "env": "ecs"},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, action)

	require.NotNil(t, api.created)
	assert.Equal(t, "{}", aws.ToString(api.created.TemplateBody))
	assert.Nil(t, api.created.TemplateURL)
	assert.Equal(t, []cftypes.Capability{cftypes.CapabilityCapabilityIam}, api.created.Capabilities)
	require.Len(t, api.created.Tags, 2)
	assert.Equal(t, "env", aws.ToString(api.created.Tags[0].Key))
	assert.Nil(t, api.updated)
}

func TestDeployUpdatesExistingStack(t *testing.T) {
	api := &fakeAPI{stack: &cftypes.Stack{StackName: aws.String("s"), StackStatus: cftypes.StackStatusCreateComplete}}
	eng := NewCloudFormationWithAPI(api)

	action, err := eng.Deploy(context.Background(), DeployRequest{StackName: "s", TemplateURL: "https://bucket/template.json"})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, action)
	require.NotNil(t, api.updated)
	assert.Equal(t, "https://bucket/template.json", aws.ToString(api.updated.TemplateURL))
	assert.Nil(t, api.updated.TemplateBody)
}

func TestDeployNoChanges(t *testing.T) {
	api := &fakeAPI{
		stack:     &cftypes.Stack{StackName: aws.String("s"), StackStatus: cftypes.StackStatusUpdateComplete},
		updateErr: &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."},
	}

	_, err := NewCloudFormationWithAPI(api).Deploy(context.Background(), DeployRequest{StackName: "s", TemplateBody: "{}"})
	assert.ErrorIs(t, err, ErrNoChanges)
}

func TestDeployCreateFailure(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("throttled")}

	_, err := NewCloudFormationWithAPI(api).Deploy(context.Background(), DeployRequest{StackName: "s", TemplateBody: "{}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create stack s")
}

func TestDescribe(t *testing.T) {
	updated := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{stack: &cftypes.Stack{
		StackId:           aws.String("arn:stack"),
		StackName:         aws.String("s"),
		StackStatus:       cftypes.StackStatusUpdateRollbackComplete,
		StackStatusReason: aws.String("resource failed"),
		LastUpdatedTime:   aws.Time(updated),
		Outputs: []cftypes.Output{
			{OutputKey: aws.String("LoadBalancerDNS"), OutputValue: aws.String("lb.example.com")},
		},
	}}

	state, err := NewCloudFormationWithAPI(api).Describe(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "arn:stack", state.ID)
	assert.Equal(t, "UPDATE_ROLLBACK_COMPLETE", state.Status)
	assert.Equal(t, "resource failed", state.Reason)
	assert.Equal(t, "lb.example.com", state.Outputs["LoadBalancerDNS"])
	assert.Equal(t, updated, state.LastUpdated)
	assert.True(t, state.Terminal())
	assert.True(t, state.Failed())
}

func TestDescribeMissing(t *testing.T) {
	_, err := NewCloudFormationWithAPI(&fakeAPI{}).Describe(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStackNotFound)
}

func TestDescribeDeleted(t *testing.T) {
	api := &fakeAPI{stack: &cftypes.Stack{StackName: aws.String("s"), StackStatus: cftypes.StackStatusDeleteComplete}}
	_, err := NewCloudFormationWithAPI(api).Describe(context.Background(), "s")
	assert.ErrorIs(t, err, ErrStackNotFound)
}

func TestDelete(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, NewCloudFormationWithAPI(api).Delete(context.Background(), "s"))
	assert.Equal(t, "s", aws.ToString(api.deleted.StackName))

	api.deleteErr = errors.New("denied")
	assert.Error(t, NewCloudFormationWithAPI(api).Delete(context.Background(), "s"))
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
		failure  bool
	}{
		{"CREATE_IN_PROGRESS", false, false},
		{"CREATE_COMPLETE", true, false},
		{"CREATE_FAILED", true, true},
		{"ROLLBACK_IN_PROGRESS", false, true},
		{"ROLLBACK_COMPLETE", true, true},
		{"UPDATE_COMPLETE_CLEANUP_IN_PROGRESS", false, false},
		{"UPDATE_COMPLETE", true, false},
		{"UPDATE_ROLLBACK_COMPLETE", true, true},
		{"DELETE_COMPLETE", true, false},
		{"DELETE_FAILED", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminal(tt.status))
			assert.Equal(t, tt.failure, IsFailure(tt.status))
		})
	}
}

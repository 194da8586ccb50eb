package iam

import (
	"errors"
	"testing"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func principal(t *testing.T, n *graph.Node) string {
	t.Helper()
	doc := n.Properties["AssumeRolePolicyDocument"].(map[string]any)
	statements := doc["Statement"].([]any)
	require.Len(t, statements, 1)
	return statements[0].(map[string]any)["Principal"].(map[string]any)["Service"].(string)
}

func actions(n *graph.Node) []any {
	var out []any
	doc := n.Properties["PolicyDocument"].(map[string]any)
	for _, st := range doc["Statement"].([]any) {
		out = append(out, st.(map[string]any)["Action"].([]any)...)
	}
	return out
}

func TestComposeTaskRoles(t *testing.T) {
	roles := ComposeTaskRoles()

	assert.NotEqual(t, roles.Execution.LogicalID, roles.Task.LogicalID)
	assert.Equal(t, []string{"service-role/AmazonECSTaskExecutionRolePolicy"}, roles.Execution.ManagedPolicies)
	assert.ElementsMatch(t, []string{"CloudWatchAgentServerPolicy", "AWSXrayWriteOnlyAccess"}, roles.Task.ManagedPolicies)

	for _, role := range []*types.RoleDescriptor{roles.Execution, roles.Task} {
		require.NoError(t, role.Validate())
		require.Len(t, role.Inline, 1)
		assert.Equal(t, role.LogicalID+"DefaultPolicy", role.Inline[0].LogicalID)
		assert.Equal(t, []types.TrustStatement{{Service: PrincipalECSTasks}}, role.Trust)
	}

	// Each role owns its own statement
	roles.Task.Inline[0].Statements[0].Actions[0] = "changed"
	assert.Equal(t, "application-signals:Ingest*", roles.Execution.Inline[0].Statements[0].Actions[0])
}

func TestDeclare(t *testing.T) {
	roles := ComposeTaskRoles()
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "CanaryArtifactsBucket", Type: "AWS::S3::Bucket"}))
	require.NoError(t, Declare(g, roles.Execution, roles.Task, ComposeCanaryRole("CanaryArtifactsBucket")))
	require.NoError(t, g.Validate())

	assert.Len(t, g.NodesOfType(TypeRole), 3)
	assert.Len(t, g.NodesOfType(TypePolicy), 3)

	tests := []struct {
		role      string
		principal string
		managed   []any
	}{
		{
			role:      ExecutionRoleID,
			principal: PrincipalECSTasks,
			managed:   []any{ManagedPolicyArn("service-role/AmazonECSTaskExecutionRolePolicy")},
		},
		{
			role:      TaskRoleID,
			principal: PrincipalECSTasks,
			managed:   []any{ManagedPolicyArn("CloudWatchAgentServerPolicy"), ManagedPolicyArn("AWSXrayWriteOnlyAccess")},
		},
		{
			role:      CanaryRoleID,
			principal: PrincipalLambda,
			managed:   []any{ManagedPolicyArn("service-role/AWSLambdaBasicExecutionRole"), ManagedPolicyArn("CloudWatchSyntheticsFullAccess")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			role, ok := g.Node(tt.role)
			require.True(t, ok)
			assert.Equal(t, tt.principal, principal(t, role))
			assert.Equal(t, tt.managed, role.Properties["ManagedPolicyArns"])

			policy, ok := g.Node(tt.role + "DefaultPolicy")
			require.True(t, ok)
			assert.True(t, g.HasDependency(policy.ID, tt.role))
			assert.Equal(t, []any{graph.Ref{ID: tt.role}}, policy.Properties["Roles"])
		})
	}

	for _, id := range []string{ExecutionRoleID, TaskRoleID} {
		policy, _ := g.Node(id + "DefaultPolicy")
		assert.Contains(t, actions(policy), "application-signals:Ingest*")
		assert.Contains(t, actions(policy), "xray:PutTraceSegments")
	}

	canaryPolicy, _ := g.Node(CanaryRoleID + "DefaultPolicy")
	assert.Contains(t, actions(canaryPolicy), "s3:PutObject")
	assert.True(t, g.HasDependency(canaryPolicy.ID, "CanaryArtifactsBucket"))
}

func TestDeclareRejectsUntrustedRole(t *testing.T) {
	err := Declare(graph.New(), &types.RoleDescriptor{LogicalID: "Loose"})
	assert.True(t, errors.Is(err, types.ErrInvalid), "got %v", err)
}

func TestPolicyDocument(t *testing.T) {
	doc := PolicyDocument([]types.PolicyStatement{
		{Effect: types.EffectAllow, Actions: []string{"s3:GetObject"}, Resources: []any{"*"}},
		{Effect: types.EffectAllow, Actions: []string{"s3:PutObject"}, Resources: []any{"a", "b"}},
	})

	assert.Equal(t, "2012-10-17", doc["Version"])
	statements := doc["Statement"].([]any)
	require.Len(t, statements, 2)
	assert.Equal(t, "*", statements[0].(map[string]any)["Resource"])
	assert.Equal(t, []any{"a", "b"}, statements[1].(map[string]any)["Resource"])
}

func TestManagedPolicyArn(t *testing.T) {
	assert.Equal(t, graph.Join{Parts: []any{"arn:", graph.PseudoPartition, ":iam::aws:policy/", "ReadOnlyAccess"}}, ManagedPolicyArn("ReadOnlyAccess"))
}

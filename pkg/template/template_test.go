package template

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sample(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "Vpc", Type: "AWS::EC2::VPC", Properties: map[string]any{"CidrBlock": "10.0.0.0/16"}}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "Subnet", Type: "AWS::EC2::Subnet", Properties: map[string]any{
		"VpcId":            graph.Ref{ID: "Vpc"},
		"AvailabilityZone": graph.AZ(1),
		"Tags": []any{map[string]any{
			"Key":   "Name",
			"Value": graph.Join{Separator: "/", Parts: []any{graph.PseudoStackName, "private"}},
		}},
	}}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "Bucket", Type: "AWS::S3::Bucket", DeletionPolicy: "Retain"}))
	require.NoError(t, g.DependOn("Bucket", "Subnet"))
	g.AddOutput(graph.Output{Name: "BucketArn", Description: "artifact bucket", Value: graph.Attr{ID: "Bucket", Name: "Arn"}})
	return g
}

func TestRender(t *testing.T) {
	tmpl, err := Render(sample(t), "test stack")
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, tmpl.FormatVersion)
	assert.Equal(t, "test stack", tmpl.Description)
	require.Len(t, tmpl.Resources, 3)

	subnet := tmpl.Resources["Subnet"]
	assert.Equal(t, "AWS::EC2::Subnet", subnet.Type)
	assert.Equal(t, map[string]any{"Ref": "Vpc"}, subnet.Properties["VpcId"])
	assert.Equal(t, map[string]any{"Fn::Select": []any{1, map[string]any{"Fn::GetAZs": ""}}}, subnet.Properties["AvailabilityZone"])
	assert.Equal(t, []any{map[string]any{
		"Key":   "Name",
		"Value": map[string]any{"Fn::Join": []any{"/", []any{map[string]any{"Ref": "AWS::StackName"}, "private"}}},
	}}, subnet.Properties["Tags"])

	// Reference edges stay implicit
	assert.Empty(t, subnet.DependsOn)

	bucket := tmpl.Resources["Bucket"]
	assert.Equal(t, []string{"Subnet"}, bucket.DependsOn)
	assert.Equal(t, "Retain", bucket.DeletionPolicy)
	assert.Empty(t, bucket.Properties)

	assert.Equal(t, Output{
		Description: "artifact bucket",
		Value:       map[string]any{"Fn::GetAtt": []any{"Bucket", "Arn"}},
	}, tmpl.Outputs["BucketArn"])
}

func TestRenderRejectsInvalidGraph(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "Subnet", Type: "AWS::EC2::Subnet", Properties: map[string]any{"VpcId": graph.Ref{ID: "Vpc"}}}))

	_, err := Render(g, "")
	assert.True(t, errors.Is(err, graph.ErrUnknownNode), "got %v", err)
}

func TestRenderDoesNotMutateGraph(t *testing.T) {
	g := sample(t)
	_, err := Render(g, "")
	require.NoError(t, err)

	n, _ := g.Node("Subnet")
	assert.Equal(t, graph.Ref{ID: "Vpc"}, n.Properties["VpcId"])
}

func TestEncodeJSON(t *testing.T) {
	tmpl, err := Render(sample(t), "test stack")
	require.NoError(t, err)

	data, err := tmpl.Encode(FormatJSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2010-09-09", decoded["AWSTemplateFormatVersion"])

	resources := decoded["Resources"].(map[string]any)
	bucket := resources["Bucket"].(map[string]any)
	assert.Equal(t, []any{"Subnet"}, bucket["DependsOn"])
	assert.NotContains(t, resources["Vpc"].(map[string]any), "DependsOn")

	compact, err := tmpl.Compact()
	require.NoError(t, err)
	assert.NotContains(t, compact, "\n")
	assert.JSONEq(t, string(data), compact)
}

func TestEncodeYAML(t *testing.T) {
	tmpl, err := Render(sample(t), "test stack")
	require.NoError(t, err)

	data, err := tmpl.Encode(FormatYAML)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "2010-09-09", decoded["AWSTemplateFormatVersion"])
	assert.Contains(t, string(data), "Fn::GetAtt")
}

func TestEncodeUnknownFormat(t *testing.T) {
	tmpl, err := Render(sample(t), "")
	require.NoError(t, err)

	_, err = tmpl.Encode("toml")
	assert.Error(t, err)
}

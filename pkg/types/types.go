package types

import (
	"fmt"
	"strings"
	"time"
)

// NetworkDescriptor represents the isolated network the service runs in
type NetworkDescriptor struct {
	LogicalID         string
	CIDR              string
	MaxAZs            int
	NATGateways       int
	Subnets           []*Subnet
	NATGatewayIDs     []string
	InternetGatewayID string
}

// SubnetRole partitions subnets by reachability
type SubnetRole string

const (
	SubnetRolePublic  SubnetRole = "public"
	SubnetRolePrivate SubnetRole = "private"
)

// Subnet is one segment of the network in a single availability zone
type Subnet struct {
	LogicalID    string
	Name         string
	AZIndex      int
	CIDR         string
	Role         SubnetRole
	RouteTableID string
	EgressNATID  string // Only set for private subnets
}

// PublicSubnets returns the subnets that can host internet-facing resources
func (n *NetworkDescriptor) PublicSubnets() []*Subnet {
	return n.subnetsByRole(SubnetRolePublic)
}

// PrivateSubnets returns the subnets that egress through NAT
func (n *NetworkDescriptor) PrivateSubnets() []*Subnet {
	return n.subnetsByRole(SubnetRolePrivate)
}

func (n *NetworkDescriptor) subnetsByRole(role SubnetRole) []*Subnet {
	var out []*Subnet
	for _, s := range n.Subnets {
		if s.Role == role {
			out = append(out, s)
		}
	}
	return out
}

// ClusterDescriptor represents the container orchestration cluster
type ClusterDescriptor struct {
	LogicalID         string
	Name              string
	NetworkID         string
	ContainerInsights bool
}

// CPUArchitecture of the task runtime platform
type CPUArchitecture string

const (
	CPUArchitectureARM64  CPUArchitecture = "ARM64"
	CPUArchitectureX86_64 CPUArchitecture = "X86_64"
)

// OSFamily of the task runtime platform
type OSFamily string

const (
	OSFamilyLinux OSFamily = "LINUX"
)

// TaskTemplate declares co-scheduled containers and their shared resource envelope
type TaskTemplate struct {
	LogicalID       string
	Family          string
	CPU             int // CPU units (1024 = 1 vCPU)
	Memory          int // MiB
	Architecture    CPUArchitecture
	OSFamily        OSFamily
	ExecutionRoleID string
	TaskRoleID      string
	Containers      []*ContainerSpec
}

// Container returns the container with the given name, or nil
func (t *TaskTemplate) Container(name string) *ContainerSpec {
	for _, c := range t.Containers {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ReservedCPU is the sum of explicit container CPU reservations
func (t *TaskTemplate) ReservedCPU() int {
	total := 0
	for _, c := range t.Containers {
		total += c.CPU
	}
	return total
}

// ReservedMemory is the sum of explicit container memory reservations in MiB
func (t *TaskTemplate) ReservedMemory() int {
	total := 0
	for _, c := range t.Containers {
		total += c.MemoryReservation
	}
	return total
}

// ImageRef is a registry URI plus tag
type ImageRef struct {
	Repository string
	Tag        string
}

func (i ImageRef) String() string {
	if i.Tag == "" {
		return i.Repository + ":latest"
	}
	return i.Repository + ":" + i.Tag
}

// ContainerSpec defines one container of a task
type ContainerSpec struct {
	Name              string
	Image             ImageRef
	Essential         bool
	CPU               int // 0 means no explicit reservation
	MemoryReservation int // MiB, 0 means no explicit reservation
	Command           []string
	PortMappings      []*PortMapping
	Environment       []EnvVar
	Log               *LogDestination
	DependsOn         []ContainerDependency
}

// Env returns the value of an environment variable and whether it is set
func (c *ContainerSpec) Env(name string) (string, bool) {
	for _, e := range c.Environment {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// PortMapping defines port exposure
type PortMapping struct {
	Name          string
	ContainerPort int
	Protocol      string // "tcp" or "udp"
}

// EnvVar is a single environment variable
type EnvVar struct {
	Name  string
	Value string
}

// LogDestination routes container output to a log group
type LogDestination struct {
	LogGroupID   string
	StreamPrefix string
}

// DependencyCondition is the state a target container must reach
type DependencyCondition string

const (
	DependencyStart    DependencyCondition = "START"
	DependencyHealthy  DependencyCondition = "HEALTHY"
	DependencyComplete DependencyCondition = "COMPLETE"
	DependencySuccess  DependencyCondition = "SUCCESS"
)

// ContainerDependency orders container startup within a task
type ContainerDependency struct {
	Container string
	Condition DependencyCondition
}

// ServiceDescriptor represents the long-running service of a task template
type ServiceDescriptor struct {
	LogicalID        string
	Name             string
	ClusterID        string
	TaskID           string
	DesiredCount     int
	AssignPublicIP   bool
	SecurityGroupID  string
	LoadBalancer     *LoadBalancerBinding
	Scaling          *ScalingPolicy
	ScalableTargetID string
}

// LoadBalancerBinding connects a service to its load balancer
type LoadBalancerBinding struct {
	LoadBalancerID  string
	SecurityGroupID string
	ListenerID      string
	TargetGroupID   string
	ListenerPort    int
	ContainerName   string
	ContainerPort   int
	HealthCheck     HealthCheckPolicy
}

// HealthCheckPolicy defines how the load balancer probes targets
type HealthCheckPolicy struct {
	Path               string
	StatusCodes        []int
	Interval           time.Duration
	Timeout            time.Duration
	HealthyThreshold   int
	UnhealthyThreshold int
	Port               int
}

// Matcher renders the expected status codes as a comma-separated list
func (h HealthCheckPolicy) Matcher() string {
	if len(h.StatusCodes) == 0 {
		return "200"
	}
	codes := make([]string, len(h.StatusCodes))
	for i, c := range h.StatusCodes {
		codes[i] = fmt.Sprintf("%d", c)
	}
	return strings.Join(codes, ",")
}

// Accepts reports whether the status code counts as a passing check
func (h HealthCheckPolicy) Accepts(code int) bool {
	if len(h.StatusCodes) == 0 {
		return code == 200
	}
	for _, c := range h.StatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// ScalingPolicy is a target-tracking policy on aggregate CPU utilization
type ScalingPolicy struct {
	MinCapacity      int
	MaxCapacity      int
	TargetCPUPercent float64
	ScaleInCooldown  time.Duration
	ScaleOutCooldown time.Duration
}

// RoleDescriptor represents an IAM role and its attached policies
type RoleDescriptor struct {
	LogicalID       string
	Name            string
	Trust           []TrustStatement
	ManagedPolicies []string // AWS managed policy names, e.g. "service-role/AmazonECSTaskExecutionRolePolicy"
	Inline          []InlinePolicy
}

// TrustStatement restricts which principal may assume a role
type TrustStatement struct {
	Service string
}

// InlinePolicy is a named policy document attached to one role
type InlinePolicy struct {
	LogicalID  string
	Name       string
	Statements []PolicyStatement
}

// Effect of a policy statement
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// PolicyStatement grants or denies actions on resources
type PolicyStatement struct {
	Effect    Effect
	Actions   []string
	Resources []any // ARNs or intrinsics
}

// CanaryDescriptor represents the scheduled synthetic probe
type CanaryDescriptor struct {
	LogicalID        string
	Name             string
	Schedule         string
	RuntimeVersion   string
	Handler          string
	RoleID           string
	ServiceID        string
	ArtifactBucketID string
	Endpoint         Endpoint
	Code             CodeLocation
	Environment      []EnvVar
	DependsOn        []string
}

// Endpoint is the public address of a service, resolved by the engine
type Endpoint struct {
	LoadBalancerID string
	Scheme         string
	Path           string
}

// CodeLocation points at the uploaded canary code bundle
type CodeLocation struct {
	Bucket string
	Key    string
}

// DeploymentAction is the kind of stack operation a deployment record tracks
type DeploymentAction string

const (
	DeploymentActionDeploy  DeploymentAction = "deploy"
	DeploymentActionDestroy DeploymentAction = "destroy"
)

// DeploymentStatus is the local view of a stack operation's outcome
type DeploymentStatus string

const (
	DeploymentStatusSubmitted DeploymentStatus = "submitted"
	DeploymentStatusSucceeded DeploymentStatus = "succeeded"
	DeploymentStatusFailed    DeploymentStatus = "failed"
	DeploymentStatusUnchanged DeploymentStatus = "unchanged"
)

// Deployment records one stack operation submitted from this machine
type Deployment struct {
	ID           string            `json:"id"`
	StackName    string            `json:"stack_name"`
	Region       string            `json:"region"`
	Action       DeploymentAction  `json:"action"`
	Status       DeploymentStatus  `json:"status"`
	StackStatus  string            `json:"stack_status,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	TemplateHash string            `json:"template_hash,omitempty"`
	AssetKey     string            `json:"asset_key,omitempty"`
	Resources    int               `json:"resources,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at,omitempty"`
}

// Finished reports whether the operation reached a terminal status
func (d *Deployment) Finished() bool {
	return !d.FinishedAt.IsZero()
}

package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validNetwork() *NetworkDescriptor {
	return &NetworkDescriptor{
		LogicalID:     "Vpc",
		CIDR:          "10.0.0.0/16",
		NATGatewayIDs: []string{"Nat1"},
		Subnets: []*Subnet{
			{LogicalID: "Public1", Role: SubnetRolePublic},
			{LogicalID: "Private1", Role: SubnetRolePrivate, EgressNATID: "Nat1"},
		},
	}
}

func TestNetworkValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *NetworkDescriptor)
		valid  bool
	}{
		{name: "valid", mutate: func(n *NetworkDescriptor) {}, valid: true},
		{name: "bad cidr", mutate: func(n *NetworkDescriptor) { n.CIDR = "10.0.0.0/33" }},
		{name: "no public subnet", mutate: func(n *NetworkDescriptor) { n.Subnets = n.Subnets[1:] }},
		{name: "private without nat", mutate: func(n *NetworkDescriptor) { n.Subnets[1].EgressNATID = "" }},
		{name: "private through unknown nat", mutate: func(n *NetworkDescriptor) { n.Subnets[1].EgressNATID = "Nat2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := validNetwork()
			tt.mutate(n)
			err := n.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
			}
		})
	}
}

func validTask() *TaskTemplate {
	return &TaskTemplate{
		LogicalID:       "TaskDefinition",
		CPU:             1024,
		Memory:          2048,
		ExecutionRoleID: "TaskExecutionRole",
		TaskRoleID:      "TaskRole",
		Containers: []*ContainerSpec{
			{
				Name:              "app",
				Image:             ImageRef{Repository: "app"},
				Essential:         true,
				CPU:               512,
				MemoryReservation: 1024,
				PortMappings:      []*PortMapping{{ContainerPort: 8080, Protocol: "tcp"}},
				DependsOn:         []ContainerDependency{{Container: "sidecar", Condition: DependencyStart}},
			},
			{
				Name:              "sidecar",
				Image:             ImageRef{Repository: "sidecar", Tag: "v1"},
				CPU:               256,
				MemoryReservation: 512,
			},
		},
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tt *TaskTemplate)
		valid  bool
	}{
		{name: "valid", mutate: func(*TaskTemplate) {}, valid: true},
		{name: "cpu over envelope", mutate: func(tt *TaskTemplate) { tt.Containers[1].CPU = 600 }},
		{name: "memory over envelope", mutate: func(tt *TaskTemplate) { tt.Containers[1].MemoryReservation = 1025 }},
		{name: "reservation equal to envelope", mutate: func(tt *TaskTemplate) { tt.Containers[1].CPU = 512 }, valid: true},
		{name: "no essential container", mutate: func(tt *TaskTemplate) { tt.Containers[0].Essential = false }},
		{name: "shared identities", mutate: func(tt *TaskTemplate) { tt.TaskRoleID = tt.ExecutionRoleID }},
		{name: "missing identity", mutate: func(tt *TaskTemplate) { tt.TaskRoleID = "" }},
		{name: "duplicate container", mutate: func(tt *TaskTemplate) { tt.Containers[1].Name = "app" }},
		{
			name: "duplicate env key",
			mutate: func(tt *TaskTemplate) {
				tt.Containers[0].Environment = []EnvVar{{Name: "PORT", Value: "1"}, {Name: "PORT", Value: "2"}}
			},
		},
		{
			name: "unknown dependency",
			mutate: func(tt *TaskTemplate) {
				tt.Containers[0].DependsOn = []ContainerDependency{{Container: "missing", Condition: DependencyStart}}
			},
		},
		{
			name: "unknown condition",
			mutate: func(tt *TaskTemplate) {
				tt.Containers[0].DependsOn[0].Condition = "READY"
			},
		},
		{
			name: "dependency cycle",
			mutate: func(tt *TaskTemplate) {
				tt.Containers[1].DependsOn = []ContainerDependency{{Container: "app", Condition: DependencyHealthy}}
			},
		},
		{name: "port out of range", mutate: func(tt *TaskTemplate) { tt.Containers[0].PortMappings[0].ContainerPort = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(task)
			err := task.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
			}
		})
	}
}

func TestTaskDependencyCycleIsReported(t *testing.T) {
	task := validTask()
	task.Containers[1].DependsOn = []ContainerDependency{{Container: "app", Condition: DependencyStart}}

	err := task.Validate()
	assert.ErrorContains(t, err, "app -> sidecar -> app")
}

func validHealthCheck() HealthCheckPolicy {
	return HealthCheckPolicy{
		Path:               "/healthcheck",
		StatusCodes:        []int{200},
		Interval:           30 * time.Second,
		Timeout:            15 * time.Second,
		HealthyThreshold:   2,
		UnhealthyThreshold: 4,
		Port:               8080,
	}
}

func TestHealthCheckValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *HealthCheckPolicy)
		valid  bool
	}{
		{name: "valid", mutate: func(*HealthCheckPolicy) {}, valid: true},
		{name: "timeout equals interval", mutate: func(h *HealthCheckPolicy) { h.Timeout = h.Interval }},
		{name: "timeout exceeds interval", mutate: func(h *HealthCheckPolicy) { h.Timeout = time.Minute }},
		{name: "zero healthy threshold", mutate: func(h *HealthCheckPolicy) { h.HealthyThreshold = 0 }},
		{name: "zero unhealthy threshold", mutate: func(h *HealthCheckPolicy) { h.UnhealthyThreshold = 0 }},
		{name: "relative path", mutate: func(h *HealthCheckPolicy) { h.Path = "healthcheck" }},
		{name: "port zero", mutate: func(h *HealthCheckPolicy) { h.Port = 0 }},
		{name: "server error code", mutate: func(h *HealthCheckPolicy) { h.StatusCodes = []int{500} }},
		{name: "fractional interval", mutate: func(h *HealthCheckPolicy) { h.Interval, h.Timeout = 15900*time.Millisecond, 15*time.Second }},
		{name: "fractional timeout", mutate: func(h *HealthCheckPolicy) { h.Timeout = 4500 * time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHealthCheck()
			tt.mutate(&h)
			err := h.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
			}
		})
	}
}

func TestHealthCheckMatcher(t *testing.T) {
	h := validHealthCheck()
	assert.Equal(t, "200", h.Matcher())
	assert.True(t, h.Accepts(200))
	assert.False(t, h.Accepts(204))

	h.StatusCodes = []int{200, 204}
	assert.Equal(t, "200,204", h.Matcher())
	assert.True(t, h.Accepts(204))

	h.StatusCodes = nil
	assert.Equal(t, "200", h.Matcher())
	assert.True(t, h.Accepts(200))
}

func TestServiceValidate(t *testing.T) {
	policy := &ScalingPolicy{MinCapacity: 1, MaxCapacity: 4, TargetCPUPercent: 70, ScaleInCooldown: time.Minute, ScaleOutCooldown: time.Minute}

	tests := []struct {
		name    string
		desired int
		scaling *ScalingPolicy
		valid   bool
	}{
		{name: "no policy", desired: 3, valid: true},
		{name: "at minimum", desired: 1, scaling: policy, valid: true},
		{name: "at maximum", desired: 4, scaling: policy, valid: true},
		{name: "below minimum", desired: 0, scaling: policy},
		{name: "above maximum", desired: 5, scaling: policy},
		{name: "negative", desired: -1},
		{name: "empty range", desired: 2, scaling: &ScalingPolicy{MinCapacity: 3, MaxCapacity: 2, TargetCPUPercent: 70}},
		{name: "target over 100", desired: 2, scaling: &ScalingPolicy{MinCapacity: 1, MaxCapacity: 2, TargetCPUPercent: 120}},
		{name: "negative cooldown", desired: 1, scaling: &ScalingPolicy{MinCapacity: 1, MaxCapacity: 2, TargetCPUPercent: 50, ScaleInCooldown: -time.Second}},
		{name: "fractional cooldown", desired: 1, scaling: &ScalingPolicy{MinCapacity: 1, MaxCapacity: 2, TargetCPUPercent: 50, ScaleOutCooldown: 1500 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &ServiceDescriptor{LogicalID: "Service", DesiredCount: tt.desired, Scaling: tt.scaling}
			err := svc.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
			}
		})
	}
}

func TestRoleValidate(t *testing.T) {
	role := &RoleDescriptor{LogicalID: "TaskRole", Trust: []TrustStatement{{Service: "ecs-tasks.amazonaws.com"}}}
	assert.NoError(t, role.Validate())

	assert.Error(t, (&RoleDescriptor{LogicalID: "Open"}).Validate())
	assert.Error(t, (&RoleDescriptor{LogicalID: "Blank", Trust: []TrustStatement{{}}}).Validate())

	role.Inline = []InlinePolicy{{Name: "p", Statements: []PolicyStatement{{Effect: EffectAllow, Actions: []string{"logs:*"}}}}}
	assert.Error(t, role.Validate())
}

func validCanary() *CanaryDescriptor {
	return &CanaryDescriptor{
		LogicalID: "Canary",
		Name:      "dice-server-canary",
		Schedule:  "rate(5 minutes)",
		RoleID:    "CanaryRole",
		ServiceID: "Service",
		Endpoint:  Endpoint{LoadBalancerID: "LB", Scheme: "http", Path: "/"},
		DependsOn: []string{"Service"},
	}
}

func TestCanaryValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CanaryDescriptor)
		valid  bool
	}{
		{name: "valid", mutate: func(*CanaryDescriptor) {}, valid: true},
		{name: "cron schedule", mutate: func(c *CanaryDescriptor) { c.Schedule = "cron(0/5 * * * ? *)" }, valid: true},
		{name: "missing service dependency", mutate: func(c *CanaryDescriptor) { c.DependsOn = nil }},
		{name: "depends on something else", mutate: func(c *CanaryDescriptor) { c.DependsOn = []string{"LB"} }},
		{name: "no schedule", mutate: func(c *CanaryDescriptor) { c.Schedule = "" }},
		{name: "name too long", mutate: func(c *CanaryDescriptor) { c.Name = "dice-server-canary-production" }},
		{name: "uppercase name", mutate: func(c *CanaryDescriptor) { c.Name = "Dice" }},
		{name: "no endpoint", mutate: func(c *CanaryDescriptor) { c.Endpoint.LoadBalancerID = "" }},
		{name: "no role", mutate: func(c *CanaryDescriptor) { c.RoleID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCanary()
			tt.mutate(c)
			err := c.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
			}
		})
	}
}

func TestImageRefString(t *testing.T) {
	assert.Equal(t, "repo:latest", ImageRef{Repository: "repo"}.String())
	assert.Equal(t, "repo:v1", ImageRef{Repository: "repo", Tag: "v1"}.String())
}

package types

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrInvalid is wrapped by every declaration-time validation error
	ErrInvalid = errors.New("invalid declaration")

	canaryNamePattern = regexp.MustCompile(`^[0-9a-z_\-]{1,21}$`)
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// wholeSeconds reports whether d survives the engine's second granularity unchanged
func wholeSeconds(d time.Duration) bool {
	return d%time.Second == 0
}

// Validate checks the network invariants
func (n *NetworkDescriptor) Validate() error {
	var errs []error

	if _, err := netip.ParsePrefix(n.CIDR); err != nil {
		errs = append(errs, invalidf("network %s: malformed CIDR %q", n.LogicalID, n.CIDR))
	}

	if len(n.PublicSubnets()) == 0 {
		errs = append(errs, invalidf("network %s: at least one public subnet is required to host the load balancer", n.LogicalID))
	}

	nats := make(map[string]bool, len(n.NATGatewayIDs))
	for _, id := range n.NATGatewayIDs {
		nats[id] = true
	}
	for _, s := range n.PrivateSubnets() {
		if s.EgressNATID == "" {
			errs = append(errs, invalidf("subnet %s: private subnet has no NAT egress", s.LogicalID))
			continue
		}
		if !nats[s.EgressNATID] {
			errs = append(errs, invalidf("subnet %s: egress through unknown NAT gateway %s", s.LogicalID, s.EgressNATID))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the task envelope, essential container and dependency invariants
func (t *TaskTemplate) Validate() error {
	var errs []error

	if len(t.Containers) == 0 {
		return invalidf("task %s: no containers", t.LogicalID)
	}

	if t.ExecutionRoleID == "" || t.TaskRoleID == "" {
		errs = append(errs, invalidf("task %s: execution and runtime identities are both required", t.LogicalID))
	} else if t.ExecutionRoleID == t.TaskRoleID {
		errs = append(errs, invalidf("task %s: execution and runtime identities must be distinct", t.LogicalID))
	}

	if cpu := t.ReservedCPU(); cpu > t.CPU {
		errs = append(errs, invalidf("task %s: containers reserve %d CPU units, task declares %d", t.LogicalID, cpu, t.CPU))
	}
	if mem := t.ReservedMemory(); mem > t.Memory {
		errs = append(errs, invalidf("task %s: containers reserve %d MiB, task declares %d", t.LogicalID, mem, t.Memory))
	}

	essential := false
	names := make(map[string]bool, len(t.Containers))
	for _, c := range t.Containers {
		if names[c.Name] {
			errs = append(errs, invalidf("task %s: duplicate container name %q", t.LogicalID, c.Name))
		}
		names[c.Name] = true
		if c.Essential {
			essential = true
		}
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if !essential {
		errs = append(errs, invalidf("task %s: at least one container must be essential", t.LogicalID))
	}

	for _, c := range t.Containers {
		for _, dep := range c.DependsOn {
			if !names[dep.Container] {
				errs = append(errs, invalidf("container %s: depends on unknown container %q", c.Name, dep.Container))
			}
		}
	}

	if cycle := t.dependencyCycle(); cycle != nil {
		errs = append(errs, invalidf("task %s: container dependency cycle %s", t.LogicalID, strings.Join(cycle, " -> ")))
	}

	return errors.Join(errs...)
}

// dependencyCycle returns the first cycle found among container dependencies
func (t *TaskTemplate) dependencyCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(t.Containers))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case visiting:
			for i, p := range path {
				if p == name {
					cycle = append(append([]string{}, path[i:]...), name)
					break
				}
			}
			return true
		case done:
			return false
		}
		state[name] = visiting
		path = append(path, name)
		if c := t.Container(name); c != nil {
			for _, dep := range c.DependsOn {
				if visit(dep.Container) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return false
	}

	for _, c := range t.Containers {
		if state[c.Name] == unvisited && visit(c.Name) {
			return cycle
		}
	}
	return nil
}

// Validate checks a single container
func (c *ContainerSpec) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, invalidf("container: name is required"))
	}
	if c.Image.Repository == "" {
		errs = append(errs, invalidf("container %s: image repository is required", c.Name))
	}

	seen := make(map[string]bool, len(c.Environment))
	for _, e := range c.Environment {
		if seen[e.Name] {
			errs = append(errs, invalidf("container %s: duplicate environment variable %q", c.Name, e.Name))
		}
		seen[e.Name] = true
	}

	for _, dep := range c.DependsOn {
		if dep.Container == c.Name {
			errs = append(errs, invalidf("container %s: depends on itself", c.Name))
		}
		switch dep.Condition {
		case DependencyStart, DependencyHealthy, DependencyComplete, DependencySuccess:
		default:
			errs = append(errs, invalidf("container %s: unknown dependency condition %q", c.Name, dep.Condition))
		}
	}

	for _, p := range c.PortMappings {
		if p.ContainerPort < 1 || p.ContainerPort > 65535 {
			errs = append(errs, invalidf("container %s: port %d out of range", c.Name, p.ContainerPort))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the health check timing and threshold invariants
func (h HealthCheckPolicy) Validate() error {
	var errs []error

	if !strings.HasPrefix(h.Path, "/") {
		errs = append(errs, invalidf("health check: path %q must start with /", h.Path))
	}
	if h.Interval <= 0 {
		errs = append(errs, invalidf("health check: interval must be positive"))
	}
	if h.Timeout <= 0 || h.Timeout >= h.Interval {
		errs = append(errs, invalidf("health check: timeout %s must be positive and less than interval %s", h.Timeout, h.Interval))
	}
	if !wholeSeconds(h.Interval) || !wholeSeconds(h.Timeout) {
		errs = append(errs, invalidf("health check: interval %s and timeout %s must be whole seconds", h.Interval, h.Timeout))
	}
	if h.HealthyThreshold < 1 || h.UnhealthyThreshold < 1 {
		errs = append(errs, invalidf("health check: thresholds must be at least 1 (healthy=%d unhealthy=%d)",
			h.HealthyThreshold, h.UnhealthyThreshold))
	}
	if h.Port < 1 || h.Port > 65535 {
		errs = append(errs, invalidf("health check: port %d out of range", h.Port))
	}
	for _, code := range h.StatusCodes {
		if code < 200 || code > 499 {
			errs = append(errs, invalidf("health check: status code %d outside 200-499", code))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the capacity range and cooldowns
func (p ScalingPolicy) Validate() error {
	var errs []error

	if p.MinCapacity < 0 || p.MinCapacity > p.MaxCapacity {
		errs = append(errs, invalidf("scaling: capacity range [%d, %d] is empty", p.MinCapacity, p.MaxCapacity))
	}
	if p.ScaleInCooldown < 0 || p.ScaleOutCooldown < 0 {
		errs = append(errs, invalidf("scaling: cooldowns must not be negative"))
	}
	if !wholeSeconds(p.ScaleInCooldown) || !wholeSeconds(p.ScaleOutCooldown) {
		errs = append(errs, invalidf("scaling: cooldowns %s and %s must be whole seconds", p.ScaleInCooldown, p.ScaleOutCooldown))
	}
	if p.TargetCPUPercent <= 0 || p.TargetCPUPercent > 100 {
		errs = append(errs, invalidf("scaling: target %.1f%% must be in (0, 100]", p.TargetCPUPercent))
	}

	return errors.Join(errs...)
}

// Validate checks that the desired count is reachable under the scaling policy
func (s *ServiceDescriptor) Validate() error {
	var errs []error

	if s.DesiredCount < 0 {
		errs = append(errs, invalidf("service %s: desired count %d is negative", s.LogicalID, s.DesiredCount))
	}
	if s.Scaling != nil {
		if err := s.Scaling.Validate(); err != nil {
			errs = append(errs, err)
		} else if s.DesiredCount < s.Scaling.MinCapacity || s.DesiredCount > s.Scaling.MaxCapacity {
			errs = append(errs, invalidf("service %s: desired count %d outside scaling range [%d, %d]",
				s.LogicalID, s.DesiredCount, s.Scaling.MinCapacity, s.Scaling.MaxCapacity))
		}
	}
	if s.LoadBalancer != nil {
		if err := s.LoadBalancer.HealthCheck.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Validate checks that the role restricts who may assume it
func (r *RoleDescriptor) Validate() error {
	if len(r.Trust) == 0 {
		return invalidf("role %s: at least one trust statement is required", r.LogicalID)
	}
	var errs []error
	for _, t := range r.Trust {
		if t.Service == "" {
			errs = append(errs, invalidf("role %s: trust statement without principal", r.LogicalID))
		}
	}
	for _, p := range r.Inline {
		for _, st := range p.Statements {
			if len(st.Actions) == 0 || len(st.Resources) == 0 {
				errs = append(errs, invalidf("role %s: policy %s has a statement without actions or resources", r.LogicalID, p.Name))
			}
		}
	}
	return errors.Join(errs...)
}

// Validate checks that the canary is ordered after the service it probes
func (c *CanaryDescriptor) Validate() error {
	var errs []error

	if !canaryNamePattern.MatchString(c.Name) {
		errs = append(errs, invalidf("canary %s: name %q must be 1-21 lowercase alphanumerics, '-' or '_'", c.LogicalID, c.Name))
	}
	if !strings.HasPrefix(c.Schedule, "rate(") && !strings.HasPrefix(c.Schedule, "cron(") {
		errs = append(errs, invalidf("canary %s: schedule %q must be a rate() or cron() expression", c.LogicalID, c.Schedule))
	}
	if c.ServiceID == "" {
		errs = append(errs, invalidf("canary %s: target service is required", c.LogicalID))
	} else if !c.dependsOn(c.ServiceID) {
		errs = append(errs, invalidf("canary %s: must depend on service %s", c.LogicalID, c.ServiceID))
	}
	if c.Endpoint.LoadBalancerID == "" {
		errs = append(errs, invalidf("canary %s: endpoint load balancer is required", c.LogicalID))
	}
	if c.RoleID == "" {
		errs = append(errs, invalidf("canary %s: execution role is required", c.LogicalID))
	}

	return errors.Join(errs...)
}

func (c *CanaryDescriptor) dependsOn(id string) bool {
	for _, d := range c.DependsOn {
		if d == id {
			return true
		}
	}
	return false
}

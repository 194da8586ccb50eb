/*
Package types defines the descriptors the composers exchange while building
a stack, and the deployment record kept for each stack operation.

Descriptors are plain data. Each composer builds one from configuration,
validates it, and hands it to the next composer, which reads the logical
IDs it needs to reference. Nothing in this package touches the resource
graph or the provisioning engine.

# Descriptors

Network:
  - NetworkDescriptor: the VPC, its subnets and the NAT gateway IDs
  - Subnet: one public or private subnet pinned to an availability zone
  - ClusterDescriptor: the container cluster placed in the network

Workload:
  - TaskTemplate: the Fargate resource envelope and its containers
  - ContainerSpec: image, reservations, ports, environment, log routing
  - ContainerDependency: startup ordering between containers of one task
  - ServiceDescriptor: the long-running service of a task template
  - LoadBalancerBinding: listener, target group and health check of a service
  - HealthCheckPolicy: probe path, status codes, timing and thresholds
  - ScalingPolicy: capacity range and CPU target tracking

Identity and monitoring:
  - RoleDescriptor: trust principals, managed policies, inline statements
  - CanaryDescriptor: the synthetic monitor probing the public endpoint

Operations:
  - Deployment: what this machine submitted for a stack and how it ended

# Validation

Every descriptor has a Validate method. Errors wrap ErrInvalid so callers
can tell a rejected declaration from an engine or I/O failure:

	if err := tmpl.Validate(); errors.Is(err, types.ErrInvalid) {
		// fix the configuration
	}

Validation collects every problem with errors.Join instead of stopping at
the first one.

A few rules are worth knowing up front:

  - Container reservations of a task must fit its CPU and memory envelope
  - At least one container of a task is essential
  - Container startup dependencies must not form a cycle
  - A health check timeout is strictly shorter than its interval
  - A service's desired count lies inside its scaling range
  - A canary depends on the service it probes
*/
package types

// Package reconciler waits for the provisioning engine to bring a stack to
// a terminal status, publishing each status transition as it is observed.
package reconciler

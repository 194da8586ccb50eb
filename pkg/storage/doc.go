/*
Package storage keeps the local record of stack operations in a BoltDB file.

The provisioning engine owns the real state of a stack. What is stored here is
what this machine submitted: one Deployment per deploy or destroy, plus the
rendered template of each deploy keyed by its content hash, so `history` can
show what was sent and when even after the stack is gone.

Layout of <data-dir>/appsignals.db:

	deployments/<uuid>    JSON-encoded types.Deployment
	templates/<sha256>    rendered template body

Missing records are reported with an error wrapping ErrNotFound.
*/
package storage

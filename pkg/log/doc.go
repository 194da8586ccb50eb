/*
Package log provides structured logging for appsignals using zerolog.

The package wraps a single global zerolog.Logger. It is a no-op logger until
Init is called, so library packages can log unconditionally and tests stay
quiet unless they opt in.

# Output

Console output (default) is meant for a human running the CLI:

	2025-01-13T10:30:00Z INF resource declared component=topology logical_id=Vpc resource_type=AWS::EC2::VPC

JSON output (--log-json) is meant for CI pipelines:

	{"level":"info","component":"engine","stack":"AppSignalsStack","status":"CREATE_COMPLETE","time":"..."}

Logs go to stderr by default so that `appsignals synth` can write the template
to stdout and be piped directly into other tools.

# Usage

	log.Init(log.Config{Level: "debug"})

	logger := log.WithComponent("topology")
	logger.Debug().Str("cidr", cidr).Msg("carving subnets")

	stackLog := log.WithStack(cfg.StackName)
	stackLog.Info().Str("status", status).Msg("stack status changed")

	recLog := log.WithDeployment(cfg.StackName, rec.ID)
	recLog.Warn().Err(err).Msg("failed to update deployment")
*/
package log

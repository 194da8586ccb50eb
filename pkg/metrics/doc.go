/*
Package metrics defines the Prometheus metrics of the appsignals tool.

All metrics are registered with the default registry at package init. The
tool is a short-lived CLI rather than a scrape target, so metrics are not
served over HTTP; WriteTextfile dumps the default gatherer to a file that
node-exporter's textfile collector picks up:

	appsignals deploy --wait --metrics-file /var/lib/node_exporter/appsignals.prom

Metric families:

  - appsignals_resources_synthesized{type}: resources in the last graph
  - appsignals_synthesis_duration_seconds: graph build and validation time
  - appsignals_engine_operations_total{action,result}: engine API calls
  - appsignals_stack_operation_duration_seconds{action}: submit to terminal status
  - appsignals_stack_status_polls_total: status polls while waiting
  - appsignals_asset_uploads_total{result} and appsignals_asset_bytes
  - appsignals_canary_runs_total{result}
  - appsignals_health_checks_total{type,result}

Timer wraps the common pattern of observing an elapsed duration:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SynthesisDuration)
*/
package metrics

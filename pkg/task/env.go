package task

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Sidecar ports the application's exporters point at. Containers in one
// awsvpc task share a network namespace, so localhost reaches the sidecars.
const (
	ADOTGRPCPort         = 4317
	ADOTHTTPPort         = 4318
	CWAgentOTLPPort      = 4316
	CWAgentXRayPort      = 2000
	sidecarLocalHostname = "localhost"
)

// Variables the application must read; values are configuration of this stack
const (
	EnvTracesExporter         = "OTEL_TRACES_EXPORTER"
	EnvMetricsExporter        = "OTEL_METRICS_EXPORTER"
	EnvLogsExporter           = "OTEL_LOGS_EXPORTER"
	EnvOTLPProtocol           = "OTEL_EXPORTER_OTLP_PROTOCOL"
	EnvOTLPTracesEndpoint     = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
	EnvOTLPMetricsEndpoint    = "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"
	EnvOTLPLogsEndpoint       = "OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"
	EnvPropagators            = "OTEL_PROPAGATORS"
	EnvResourceAttributes     = "OTEL_RESOURCE_ATTRIBUTES"
	EnvTracesSampler          = "OTEL_TRACES_SAMPLER"
	EnvSignalsEnabled         = "OTEL_AWS_APPLICATION_SIGNALS_ENABLED"
	EnvSignalsExportEndpoint  = "OTEL_AWS_APPLICATION_SIGNALS_EXPORTER_ENDPOINT"
	EnvPort                   = "PORT"
	EnvCWAgentConfig          = "CW_CONFIG_CONTENT"
	cwAgentApplicationSignals = `{"traces":{"traces_collected":{"application_signals":{}}},"logs":{"metrics_collected":{"application_signals":{}}}}`
)

func endpoint(port int, signal string) string {
	return fmt.Sprintf("http://%s:%d/v1/%s", sidecarLocalHostname, port, signal)
}

// ResourceAttributes encodes the OTEL resource of the application in the
// key=value,key=value form OTEL_RESOURCE_ATTRIBUTES expects. Values are
// percent-encoded, which is how SDKs decode the variable.
func ResourceAttributes(cfg config.Config) string {
	set := attribute.NewSet(
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	)
	return set.Encoded(resourceEncoder{})
}

var resourceEncoderID = attribute.NewEncoderID()

// resourceEncoder writes an attribute set as OTEL_RESOURCE_ATTRIBUTES
type resourceEncoder struct{}

func (resourceEncoder) ID() attribute.EncoderID {
	return resourceEncoderID
}

func (resourceEncoder) Encode(iter attribute.Iterator) string {
	var b strings.Builder
	for iter.Next() {
		kv := iter.Attribute()
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(kv.Key))
		b.WriteByte('=')
		b.WriteString(percentEncode(kv.Value.Emit()))
	}
	return b.String()
}

// percentEncode escapes every byte outside the unreserved URI set
func percentEncode(v string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

// ApplicationEnv is the fixed exporter wiring merged into the application
// container. Traces and Application Signals metrics go to the CloudWatch
// agent; generic OTLP metrics and logs go to the collector.
func ApplicationEnv(cfg config.Config) []types.EnvVar {
	return []types.EnvVar{
		{Name: EnvResourceAttributes, Value: ResourceAttributes(cfg)},
		{Name: EnvTracesExporter, Value: "otlp"},
		{Name: EnvMetricsExporter, Value: "otlp"},
		{Name: EnvLogsExporter, Value: "otlp"},
		{Name: EnvOTLPProtocol, Value: "http/protobuf"},
		{Name: EnvOTLPTracesEndpoint, Value: endpoint(CWAgentOTLPPort, "traces")},
		{Name: EnvOTLPMetricsEndpoint, Value: endpoint(ADOTHTTPPort, "metrics")},
		{Name: EnvOTLPLogsEndpoint, Value: endpoint(ADOTHTTPPort, "logs")},
		{Name: EnvSignalsEnabled, Value: "true"},
		{Name: EnvSignalsExportEndpoint, Value: endpoint(CWAgentOTLPPort, "metrics")},
		{Name: EnvTracesSampler, Value: "xray"},
		{Name: EnvPropagators, Value: "tracecontext,baggage,b3,xray"},
	}
}

// MergeEnv appends extra to base. A key present in both with different values
// is an error; an identical duplicate is dropped.
func MergeEnv(base, extra []types.EnvVar) ([]types.EnvVar, error) {
	out := append([]types.EnvVar(nil), base...)
	index := make(map[string]int, len(base))
	for i, e := range base {
		index[e.Name] = i
	}

	for _, e := range extra {
		if i, ok := index[e.Name]; ok {
			if out[i].Value != e.Value {
				return nil, fmt.Errorf("%w: environment variable %s set to both %q and %q",
					types.ErrInvalid, e.Name, out[i].Value, e.Value)
			}
			continue
		}
		index[e.Name] = len(out)
		out = append(out, e)
	}
	return out, nil
}

func portEnv(port int) types.EnvVar {
	return types.EnvVar{Name: EnvPort, Value: strconv.Itoa(port)}
}

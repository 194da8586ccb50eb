package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

const (
	userAgent      = "appsignals-verify"
	defaultTimeout = 10 * time.Second
	maxDrain       = 64 << 10
)

// ListenerProbe checks that the load balancer listener accepts connections
type ListenerProbe struct {
	Address string
	Timeout time.Duration
}

// NewListenerProbe probes host:port with the given dial timeout
func NewListenerProbe(host string, port int, timeout time.Duration) *ListenerProbe {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ListenerProbe{Address: net.JoinHostPort(host, strconv.Itoa(port)), Timeout: timeout}
}

func (p *ListenerProbe) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return observed(start, false, fmt.Sprintf("listener refused: %v", err))
	}
	_ = conn.Close()
	return observed(start, true, "listener accepted connection")
}

func (p *ListenerProbe) Type() CheckType { return CheckTypeTCP }
func (p *ListenerProbe) Target() string  { return p.Address }

// PathProbe requests the health check path through the listener and judges
// the status code with the target group's matcher
type PathProbe struct {
	URL     string
	Accepts func(code int) bool
	client  *http.Client
}

// NewPathProbe builds a probe for policy.Path below baseURL. The policy's
// timeout bounds each request.
func NewPathProbe(baseURL string, policy types.HealthCheckPolicy) *PathProbe {
	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PathProbe{
		URL:     strings.TrimSuffix(baseURL, "/") + policy.Path,
		Accepts: policy.Accepts,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *PathProbe) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return observed(start, false, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return observed(start, false, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !p.Accepts(resp.StatusCode) {
		return observed(start, false, message+" (not matched)")
	}
	return observed(start, true, message)
}

func (p *PathProbe) Type() CheckType { return CheckTypeHTTP }
func (p *PathProbe) Target() string  { return p.URL }

/*
Package health verifies a deployed service from the outside.

After a deployment the load balancer's DNS name is known; the verifier first
dials the listener over TCP, then requests the health check path over HTTP.
Each checker runs on the configured interval until it crosses a threshold:
HealthyThreshold consecutive passes settle it healthy, UnhealthyThreshold
consecutive failures settle it unhealthy. These are the same rules the
target group applies, so ConfigFromPolicy reuses the declared policy:

	cfg := health.ConfigFromPolicy(svc.LoadBalancer.HealthCheck)
	v := health.NewVerifier(cfg,
		health.NewListenerProbe(dns, 80, cfg.Timeout),
		health.NewPathProbe("http://"+dns, policy),
	)
	report, err := v.Run(ctx)
*/
package health

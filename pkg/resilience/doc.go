// Package resilience provides the outbound-call discipline for flaky
// upstreams: bounded retry with exponential backoff, rate-limit wait-hint
// compliance, and per-upstream circuit breaking.
//
// A Client is constructed once per logical upstream and shared by all
// requests in the process. Failed calls are classified into rate-limited,
// transient, permanent and unknown kinds; only the first two are retried,
// and only transient (plus optionally permanent) outcomes feed the circuit
// breaker's consecutive-failure tally.
//
// Usage:
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "bedrock-agent",
//		FailureThreshold: 5,
//		Cooldown:         60 * time.Second,
//	})
//	client := resilience.NewClient("bedrock-agent",
//		resilience.DefaultRetryConfig(), resilience.WithBreaker(cb))
//
//	result, err := client.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return agent.Invoke(ctx, req)
//	})
package resilience

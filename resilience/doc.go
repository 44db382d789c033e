// Package resilience guards calls to external dependencies.
//
// It provides a circuit breaker, retry with backoff, a token-bucket rate
// limiter, a bulkhead and a per-call timeout, and an Executor that chains
// them in a fixed order. CircuitBreaker and RateLimiter also implement
// health.Checker, so their state can be registered as a probe:
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    Name:         "pricefeed-breaker",
//	    MaxFailures:  5,
//	    ResetTimeout: time.Minute,
//	})
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(5*time.Second),
//	)
//	quote, err := resilience.Call(ctx, exec, fetchQuote)
//
//	registry.Register(health.Descriptor{Name: cb.Name(), Probe: health.FromChecker(cb)})
//
// Wrap an error with Permanent to stop Retry from trying again.
package resilience

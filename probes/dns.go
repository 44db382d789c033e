package probes

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/jonwraymond/healthops/health"
)

// DNSProbe resolves a host name. Target may be a bare host or a URL.
type DNSProbe struct {
	Target   string
	Resolver *net.Resolver
}

// Run implements health.Probe.
func (p *DNSProbe) Run(ctx context.Context) health.Outcome {
	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	host := hostOf(p.Target)

	start := time.Now()
	addrs, err := resolver.LookupHost(ctx, host)
	detail := map[string]any{
		"host":      host,
		"latencyMs": time.Since(start).Milliseconds(),
	}
	if err != nil {
		return health.DownOutcome(fmt.Errorf("resolve %s: %w", host, err), detail)
	}
	detail["addresses"] = len(addrs)
	return health.UpOutcome(detail)
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return target
	}
	return u.Hostname()
}

package proxy

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/things-go/go-socks5"
)

// SOCKSProxy is a SOCKS5 proxy server that enforces the domain policy.
// Denied targets fail the handshake before any upstream dial; allowed
// targets get a genuine bidirectional relay.
type SOCKSProxy struct {
	server   *socks5.Server
	listener net.Listener
	filter   *Filter
	debug    bool
	monitor  bool
	port     int
}

// NewSOCKSProxy creates a SOCKS5 proxy enforcing the given filter.
func NewSOCKSProxy(filter *Filter, debug, monitor bool) *SOCKSProxy {
	return &SOCKSProxy{
		filter:  filter,
		debug:   debug,
		monitor: monitor,
	}
}

// policyRuleSet implements socks5.RuleSet. Returning false fails the
// handshake with a rule-failure reply, so no connection to the target is
// ever attempted for denied hosts.
type policyRuleSet struct {
	filter  *Filter
	debug   bool
	monitor bool
}

func (r *policyRuleSet) Allow(ctx context.Context, req *socks5.Request) (context.Context, bool) {
	// Policy is domain-pattern based; IP literals are matched by their
	// textual form.
	host := req.DestAddr.FQDN
	if host == "" {
		host = req.DestAddr.IP.String()
	}

	allowed := r.filter.Allowed(host)

	if r.debug || (r.monitor && !allowed) {
		timestamp := time.Now().Format("15:04:05")
		verdict := "BLOCKED"
		if allowed {
			verdict = "ALLOWED"
		}
		fmt.Fprintf(os.Stderr, "[srt:socks] %s CONNECT %s:%d %s\n", timestamp, host, req.DestAddr.Port, verdict)
	}
	return ctx, allowed
}

// Start binds the proxy to loopback on an OS-assigned port and launches the
// accept loop. Returns the resolved port.
func (p *SOCKSProxy) Start() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = listener
	p.port = listener.Addr().(*net.TCPAddr).Port

	p.server = socks5.NewServer(
		socks5.WithRule(&policyRuleSet{
			filter:  p.filter,
			debug:   p.debug,
			monitor: p.monitor,
		}),
	)

	go func() {
		if err := p.server.Serve(p.listener); err != nil {
			if p.debug {
				fmt.Fprintf(os.Stderr, "[srt:socks] server error: %v\n", err)
			}
		}
	}()

	if p.debug {
		fmt.Fprintf(os.Stderr, "[srt:socks] listening on localhost:%d\n", p.port)
	}
	return p.port, nil
}

// Stop closes the listener, ending the accept loop.
func (p *SOCKSProxy) Stop() error {
	if p.listener != nil {
		return p.listener.Close()
	}
	return nil
}

// Port returns the bound port, or 0 before Start.
func (p *SOCKSProxy) Port() int {
	return p.port
}

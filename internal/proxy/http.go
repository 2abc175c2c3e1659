package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// HTTPProxy is an HTTP/HTTPS proxy server that enforces the domain policy.
// Denied requests are answered with 403 and never reach the target; allowed
// CONNECT requests become a bidirectional tunnel and allowed plain requests
// are forwarded upstream.
type HTTPProxy struct {
	server   *http.Server
	listener net.Listener
	filter   *Filter
	debug    bool
	monitor  bool
	mu       sync.RWMutex
	running  bool
}

// NewHTTPProxy creates an HTTP proxy enforcing the given filter.
// If monitor is true, blocked requests are logged.
// If debug is true, all requests are logged.
func NewHTTPProxy(filter *Filter, debug, monitor bool) *HTTPProxy {
	return &HTTPProxy{
		filter:  filter,
		debug:   debug,
		monitor: monitor,
	}
}

// Start binds the proxy to loopback on an OS-assigned port and launches the
// accept loop. Returns the resolved port.
func (p *HTTPProxy) Start() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to listen: %w", err)
	}

	p.listener = listener
	p.server = &http.Server{
		Handler: http.HandlerFunc(p.handleRequest),
	}

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	go func() {
		if err := p.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			p.logDebug("server error: %v", err)
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	p.logDebug("listening on localhost:%d", addr.Port)
	return addr.Port, nil
}

// Stop shuts the proxy down, waiting briefly for in-flight requests.
func (p *HTTPProxy) Stop() error {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.server.Shutdown(ctx)
	}
	return nil
}

// Port returns the bound port, or 0 before Start.
func (p *HTTPProxy) Port() int {
	if p.listener == nil {
		return 0
	}
	return p.listener.Addr().(*net.TCPAddr).Port
}

func (p *HTTPProxy) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
	} else {
		p.handleHTTP(w, r)
	}
}

// handleConnect handles HTTPS CONNECT requests (tunnel).
func (p *HTTPProxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	host, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
		port = "443"
	}

	if !p.filter.Allowed(host) {
		p.logRequest("CONNECT", host, http.StatusForbidden, "BLOCKED")
		http.Error(w, fmt.Sprintf("Access to %s is blocked by sandbox policy", host), http.StatusForbidden)
		return
	}

	p.logRequest("CONNECT", host, http.StatusOK, "ALLOWED")

	targetConn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 10*time.Second)
	if err != nil {
		p.logDebug("CONNECT dial failed: %s:%s: %v", host, port, err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer targetConn.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "Hijacking not supported", http.StatusInternalServerError)
		return
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, "Failed to hijack connection", http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()

	clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		io.Copy(targetConn, clientConn)
	}()

	go func() {
		defer wg.Done()
		io.Copy(clientConn, targetConn)
	}()

	wg.Wait()
}

// handleHTTP handles regular (plaintext) proxy requests.
func (p *HTTPProxy) handleHTTP(w http.ResponseWriter, r *http.Request) {
	host := HostFromRequest(r)

	if !p.filter.Allowed(host) {
		p.logRequest(r.Method, host, http.StatusForbidden, "BLOCKED")
		http.Error(w, fmt.Sprintf("Access to %s is blocked by sandbox policy", host), http.StatusForbidden)
		return
	}

	proxyReq, err := http.NewRequest(r.Method, r.RequestURI, r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	for key, values := range r.Header {
		for _, value := range values {
			proxyReq.Header.Add(key, value)
		}
	}
	proxyReq.Host = r.Host

	// Hop-by-hop headers must not be forwarded.
	proxyReq.Header.Del("Proxy-Connection")
	proxyReq.Header.Del("Proxy-Authorization")

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(proxyReq)
	if err != nil {
		p.logRequest(r.Method, host, http.StatusBadGateway, "ERROR")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)

	p.logRequest(r.Method, host, resp.StatusCode, "ALLOWED")
}

func (p *HTTPProxy) logDebug(format string, args ...any) {
	if p.debug {
		fmt.Fprintf(os.Stderr, "[srt:http] "+format+"\n", args...)
	}
}

// logRequest logs one request decision. In monitor mode only blocked and
// errored requests are logged; debug mode logs everything.
func (p *HTTPProxy) logRequest(method, host string, status int, action string) {
	isBlocked := action == "BLOCKED" || action == "ERROR"

	if p.monitor && !p.debug && !isBlocked {
		return
	}
	if !p.debug && !p.monitor {
		return
	}

	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(os.Stderr, "[srt:http] %s %-7s %d %s %s\n", timestamp, method, status, host, action)
}

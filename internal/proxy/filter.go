// Package proxy provides HTTP and SOCKS5 proxy servers with domain filtering.
package proxy

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/svngoku/sandbox-runtime/internal/errdefs"
)

// CompilePattern compiles a wildcard domain pattern into an anchored,
// case-sensitive regular expression. "*" matches any run of characters;
// every other character, including ".", matches literally.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, errdefs.New(errdefs.KindConfig, "empty domain pattern")
	}

	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errdefs.Newf(errdefs.KindConfig, "invalid domain pattern %q: %w", pattern, err)
	}
	return re, nil
}

// Filter decides whether a hostname is reachable under the network policy.
// Both proxies share one Filter per manager.
type Filter struct {
	allowed []*regexp.Regexp
	denied  []*regexp.Regexp
	debug   bool
}

// NewFilter compiles the allow and deny pattern lists. A pattern that fails
// to compile is a configuration error and aborts construction.
func NewFilter(allowedDomains, deniedDomains []string, debug bool) (*Filter, error) {
	f := &Filter{debug: debug}

	for _, p := range allowedDomains {
		re, err := CompilePattern(p)
		if err != nil {
			return nil, err
		}
		f.allowed = append(f.allowed, re)
	}
	for _, p := range deniedDomains {
		re, err := CompilePattern(p)
		if err != nil {
			return nil, err
		}
		f.denied = append(f.denied, re)
	}

	return f, nil
}

// Allowed reports whether host may be reached. Denied patterns are checked
// first and override everything; an empty allow list means allow-by-default;
// otherwise some allow pattern must match.
func (f *Filter) Allowed(host string) bool {
	for _, re := range f.denied {
		if re.MatchString(host) {
			f.logDecision(host, false, re.String())
			return false
		}
	}

	if len(f.allowed) == 0 {
		f.logDecision(host, true, "default-allow")
		return true
	}

	for _, re := range f.allowed {
		if re.MatchString(host) {
			f.logDecision(host, true, re.String())
			return true
		}
	}

	f.logDecision(host, false, "no matching rule")
	return false
}

func (f *Filter) logDecision(host string, allowed bool, rule string) {
	if !f.debug {
		return
	}
	verdict := "denied"
	if allowed {
		verdict = "allowed"
	}
	fmt.Fprintf(os.Stderr, "[srt:filter] %s %s (%s)\n", host, verdict, rule)
}

// HostFromRequest extracts the target hostname from an HTTP request: the
// request URI authority when present, else the Host header with any port
// suffix stripped.
func HostFromRequest(r *http.Request) string {
	if h := r.URL.Hostname(); h != "" {
		return h
	}
	host := r.Host
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.HasSuffix(host, "]") {
		host = host[:idx]
	}
	return host
}

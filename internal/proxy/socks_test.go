package proxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/things-go/go-socks5"
	"github.com/things-go/go-socks5/statute"
)

func TestPolicyRuleSetAllow(t *testing.T) {
	tests := []struct {
		name    string
		fqdn    string
		ip      net.IP
		port    int
		allowed bool
	}{
		{
			name:    "allow by FQDN",
			fqdn:    "allowed.com",
			port:    443,
			allowed: true,
		},
		{
			name:    "deny by FQDN",
			fqdn:    "blocked.com",
			port:    443,
			allowed: false,
		},
		{
			name:    "fallback to IP when FQDN empty",
			fqdn:    "",
			ip:      net.ParseIP("1.2.3.4"),
			port:    80,
			allowed: false,
		},
		{
			name:    "allow with IP fallback",
			fqdn:    "",
			ip:      net.ParseIP("127.0.0.1"),
			port:    8080,
			allowed: true,
		},
	}

	filter, err := NewFilter([]string{"allowed.com", "127.0.0.1"}, nil, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &policyRuleSet{filter: filter}
			req := &socks5.Request{
				DestAddr: &statute.AddrSpec{
					FQDN: tt.fqdn,
					IP:   tt.ip,
					Port: tt.port,
				},
			}

			_, allowed := rs.Allow(context.Background(), req)
			if allowed != tt.allowed {
				t.Errorf("Allow() = %v, want %v", allowed, tt.allowed)
			}
		})
	}
}

func TestPolicyRuleSetDenyWins(t *testing.T) {
	filter, err := NewFilter([]string{"*.example.com"}, []string{"bad.example.com"}, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	rs := &policyRuleSet{filter: filter}

	req := &socks5.Request{
		DestAddr: &statute.AddrSpec{FQDN: "bad.example.com", Port: 443},
	}
	if _, allowed := rs.Allow(context.Background(), req); allowed {
		t.Error("denied pattern must override the matching allow pattern")
	}
}

// socksConnect performs a no-auth SOCKS5 handshake and a CONNECT request to
// an IPv4 target, returning the open connection and the server's reply code.
func socksConnect(t *testing.T, proxyPort int, target *net.TCPAddr) (net.Conn, byte) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", proxyPort), 2*time.Second)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write method selection: %v", err)
	}
	method := make([]byte, 2)
	if _, err := io.ReadFull(conn, method); err != nil {
		t.Fatalf("read method reply: %v", err)
	}
	if method[0] != 0x05 || method[1] != 0x00 {
		t.Fatalf("unexpected method reply % x", method)
	}

	req := []byte{0x05, 0x01, 0x00, 0x01}
	req = append(req, target.IP.To4()...)
	req = binary.BigEndian.AppendUint16(req, uint16(target.Port))
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write connect request: %v", err)
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		t.Fatalf("read connect reply: %v", err)
	}

	// Drain the bound address so the relay stream starts clean.
	var addrLen int
	switch reply[3] {
	case 0x01:
		addrLen = 4 + 2
	case 0x04:
		addrLen = 16 + 2
	}
	if addrLen > 0 {
		if _, err := io.ReadFull(conn, make([]byte, addrLen)); err != nil {
			t.Fatalf("read bound address: %v", err)
		}
	}

	return conn, reply[1]
}

func TestSOCKSProxyDeniedTargetNeverDialed(t *testing.T) {
	upstream, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer upstream.Close()

	accepted := make(chan struct{}, 1)
	go func() {
		conn, err := upstream.Accept()
		if err != nil {
			return
		}
		accepted <- struct{}{}
		conn.Close()
	}()

	filter, err := NewFilter(nil, []string{"127.0.0.1"}, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	proxy := NewSOCKSProxy(filter, false, false)
	port, err := proxy.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer proxy.Stop()

	_, rep := socksConnect(t, port, upstream.Addr().(*net.TCPAddr))
	if rep == 0x00 {
		t.Fatal("CONNECT to a denied target must not succeed")
	}

	select {
	case <-accepted:
		t.Fatal("denied target received a connection")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSOCKSProxyAllowedTargetRelays(t *testing.T) {
	upstream, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer upstream.Close()

	go func() {
		conn, err := upstream.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		conn.Write([]byte("pong"))
	}()

	filter, err := NewFilter(nil, nil, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	proxy := NewSOCKSProxy(filter, false, false)
	port, err := proxy.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer proxy.Stop()

	conn, rep := socksConnect(t, port, upstream.Addr().(*net.TCPAddr))
	if rep != 0x00 {
		t.Fatalf("CONNECT reply = %#x, want success", rep)
	}

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write through tunnel: %v", err)
	}
	got := make([]byte, 4)
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read through tunnel: %v", err)
	}
	if string(got) != "pong" {
		t.Errorf("relayed response = %q, want pong", got)
	}
}

func TestSOCKSProxyStartStop(t *testing.T) {
	filter, err := NewFilter(nil, nil, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	proxy := NewSOCKSProxy(filter, false, false)

	port, err := proxy.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if port <= 0 {
		t.Errorf("Start() returned invalid port: %d", port)
	}
	if proxy.Port() != port {
		t.Errorf("Port() = %d, want %d", proxy.Port(), port)
	}

	if err := proxy.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSOCKSProxyPortBeforeStart(t *testing.T) {
	filter, err := NewFilter(nil, nil, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	proxy := NewSOCKSProxy(filter, false, false)

	if proxy.Port() != 0 {
		t.Errorf("Port() before Start() = %d, want 0", proxy.Port())
	}
}

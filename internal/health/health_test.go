package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return port
}

func TestProbeHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &HTTPProber{Host: "127.0.0.1"}
	res := p.Probe(context.Background(), serverPort(t, srv), "/health")
	if !res.Healthy {
		t.Errorf("healthy = false, detail = %s", res.Detail)
	}
	if res.Mode != "http" {
		t.Errorf("mode = %s, want http", res.Mode)
	}
}

func TestProbeNon200IsAuthoritative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := &HTTPProber{Host: "127.0.0.1"}
	res := p.Probe(context.Background(), serverPort(t, srv), "/health")
	if res.Healthy {
		t.Error("500 response reported healthy")
	}
	// An HTTP answer means the server spoke; no tcp fallback.
	if res.Mode != "http" {
		t.Errorf("mode = %s, want http", res.Mode)
	}
	if !strings.Contains(res.Detail, "500") {
		t.Errorf("detail = %s, want status code", res.Detail)
	}
}

func TestProbeDeadPort(t *testing.T) {
	// Reserve a port and close it so nothing is listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	p := &HTTPProber{Host: "127.0.0.1", HTTPTimeout: 2 * time.Second, TCPTimeout: time.Second}
	res := p.Probe(context.Background(), port, "/health")
	if res.Healthy {
		t.Error("dead port reported healthy")
	}
	if res.Mode != "tcp" {
		t.Errorf("mode = %s, want tcp after transport failure", res.Mode)
	}
}

func TestProbeTCPFallbackHealthy(t *testing.T) {
	// A raw listener accepts connections but speaks no HTTP.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	port := l.Addr().(*net.TCPAddr).Port

	p := &HTTPProber{Host: "127.0.0.1", HTTPTimeout: 500 * time.Millisecond, TCPTimeout: time.Second}
	res := p.Probe(context.Background(), port, "/health")
	if !res.Healthy {
		t.Errorf("healthy = false, detail = %s", res.Detail)
	}
	if res.Mode != "tcp" {
		t.Errorf("mode = %s, want tcp", res.Mode)
	}
}

// Package health probes the deployed application endpoint.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of one probe. Mode records which check produced it.
type Result struct {
	Healthy bool
	Mode    string
	Detail  string
}

// Prober checks whether the application on a port responds.
type Prober interface {
	Probe(ctx context.Context, port int, path string) Result
}

// HTTPProber issues a GET against the health path and falls back to a raw
// TCP connect when the HTTP attempt fails at the transport level. An HTTP
// response of any status is authoritative: no fallback.
type HTTPProber struct {
	Host        string
	HTTPTimeout time.Duration
	TCPTimeout  time.Duration
}

func (p *HTTPProber) host() string {
	if p.Host == "" {
		return "localhost"
	}
	return p.Host
}

func (p *HTTPProber) Probe(ctx context.Context, port int, path string) Result {
	httpTimeout := p.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}

	url := fmt.Sprintf("http://%s:%d%s", p.host(), port, path)
	reqCtx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Mode: "http", Detail: fmt.Sprintf("build request: %v", err)}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("http probe failed, trying tcp")
		return p.probeTCP(ctx, port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return Result{Healthy: true, Mode: "http", Detail: fmt.Sprintf("GET %s returned 200", url)}
	}
	return Result{Mode: "http", Detail: fmt.Sprintf("GET %s returned %d", url, resp.StatusCode)}
}

func (p *HTTPProber) probeTCP(ctx context.Context, port int, httpErr error) Result {
	tcpTimeout := p.TCPTimeout
	if tcpTimeout <= 0 {
		tcpTimeout = 5 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, tcpTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", p.host(), port))
	if err != nil {
		return Result{
			Mode:   "tcp",
			Detail: fmt.Sprintf("http: %v; tcp: %v", httpErr, err),
		}
	}
	conn.Close()
	return Result{Healthy: true, Mode: "tcp", Detail: "port accepts connections"}
}

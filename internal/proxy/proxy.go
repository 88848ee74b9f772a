package proxy

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/tagging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultContainerHeader names the container on proxied requests.
const DefaultContainerHeader = "X-Courier-Container"

// Tagger is the request tagging pipeline.
type Tagger interface {
	Handle(ctx context.Context, req tagging.Request) *tagging.Result
}

// Config configures the proxy.
type Config struct {
	ContainerHeader string
	DialTimeout     time.Duration
	Logger          *zap.Logger
	// Transport forwards plain requests. Defaults to a transport that never
	// chains to another proxy.
	Transport http.RoundTripper
}

// Proxy is an http.Handler implementing a forward proxy.
type Proxy struct {
	tagger          Tagger
	containerHeader string
	dialer          *net.Dialer
	reverse         *httputil.ReverseProxy
	logger          *zap.Logger
}

// New creates a forward proxy.
func New(cfg Config, tagger Tagger) *Proxy {
	if cfg.ContainerHeader == "" {
		cfg.ContainerHeader = DefaultContainerHeader
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	p := &Proxy{
		tagger:          tagger,
		containerHeader: http.CanonicalHeaderKey(cfg.ContainerHeader),
		dialer:          &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second},
		logger:          logging.OrNop(cfg.Logger),
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 nil,
			DialContext:           p.dialer.DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}

	p.reverse = &httputil.ReverseProxy{
		Rewrite:   p.rewrite,
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.Warn("upstream request failed",
				zap.String("url", r.URL.String()),
				zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.tunnel(w, r)
		return
	}
	if !r.URL.IsAbs() || r.URL.Host == "" {
		http.Error(w, "this is a forward proxy; absolute request URI required", http.StatusBadRequest)
		return
	}
	p.reverse.ServeHTTP(w, r)
}

// rewrite runs after hop-by-hop headers have been removed from pr.Out.
func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	containerID := p.containerID(pr.In)
	pr.Out.Header.Del(p.containerHeader)

	res := p.tagger.Handle(pr.In.Context(), tagging.Request{
		ContainerID: containerID,
		Headers:     toHeaders(pr.Out.Header),
	})
	if res != nil {
		pr.Out.Header = fromHeaders(res.Headers)
	}
}

// containerID reads the container from the dedicated header, falling back to
// the Proxy-Authorization username.
func (p *Proxy) containerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(p.containerHeader)); id != "" {
		return id
	}
	user, ok := proxyUser(r.Header.Get("Proxy-Authorization"))
	if !ok {
		return ""
	}
	return user
}

func proxyUser(auth string) (string, bool) {
	const prefix = "Basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", false
	}
	user, _, ok := strings.Cut(string(decoded), ":")
	return user, ok && user != ""
}

// toHeaders flattens h in a stable order.
func toHeaders(h http.Header) []tagging.Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]tagging.Header, 0, len(h))
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, tagging.Header{Name: name, Value: v})
		}
	}
	return out
}

func fromHeaders(headers []tagging.Header) http.Header {
	h := make(http.Header, len(headers))
	for _, hdr := range headers {
		h.Add(hdr.Name, hdr.Value)
	}
	return h
}

// tunnel handles CONNECT by splicing the client and target connections.
func (p *Proxy) tunnel(w http.ResponseWriter, r *http.Request) {
	target, err := p.dialer.DialContext(r.Context(), "tcp", r.Host)
	if err != nil {
		p.logger.Warn("tunnel dial failed", zap.String("host", r.Host), zap.Error(err))
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		target.Close()
		http.Error(w, "tunnelling not supported", http.StatusInternalServerError)
		return
	}
	client, buffered, err := hijacker.Hijack()
	if err != nil {
		target.Close()
		p.logger.Warn("hijack failed", zap.Error(err))
		return
	}
	defer client.Close()
	defer target.Close()

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(target, buffered.Reader)
		closeWrite(target)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(client, target)
		closeWrite(client)
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		p.logger.Debug("tunnel closed", zap.String("host", r.Host), zap.Error(err))
	}
}

func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
}

// Package restproxy fronts the WooCommerce REST API and runs order objects
// through the payload pipeline before they reach the client.
package restproxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pipeline"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/safehttp"
	"github.com/tjfontaine/frenet-gateway/internal/server"
)

// orderPath matches order collection, single order and batch endpoints of any
// REST API version, under any upstream path prefix.
var orderPath = regexp.MustCompile(`/wp-json/wc/v[0-9]+/orders(/[0-9]+|/batch)?/?$`)

// Config configures the proxy.
type Config struct {
	// Upstream is the shop base URL, e.g. https://shop.example.com.
	Upstream string
	// Timeout bounds the wait for upstream response headers.
	Timeout      time.Duration
	BlockPrivate bool
	// Transport overrides the upstream transport; BlockPrivate and Timeout are
	// ignored when set.
	Transport http.RoundTripper
}

// Proxy is a reverse proxy for /wp-json/.
type Proxy struct {
	upstream *url.URL
	pipeline ports.PipelineExecutor
	proxy    *httputil.ReverseProxy
	logger   *slog.Logger
}

// New creates a proxy. A nil pipeline proxies responses unchanged.
func New(cfg Config, p ports.PipelineExecutor, logger *slog.Logger) (*Proxy, error) {
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", cfg.Upstream)
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		t := safehttp.NewTransport(cfg.BlockPrivate)
		t.ResponseHeaderTimeout = cfg.Timeout
		transport = t
	}

	px := &Proxy{
		upstream: upstream,
		pipeline: p,
		logger:   logger,
	}
	px.proxy = &httputil.ReverseProxy{
		Rewrite:        px.rewrite,
		Transport:      otelhttp.NewTransport(transport),
		ModifyResponse: px.modifyResponse,
		ErrorHandler:   px.handleError,
	}
	return px, nil
}

// Register mounts the proxy on r.
func (p *Proxy) Register(r chi.Router) {
	r.Handle("/wp-json/*", p)
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	server.AddLogField(r.Context(), "upstream", p.upstream.Host)
	p.proxy.ServeHTTP(w, r)
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.upstream)
	pr.SetXForwarded()
	// Let the transport negotiate compression so bodies arrive decoded.
	pr.Out.Header.Del("Accept-Encoding")
}

// IsOrderPath reports whether path is an order endpoint whose responses are patched.
func IsOrderPath(path string) bool {
	return orderPath.MatchString(path)
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	if p.pipeline == nil || !patchable(resp) {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read upstream body: %w", err)
	}

	req := resp.Request
	meta := map[string]any{
		ports.MetaResource:  domain.ResourceOrder,
		ports.MetaRequestID: server.GetRequestID(req.Context()),
	}

	patched, err := p.patchBody(req, body, meta)
	if err != nil {
		return err
	}

	resp.Body = io.NopCloser(bytes.NewReader(patched))
	resp.ContentLength = int64(len(patched))
	resp.Header.Set("Content-Length", strconv.Itoa(len(patched)))
	return nil
}

func patchable(resp *http.Response) bool {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	if resp.Request == nil || !IsOrderPath(resp.Request.URL.Path) {
		return false
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && (mediaType == "application/json" || mediaType == "text/json")
}

func (p *Proxy) patchBody(req *http.Request, body []byte, meta map[string]any) ([]byte, error) {
	switch firstByte(body) {
	case '[':
		return p.patchList(req, body, meta)
	case '{':
		if bytes.HasSuffix(bytes.TrimRight([]byte(req.URL.Path), "/"), []byte("/batch")) {
			return p.patchBatch(req, body, meta)
		}
		return p.pipeline.RunREST(req.Context(), body, meta)
	default:
		return body, nil
	}
}

// patchList patches each element of a JSON array. Unchanged elements keep their bytes.
func (p *Proxy) patchList(req *http.Request, body []byte, meta map[string]any) ([]byte, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return body, nil
	}

	changed := false
	for i, item := range items {
		if firstByte(item) != '{' {
			continue
		}
		out, err := p.pipeline.RunREST(req.Context(), item, meta)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(out, item) {
			items[i] = out
			changed = true
		}
	}
	if !changed {
		return body, nil
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(item)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// patchBatch patches the create/update/delete groups of a batch response.
func (p *Proxy) patchBatch(req *http.Request, body []byte, meta map[string]any) ([]byte, error) {
	var groups map[string]json.RawMessage
	if err := json.Unmarshal(body, &groups); err != nil {
		return body, nil
	}

	changed := false
	for name, group := range groups {
		if firstByte(group) != '[' {
			continue
		}
		out, err := p.patchList(req, group, meta)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(out, group) {
			groups[name] = out
			changed = true
		}
	}
	if !changed {
		return body, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(groups); err != nil {
		return nil, fmt.Errorf("encode batch response: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// restError mirrors the WordPress REST API error shape.
type restError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Data    restErrorData `json:"data"`
}

type restErrorData struct {
	Status int `json:"status"`
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := server.GetRequestID(r.Context())
	server.AddError(r.Context(), err)

	status := http.StatusBadGateway
	code := "frenet_gateway_upstream_error"
	message := "upstream request failed"

	var denied *pipeline.DeniedError
	if errors.As(err, &denied) {
		status = http.StatusForbidden
		code = "frenet_gateway_denied"
		message = denied.Reason
		p.logger.Info("rest response denied by pipeline",
			slog.String("request_id", requestID),
			slog.String("path", r.URL.Path),
			slog.String("stage", denied.StageName),
		)
	} else {
		p.logger.Error("rest proxy error",
			slog.String("request_id", requestID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(restError{
		Code:    code,
		Message: message,
		Data:    restErrorData{Status: status},
	})
}

func firstByte(b []byte) byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

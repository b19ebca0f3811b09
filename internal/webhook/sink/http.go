package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/safehttp"
)

// maxErrorBody bounds how much of a failed response is kept in a DeliveryError.
const maxErrorBody = 4 << 10

// DeliveryError is returned when the subscriber answers with a non-2xx status.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("subscriber returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPConfig configures an HTTP sink.
type HTTPConfig struct {
	URL          string
	Timeout      time.Duration
	BlockPrivate bool
	Headers      map[string]string
	// Transport overrides the base transport; BlockPrivate is ignored when set.
	Transport http.RoundTripper
}

// HTTPSink POSTs deliveries to a subscriber URL.
type HTTPSink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPSink creates an HTTP sink.
func NewHTTPSink(cfg HTTPConfig) *HTTPSink {
	base := cfg.Transport
	if base == nil {
		base = safehttp.NewTransport(cfg.BlockPrivate)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPSink{
		url:     cfg.URL,
		headers: cfg.Headers,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}
}

// Deliver POSTs d.Body with the WooCommerce headers of d.
func (s *HTTPSink) Deliver(ctx context.Context, d *domain.WebhookDelivery) (*ports.DeliveryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(d.Body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deliver to %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return &ports.DeliveryResult{StatusCode: resp.StatusCode}, nil
}

func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ ports.Sink = (*HTTPSink)(nil)

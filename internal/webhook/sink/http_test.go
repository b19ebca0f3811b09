package sink

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
)

func testDelivery() *domain.WebhookDelivery {
	return &domain.WebhookDelivery{
		ID:         "d-77",
		Subscriber: "tiny",
		Topic:      "order.updated",
		Resource:   "order",
		Headers: map[string]string{
			"X-WC-Webhook-Topic":     "order.updated",
			"X-WC-Webhook-Signature": "c2lnbmVk",
		},
		Body:       []byte(`{"id":1050}`),
		ReceivedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
}

func TestHTTPSink_Deliver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("X-WC-Webhook-Signature"); got != "c2lnbmVk" {
			t.Errorf("signature header = %q", got)
		}
		if got := r.Header.Get("X-Api-Token"); got != "erp" {
			t.Errorf("custom header = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"id":1050}` {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewHTTPSink(HTTPConfig{
		URL:     srv.URL,
		Timeout: time.Second,
		Headers: map[string]string{"X-Api-Token": "erp"},
	})
	defer s.Close()

	res, err := s.Deliver(t.Context(), testDelivery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", res.StatusCode)
	}
}

func TestHTTPSink_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "erp down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPSink(HTTPConfig{URL: srv.URL, Timeout: time.Second})

	_, err := s.Deliver(t.Context(), testDelivery())
	var derr *DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if derr.StatusCode != http.StatusServiceUnavailable || derr.Body != "erp down\n" {
		t.Errorf("unexpected error: %+v", derr)
	}
}

func TestHTTPSink_BlockPrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach a loopback subscriber")
	}))
	defer srv.Close()

	s := NewHTTPSink(HTTPConfig{URL: srv.URL, Timeout: time.Second, BlockPrivate: true})

	if _, err := s.Deliver(t.Context(), testDelivery()); err == nil {
		t.Fatal("expected private address to be refused")
	}
}

package sink

import (
	"strings"
	"testing"

	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
)

func TestNew(t *testing.T) {
	s, err := New(config.SinkConfig{URL: "https://erp.example.com/hooks"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*HTTPSink); !ok {
		t.Errorf("expected HTTPSink, got %T", s)
	}

	if _, err := New(config.SinkConfig{Type: "kafka"}, nil); err == nil || !strings.Contains(err.Error(), "unknown sink type") {
		t.Errorf("expected unknown sink error, got %v", err)
	}

	if _, err := New(config.SinkConfig{URL: "https://erp.example.com", Timeout: "whenever"}, nil); err == nil {
		t.Error("expected invalid timeout error")
	}
}

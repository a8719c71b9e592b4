package tracing

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/subgate/internal/config"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Endpoint: "localhost:4317"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown, got %v", err)
	}
}

func TestProtocol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "grpc"},
		{"grpc", "grpc"},
		{"HTTP", "http"},
	}
	for _, tt := range tests {
		if got := protocol(config.TelemetryConfig{Protocol: tt.in}); got != tt.want {
			t.Fatalf("protocol(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

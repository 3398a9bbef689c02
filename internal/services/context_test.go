package services_test

import (
	"context"
	"testing"

	"contractflow/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithContractID(ctx, "c-42")
	ctx = services.WithComponent(ctx, "review")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ContractIDFromContext(ctx); !ok || id != "c-42" {
		t.Fatalf("unexpected contract id: %v %v", id, ok)
	}
	if component, ok := services.ComponentFromContext(ctx); !ok || component != "review" {
		t.Fatalf("unexpected component: %v %v", component, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithContractID(ctx, "")
	ctx = services.WithRequestID(ctx, "")
	if _, ok := services.ContractIDFromContext(ctx); ok {
		t.Fatal("expected no contract id value")
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id value")
	}
}

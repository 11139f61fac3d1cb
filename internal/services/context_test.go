package services_test

import (
	"context"
	"testing"

	"mediapost/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithFileID(ctx, "f-42")
	ctx = services.WithStage(ctx, "transcription")
	ctx = services.WithLane(ctx, "packaging")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.FileIDFromContext(ctx); !ok || id != "f-42" {
		t.Fatalf("unexpected file id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcription" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if lane, ok := services.LaneFromContext(ctx); !ok || lane != "packaging" {
		t.Fatalf("unexpected lane: %v %v", lane, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithFileID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.FileIDFromContext(ctx); ok {
		t.Fatal("expected no file id value")
	}
}

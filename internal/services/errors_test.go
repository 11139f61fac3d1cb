package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"mediapost/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "packaging", "encode", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"packaging", "encode", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "transcription", "persist", "db busy", nil), true},
		{"unexpected", errors.New("disk I/O error"), true},
		{"validation", services.Wrap(services.ErrValidation, "transcription", "probe", "unreadable", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "transcription", "transcribe", "quota", nil), false},
		{"domain", services.Wrap(services.ErrDomain, "packaging", "package", "no variants", nil), false},
		{"timeout", services.Wrap(services.ErrTimeout, "packaging", "encode", "deadline", nil), false},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestKindLabels(t *testing.T) {
	if kind := services.Kind(services.Wrap(services.ErrDomain, "", "", "x", nil)); kind != "domain" {
		t.Fatalf("expected domain kind, got %q", kind)
	}
	if kind := services.Kind(errors.New("x")); kind != "unexpected" {
		t.Fatalf("expected unexpected kind, got %q", kind)
	}
	if kind := services.Kind(nil); kind != "" {
		t.Fatalf("expected empty kind for nil, got %q", kind)
	}
}

package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mediapost/internal/config"
	"mediapost/internal/notifications"
)

type captured struct {
	title, tags, priority, body string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(config.Notifications{})
	if err := svc.NotifyLaneFailed(context.Background(), "transcription", "a.mp3", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, got := newNtfyServer(t, http.StatusOK)
	svc := notifications.NewService(config.Notifications{NtfyTopic: srv.URL})
	ctx := context.Background()

	if err := svc.NotifyLaneCompleted(ctx, "transcription", "standup.mp4"); err != nil {
		t.Fatalf("NotifyLaneCompleted failed: %v", err)
	}
	if err := svc.NotifyLaneCompleted(ctx, "packaging", "standup.mp4"); err != nil {
		t.Fatalf("NotifyLaneCompleted failed: %v", err)
	}
	if err := svc.NotifyLaneFailed(ctx, "packaging", "standup.mp4", errors.New("no variants succeeded")); err != nil {
		t.Fatalf("NotifyLaneFailed failed: %v", err)
	}

	tests := []captured{
		{title: "mediapost - Transcription Complete", tags: "mediapost,transcription,completed", body: "📝 Transcript ready: standup.mp4"},
		{title: "mediapost - Packaging Complete", tags: "mediapost,packaging,completed", body: "🎞️ Stream ready: standup.mp4"},
		{title: "mediapost - Packaging Failed", tags: "mediapost,packaging,error", priority: "high", body: "❌ packaging failed for standup.mp4: no variants succeeded"},
	}
	if len(*got) != len(tests) {
		t.Fatalf("expected %d requests, got %d", len(tests), len(*got))
	}
	for i, want := range tests {
		if (*got)[i] != want {
			t.Fatalf("request %d = %#v, want %#v", i, (*got)[i], want)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	svc := notifications.NewService(config.Notifications{NtfyTopic: srv.URL})
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

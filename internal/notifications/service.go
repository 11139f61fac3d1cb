package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediapost/internal/config"
)

const userAgent = "mediapost/0.1.0"

// Service defines the notification surface used by the dispatcher.
type Service interface {
	NotifyLaneCompleted(ctx context.Context, lane, fileName string) error
	NotifyLaneFailed(ctx context.Context, lane, fileName string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyLaneCompleted(ctx context.Context, lane, fileName string) error {
	var message string
	switch lane {
	case "transcription":
		message = fmt.Sprintf("📝 Transcript ready: %s", fileName)
	case "packaging":
		message = fmt.Sprintf("🎞️ Stream ready: %s", fileName)
	default:
		message = fmt.Sprintf("%s complete: %s", lane, fileName)
	}
	return n.send(ctx, payload{
		title:   "mediapost - " + titleCase(lane) + " Complete",
		message: message,
		tags:    []string{"mediapost", lane, "completed"},
	})
}

func (n *ntfyService) NotifyLaneFailed(ctx context.Context, lane, fileName string, err error) error {
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:    "mediapost - " + titleCase(lane) + " Failed",
		message:  fmt.Sprintf("❌ %s failed for %s: %s", lane, fileName, detail),
		tags:     []string{"mediapost", lane, "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "mediapost - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"mediapost", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

type noopService struct{}

func (noopService) NotifyLaneCompleted(context.Context, string, string) error      { return nil }
func (noopService) NotifyLaneFailed(context.Context, string, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }

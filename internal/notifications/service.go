package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"meetiq/internal/config"
)

const userAgent = "meetiq/0.1.0"

// Service defines the notification surface exposed to the upload pipeline.
type Service interface {
	NotifyUploadStarted(ctx context.Context, subject string, totalChunks int) error
	NotifyUploadCompleted(ctx context.Context, subject string) error
	NotifyProcessingCompleted(ctx context.Context, subject string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		uploads:    cfg.Notifications.Uploads,
		processing: cfg.Notifications.Processing,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	uploads    bool
	processing bool
	errors     bool
}

func (n *ntfyService) NotifyUploadStarted(ctx context.Context, subject string, totalChunks int) error {
	if !n.uploads {
		return nil
	}
	subject = displaySubject(subject)
	data := payload{
		title:   "meetIQ - Upload Started",
		message: fmt.Sprintf("Uploading %s (%d chunks)", subject, totalChunks),
		tags:    []string{"meetiq", "upload", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUploadCompleted(ctx context.Context, subject string) error {
	if !n.uploads {
		return nil
	}
	data := payload{
		title:   "meetIQ - Upload Complete",
		message: fmt.Sprintf("All chunks received for %s", displaySubject(subject)),
		tags:    []string{"meetiq", "upload", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProcessingCompleted(ctx context.Context, subject string) error {
	if !n.processing {
		return nil
	}
	data := payload{
		title:    "meetIQ - Analysis Ready",
		message:  fmt.Sprintf("Meeting analysis ready: %s", displaySubject(subject)),
		tags:     []string{"meetiq", "processing", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "meetIQ - Error",
		message:  builder.String(),
		tags:     []string{"meetiq", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "meetIQ - Test",
		message:  "Notification system test",
		tags:     []string{"meetiq", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

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
	if data.priority != "" && data.priority != "default" {
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

func displaySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "untitled meeting"
	}
	return subject
}

type noopService struct{}

func (noopService) NotifyUploadStarted(context.Context, string, int) error  { return nil }
func (noopService) NotifyUploadCompleted(context.Context, string) error     { return nil }
func (noopService) NotifyProcessingCompleted(context.Context, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }

package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"meetiq/internal/config"
	"meetiq/internal/notifications"
	"meetiq/internal/testsupport"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		cp := make([]captured, len(requests))
		copy(cp, requests)
		return cp
	}
}

func ntfyConfig(t *testing.T, topic string) *config.Config {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = topic
	return cfg
}

func TestNotifyUploadStarted(t *testing.T) {
	server, requests := newNtfyServer(t)
	service := notifications.NewService(ntfyConfig(t, server.URL))

	if err := service.NotifyUploadStarted(context.Background(), "Client Call", 5); err != nil {
		t.Fatalf("NotifyUploadStarted failed: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if !strings.Contains(got[0].body, "Client Call") || !strings.Contains(got[0].body, "5 chunks") {
		t.Fatalf("body = %q", got[0].body)
	}
	if !strings.Contains(got[0].tags, "upload") {
		t.Fatalf("tags = %q", got[0].tags)
	}
}

func TestNotifyErrorCarriesHighPriority(t *testing.T) {
	server, requests := newNtfyServer(t)
	service := notifications.NewService(ntfyConfig(t, server.URL))

	err := service.NotifyError(context.Background(), io.ErrUnexpectedEOF, "upload of recording rec-1")
	if err != nil {
		t.Fatalf("NotifyError failed: %v", err)
	}

	got := requests()
	if len(got) != 1 || got[0].priority != "high" {
		t.Fatalf("unexpected requests: %#v", got)
	}
	if !strings.Contains(got[0].body, "rec-1") {
		t.Fatalf("body = %q", got[0].body)
	}
}

func TestCategoryGatesSuppressSends(t *testing.T) {
	server, requests := newNtfyServer(t)
	cfg := ntfyConfig(t, server.URL)
	cfg.Notifications.Uploads = false
	service := notifications.NewService(cfg)

	if err := service.NotifyUploadStarted(context.Background(), "Muted", 1); err != nil {
		t.Fatalf("NotifyUploadStarted failed: %v", err)
	}
	if err := service.NotifyUploadCompleted(context.Background(), "Muted"); err != nil {
		t.Fatalf("NotifyUploadCompleted failed: %v", err)
	}
	if got := requests(); len(got) != 0 {
		t.Fatalf("gated categories still sent: %#v", got)
	}
}

func TestNoTopicMeansNoop(t *testing.T) {
	service := notifications.NewService(ntfyConfig(t, ""))
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop service errored: %v", err)
	}
}

func TestUntitledSubjectFallback(t *testing.T) {
	server, requests := newNtfyServer(t)
	service := notifications.NewService(ntfyConfig(t, server.URL))

	if err := service.NotifyProcessingCompleted(context.Background(), "   "); err != nil {
		t.Fatalf("NotifyProcessingCompleted failed: %v", err)
	}
	got := requests()
	if len(got) != 1 || !strings.Contains(got[0].body, "untitled meeting") {
		t.Fatalf("unexpected requests: %#v", got)
	}
}

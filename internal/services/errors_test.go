package services_test

import (
	"errors"
	"strings"
	"testing"

	"meetiq/internal/services"
)

func TestWrapTagsWithMarker(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := services.Wrap(services.ErrConnectivity, "upload", "probe", "http://localhost:8004", cause)

	if !errors.Is(err, services.ErrConnectivity) {
		t.Fatal("wrapped error lost its marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	for _, fragment := range []string{"upload", "probe", "connection refused"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("message missing %q: %v", fragment, err)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(services.ErrReconciliation, "reconcile", "ack_upload", "server still missing 2 of 5 chunks", nil)
	if !errors.Is(err, services.ErrReconciliation) {
		t.Fatal("marker lost")
	}
	if !strings.Contains(err.Error(), "missing 2 of 5") {
		t.Fatalf("detail lost: %v", err)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "upload", "send_chunk", "", errors.New("boom"))
	if !errors.Is(err, services.ErrTransport) {
		t.Fatal("nil marker should default to transport")
	}
}

func TestResumable(t *testing.T) {
	cases := []struct {
		marker error
		want   bool
	}{
		{services.ErrCancelled, true},
		{services.ErrTimeout, true},
		{services.ErrReconciliation, true},
		{services.ErrConnectivity, false},
		{services.ErrTransport, false},
		{services.ErrProcessing, false},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "phase", "op", "", nil)
		if got := services.Resumable(err); got != tc.want {
			t.Errorf("Resumable(%v) = %v, want %v", tc.marker, got, tc.want)
		}
	}
}

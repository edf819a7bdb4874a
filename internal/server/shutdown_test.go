package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/optiview/optiview/internal/logger"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig(), logger.NewNop())

	var order []string
	sm.RegisterCloser(CloserFunc(func() error {
		order = append(order, "first")
		return nil
	}))
	sm.RegisterCloser(CloserFunc(func() error {
		order = append(order, "second")
		return nil
	}))

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("close order = %v, want [second first]", order)
	}

	// A second call is a no-op.
	order = nil
	if err := sm.Shutdown(context.Background(), "again"); err != nil {
		t.Fatalf("repeated shutdown failed: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("closers ran twice: %v", order)
	}
}

func TestTrackRequestDuringShutdown(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig(), logger.NewNop())

	if !sm.TrackRequest() {
		t.Fatal("request should be accepted before shutdown")
	}
	sm.UntrackRequest()

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if sm.TrackRequest() {
		t.Error("request should be rejected after shutdown")
	}
	if !sm.IsShuttingDown() {
		t.Error("IsShuttingDown should report true")
	}
}

func TestDrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{
		ShutdownTimeout: time.Second,
		DrainTimeout:    20 * time.Millisecond,
	}, logger.NewNop())

	// A request that never finishes forces the drain to time out.
	if !sm.TrackRequest() {
		t.Fatal("request should be accepted")
	}

	err := sm.Shutdown(context.Background(), "test")
	if err == nil || !strings.Contains(err.Error(), "in flight") {
		t.Errorf("expected drain timeout error, got %v", err)
	}
	if sm.InFlightCount() != 1 {
		t.Errorf("in-flight count = %d, want 1", sm.InFlightCount())
	}
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig(), logger.NewNop())
	handler := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.InFlightCount() != 1 {
			t.Errorf("in-flight count during request = %d, want 1", sm.InFlightCount())
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sm.InFlightCount() != 0 {
		t.Errorf("in-flight count after request = %d, want 0", sm.InFlightCount())
	}

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status during shutdown = %d, want 503", rec.Code)
	}
}

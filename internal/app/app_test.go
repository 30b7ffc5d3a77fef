package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

func TestMetricsMux_Endpoints(t *testing.T) {
	handler := healthcheck.NewHandler("test")
	handler.RegisterChecker("state-store", healthcheck.NewCheck("state-store", func(context.Context) error { return nil }))
	srv := httptest.NewServer(newMetricsMux(handler))
	defer srv.Close()

	cases := []struct {
		path string
		code int
		body string
	}{
		{path: "/metrics", code: http.StatusOK, body: "go_goroutines"},
		{path: "/healthz", code: http.StatusOK, body: `"status":"healthy"`},
		{path: "/readyz", code: http.StatusOK, body: "ready"},
		{path: "/livez", code: http.StatusOK, body: "ok"},
	}
	for _, tc := range cases {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatalf("read %s: %v", tc.path, err)
		}

		if resp.StatusCode != tc.code {
			t.Errorf("%s: expected %d, got %d", tc.path, tc.code, resp.StatusCode)
		}
		if !strings.Contains(string(body), tc.body) {
			t.Errorf("%s: expected body to contain %q, got %q", tc.path, tc.body, body)
		}
	}
}

func TestMetricsMux_NotReady(t *testing.T) {
	handler := healthcheck.NewHandler("test")
	handler.RegisterChecker("postgres", healthcheck.NewCheck("postgres", func(context.Context) error { return errors.New("down") }))

	w := httptest.NewRecorder()
	newMetricsMux(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStateDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRun_HTTPAddrInUse(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := DefaultConfig()
	cfg.HTTPAddr = strings.TrimPrefix(busy.URL, "http://")
	cfg.GRPCAddr = ""
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "listen http") {
		t.Fatalf("expected listen error, got %v", err)
	}
}

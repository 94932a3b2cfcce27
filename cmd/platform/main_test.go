package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/easeaico/storefront-cs/internal/config"
)

func TestServerCancelsInFlightRequestsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		case <-time.After(5 * time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})

	srv := newServer(ctx, config.Config{HTTPAddr: "127.0.0.1:0", LLMTimeout: time.Second}, h)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	type result struct {
		status int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			done <- result{err: err}
			return
		}
		resp.Body.Close()
		done <- result{status: resp.StatusCode}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected request to reach the handler")
	}
	cancel()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("expected response, got %v", res.err)
		}
		if res.status != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", res.status)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected in-flight request to end when the base context is cancelled")
	}
}

func TestNewServerUsesConfiguredAddress(t *testing.T) {
	srv := newServer(context.Background(), config.Config{HTTPAddr: ":9090", LLMTimeout: 10 * time.Second}, http.NotFoundHandler())
	if srv.Addr != ":9090" {
		t.Fatalf("expected addr :9090, got %q", srv.Addr)
	}
	if srv.WriteTimeout != 40*time.Second {
		t.Fatalf("expected write timeout 40s, got %v", srv.WriteTimeout)
	}
	if srv.BaseContext == nil {
		t.Fatal("expected base context to be set")
	}
	if err := srv.BaseContext(nil).Err(); err != nil {
		t.Fatalf("expected live base context, got %v", err)
	}
}

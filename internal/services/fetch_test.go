package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/tunedl/internal/shared"
)

func newTestFetcher(url string) *Fetcher {
	return NewFetcher(FetcherOptions{BaseURL: url, RequestsPerSecond: 1000, QuotaRetryDelay: 10 * time.Millisecond})
}

func TestFetcher(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		f := NewFetcher(FetcherOptions{})
		if f.httpClient != http.DefaultClient {
			t.Error("expected http.DefaultClient to be used")
		}
		if f.retryDelay != DefaultQuotaRetryDelay {
			t.Errorf("expected default retry delay, got %v", f.retryDelay)
		}
	})

	t.Run("GetJSON decodes and forwards headers and query", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/thing" {
				t.Errorf("expected path /thing, got %s", r.URL.Path)
			}
			if r.URL.Query().Get("q") != "blinding lights" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			if r.Header.Get("X-App-Id") != "app" {
				t.Errorf("expected X-App-Id header")
			}
			w.Write([]byte(`{"name":"ok"}`))
		}))
		defer server.Close()

		f := NewFetcher(FetcherOptions{BaseURL: server.URL, Header: http.Header{"X-App-Id": {"app"}}})
		var out struct{ Name string }
		if err := f.GetJSON(ctx, "/thing", map[string][]string{"q": {"blinding lights"}}, &out); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Name != "ok" {
			t.Errorf("expected name ok, got %q", out.Name)
		}
	})

	t.Run("absolute endpoint bypasses base URL", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		f := newTestFetcher("http://invalid.example")
		if _, err := f.Get(ctx, server.URL+"/next?offset=50", nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("status mapping", func(t *testing.T) {
		tests := []struct {
			status int
			want   error
		}{
			{http.StatusNotFound, shared.ErrNotFound},
			{http.StatusUnauthorized, shared.ErrAuthFailed},
			{http.StatusTooManyRequests, shared.ErrRateLimited},
			{http.StatusBadGateway, shared.ErrServiceUnavailable},
			{http.StatusBadRequest, shared.ErrAPIRequest},
		}
		for _, tt := range tests {
			t.Run(http.StatusText(tt.status), func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
				}))
				defer server.Close()

				_, err := newTestFetcher(server.URL).Get(ctx, "/", nil)
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("quota sentinel retried once then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Write([]byte(`{"error":{"message":"Quota limit exceeded","code":4}}`))
				return
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		resp, err := newTestFetcher(server.URL).Get(ctx, "/search", nil)
		if err != nil {
			t.Fatalf("expected success after retry, got %v", err)
		}
		if string(resp.Body) != `{"ok":true}` {
			t.Errorf("unexpected body %s", resp.Body)
		}
		if calls.Load() != 2 {
			t.Errorf("expected exactly 2 calls, got %d", calls.Load())
		}
	})

	t.Run("quota sentinel surfaced after one retry", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte(`Quota limit exceeded`))
		}))
		defer server.Close()

		_, err := newTestFetcher(server.URL).Get(ctx, "/search", nil)
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected exactly 2 calls, got %d", calls.Load())
		}
	})

	t.Run("cancellation during quota delay aborts", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`Quota limit exceeded`))
		}))
		defer server.Close()

		f := NewFetcher(FetcherOptions{BaseURL: server.URL, QuotaRetryDelay: time.Hour})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := f.Get(ctx, "/search", nil)
		if !shared.IsCancelled(err) {
			t.Fatalf("expected cancellation, got %v", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("cancellation should abort the retry delay promptly")
		}
	})

	t.Run("pre-cancelled context issues no request", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := newTestFetcher(server.URL).Get(ctx, "/", nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no requests, got %d", calls.Load())
		}
	})

	t.Run("transport failure is a network failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		if _, err := newTestFetcher(url).Get(ctx, "/", nil); !errors.Is(err, shared.ErrNetworkFailure) {
			t.Errorf("expected ErrNetworkFailure, got %v", err)
		}
	})
}

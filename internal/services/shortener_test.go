package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/store"
)

func TestHTTPShortener_Shorten(t *testing.T) {
	db := setupTestDB(t)
	settings := store.NewSettingsStore(db, time.Minute)
	ctx := context.Background()
	longURL := "https://t.me/filegate_bot?start=a1b2c3d4"

	t.Run("returns shortened url on success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("api") != "secret" {
				t.Errorf("unexpected api key %q", r.URL.Query().Get("api"))
			}
			if r.URL.Query().Get("url") != longURL {
				t.Errorf("unexpected url %q", r.URL.Query().Get("url"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"success","shortenedUrl":"https://sho.rt/xyz"}`))
		}))
		defer server.Close()

		shortener := NewHTTPShortener(settings, server.URL, "secret", time.Second)
		got, err := shortener.Shorten(ctx, longURL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "https://sho.rt/xyz" {
			t.Fatalf("expected https://sho.rt/xyz, got %s", got)
		}
	})

	t.Run("settings override configured defaults", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("api") != "rotated" {
				t.Errorf("expected rotated key, got %q", r.URL.Query().Get("api"))
			}
			w.Write([]byte(`{"status":"success","shortenedUrl":"https://sho.rt/new"}`))
		}))
		defer server.Close()

		local := store.NewSettingsStore(setupTestDB(t), time.Minute)
		if err := local.Set(ctx, models.SettingShortenerDomain, server.URL); err != nil {
			t.Fatalf("failed setting domain: %v", err)
		}
		if err := local.Set(ctx, models.SettingShortenerAPIKey, "rotated"); err != nil {
			t.Fatalf("failed setting key: %v", err)
		}

		shortener := NewHTTPShortener(local, "https://unused.example", "stale", time.Second)
		got, err := shortener.Shorten(ctx, longURL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "https://sho.rt/new" {
			t.Fatalf("unexpected url %s", got)
		}
	})

	t.Run("reported upstream error fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"error","message":["Invalid API key"]}`))
		}))
		defer server.Close()

		shortener := NewHTTPShortener(settings, server.URL, "secret", time.Second)
		if _, err := shortener.Shorten(ctx, longURL); err == nil {
			t.Fatal("expected error for status=error")
		}
	})

	t.Run("non-2xx fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer server.Close()

		shortener := NewHTTPShortener(settings, server.URL, "secret", time.Second)
		_, err := shortener.Shorten(ctx, longURL)
		if err == nil || !strings.Contains(err.Error(), "502") {
			t.Fatalf("expected 502 error, got %v", err)
		}
	})

	t.Run("malformed body fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>not json</html>`))
		}))
		defer server.Close()

		shortener := NewHTTPShortener(settings, server.URL, "secret", time.Second)
		if _, err := shortener.Shorten(ctx, longURL); err == nil {
			t.Fatal("expected decode error")
		}
	})

	t.Run("slow upstream times out", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		shortener := NewHTTPShortener(settings, server.URL, "secret", 50*time.Millisecond)
		start := time.Now()
		if _, err := shortener.Shorten(ctx, longURL); err == nil {
			t.Fatal("expected timeout error")
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Fatalf("timeout not enforced, took %s", elapsed)
		}
	})

	t.Run("unconfigured shortener fails fast", func(t *testing.T) {
		shortener := NewHTTPShortener(settings, "", "", time.Second)
		if _, err := shortener.Shorten(ctx, longURL); err == nil {
			t.Fatal("expected not configured error")
		}
	})
}

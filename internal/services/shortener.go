package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/filegate/backend/internal/metrics"
	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/store"
)

var errShortenerNotConfigured = errors.New("shortener not configured")

// Shortener wraps a long URL in a monetized short link.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// HTTPShortener calls a link-shortening API of the common
// "GET /api?api=<key>&url=<url>" shape. Domain and key are read from the
// settings store on every call so admins can rotate them at runtime.
type HTTPShortener struct {
	Settings      store.Settings
	DefaultDomain string
	DefaultAPIKey string
	HTTPClient    *http.Client
}

func NewHTTPShortener(settings store.Settings, domain, apiKey string, timeout time.Duration) *HTTPShortener {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPShortener{
		Settings:      settings,
		DefaultDomain: domain,
		DefaultAPIKey: apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type shortenResponse struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	Message      any    `json:"message"`
}

func (s *HTTPShortener) Shorten(ctx context.Context, longURL string) (string, error) {
	domain := s.Settings.GetString(ctx, models.SettingShortenerDomain, s.DefaultDomain)
	apiKey := s.Settings.GetString(ctx, models.SettingShortenerAPIKey, s.DefaultAPIKey)
	if strings.TrimSpace(domain) == "" || strings.TrimSpace(apiKey) == "" {
		return "", errShortenerNotConfigured
	}

	start := time.Now()
	shortURL, err := s.call(ctx, domain, apiKey, longURL)
	metrics.ShortenerDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ShortenerRequestsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.ShortenerRequestsTotal.WithLabelValues("success").Inc()
	return shortURL, nil
}

func (s *HTTPShortener) call(ctx context.Context, domain, apiKey, longURL string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(domain), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	query := url.Values{}
	query.Set("api", apiKey)
	query.Set("url", longURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("shortener returned %d: %s", resp.StatusCode, string(body))
	}

	var payload shortenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode shortener response: %w", err)
	}
	if payload.Status != "success" || payload.ShortenedURL == "" {
		return "", fmt.Errorf("shortener rejected request: %v", payload.Message)
	}
	return payload.ShortenedURL, nil
}

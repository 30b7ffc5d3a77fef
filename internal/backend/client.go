// Package backend содержит HTTP-клиенты сервисов каталога, заказов, пользователей и поддержки.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	// DefaultTimeout: таймаут запроса к бэкенду по умолчанию.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 64 << 10

	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

// Client: общий HTTP-клиент одного сервиса. Повторов нет: любая ошибка
// возвращается вызывающему.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	metrics    *metrics.BackendMetrics
	logger     *log.Entry
}

// ClientOption настраивает Client.
type ClientOption func(*Client)

// WithHTTPClient задаёт собственный http.Client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout задаёт таймаут запроса. 0 отключает таймаут.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout >= 0 {
			c.timeout = timeout
		}
	}
}

// WithMetrics подключает метрики запросов.
func WithMetrics(m *metrics.BackendMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(logger *log.Entry) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient создаёт клиент сервиса service с базовым адресом baseURL.
func NewClient(service, baseURL string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse %s base url: %w", service, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%s base url must be http(s), got %q", service, baseURL)
	}

	c := &Client{
		service:    service,
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		logger:     log.WithField("component", service+"-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Service возвращает имя сервиса клиента.
func (c *Client) Service() string {
	return c.service
}

// Do выполняет запрос и возвращает разобранный JSON ответа (числа как json.Number).
// Для ответа вне 2xx возвращается *APIError, для сбоя транспорта возвращается ошибка с ErrNetwork.
func (c *Client) Do(ctx context.Context, op string, session domain.Session, method, path string, body any) (any, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session.Authenticated() {
		req.Header.Set("Authorization", "Bearer "+session.Token)
		req.Header.Set(headerUserID, session.UserID)
		req.Header.Set(headerUserRole, string(session.Role))
	}

	logger := c.logger.WithFields(log.Fields{
		"operation": op,
		"method":    method,
		"path":      path,
	})

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(c.service, op, 0, time.Since(started))
		logger.WithError(err).Warn("backend request failed")
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.metrics.ObserveRequest(c.service, op, resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Service: c.service,
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(raw)),
		}
		logger.WithField("status", resp.StatusCode).Warn("backend responded with error")
		return nil, apiErr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrNetwork, op, err)
	}

	logger.WithField("status", resp.StatusCode).Debug("backend request completed")
	return normalize.Decode(raw)
}

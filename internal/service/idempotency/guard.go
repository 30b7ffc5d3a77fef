package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// HeaderKey: заголовок с ключом идемпотентности.
const HeaderKey = "Idempotency-Key"

// ErrRequestInProgress: запрос с тем же ключом ещё выполняется.
var ErrRequestInProgress = fmt.Errorf("%w: request is still processing", domain.ErrIdempotencyKeyAlreadyExists)

// Response: ответ обработчика, который сохраняется для повторов.
// Retryable-ответ не сохраняется: ключ освобождается, и повтор выполнит запрос заново.
type Response struct {
	Status    int
	Body      []byte
	Retryable bool
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт срок жизни ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardClock подменяет источник времени.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// Guard выполняет обработчик не больше одного раза на ключ и отдаёт
// сохранённый ответ на повторы с тем же телом запроса.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт Guard поверх репозитория ключей.
func NewGuard(repo domain.IdempotencyRepository, opts ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    domain.DefaultIdempotencyTTL,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.WithField("component", "idempotency-guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestHash: SHA-256 от идентификатора клиента и тела запроса.
func RequestHash(clientID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(clientID)))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Do выполняет handler под ключом key. Пустой key выполняет handler без защиты.
//
// replayed=true означает, что ответ взят из сохранённой записи. Ключ с другим телом
// запроса возвращает domain.ErrIdempotencyHashMismatch, ключ в работе - ErrRequestInProgress.
func (g *Guard) Do(ctx context.Context, key, clientID string, body []byte, handler func(context.Context) Response) (resp Response, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" || g.repo == nil {
		return handler(ctx), false, nil
	}

	record, err := g.repo.CreateProcessing(key, RequestHash(clientID, body), g.now().Add(g.ttl))
	if err != nil {
		return g.replay(key, record, err)
	}

	resp = handler(ctx)
	g.store(key, resp)
	return resp, false, nil
}

func (g *Guard) replay(key string, record domain.IdempotencyRecord, createErr error) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing {
			return Response{}, false, ErrRequestInProgress
		}
		if !record.Replayable() {
			return Response{}, false, fmt.Errorf("idempotency record %q has no stored response", key)
		}
		g.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"status":          record.HTTPStatus,
		}).Info("replaying stored checkout response")
		return Response{Status: record.HTTPStatus, Body: record.ResponseBody}, true, nil
	default:
		g.logger.WithError(createErr).WithField("idempotency_key", key).Warn("failed to create idempotency record")
		return Response{}, false, fmt.Errorf("create idempotency record: %w", createErr)
	}
}

func (g *Guard) store(key string, resp Response) {
	if resp.Retryable {
		if err := g.repo.Release(key); err != nil {
			g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key")
			return
		}
		g.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"status":          resp.Status,
		}).Info("transient failure, idempotency key released")
		return
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	var err error
	if status >= http.StatusBadRequest {
		err = g.repo.MarkFailed(key, resp.Body, status)
	} else {
		err = g.repo.MarkDone(key, resp.Body, status)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

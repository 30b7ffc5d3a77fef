package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Заголовки запроса, из которых собирается сессия и владелец корзины.
const (
	HeaderAuthorization = "Authorization"
	HeaderUserID        = "X-User-Id"
	HeaderUserRole      = "X-User-Role"
	HeaderClientID      = "X-Client-Id"
	HeaderReplayed      = "Idempotent-Replayed"
)

type contextKey int

const (
	sessionKey contextKey = iota
	clientIDKey
)

// AttachSession кладёт в контекст сессию и идентификатор клиента из заголовков.
// Без токена или пользователя сессия считается анонимной.
func AttachSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := domain.Session{
			Token:  bearerToken(r.Header.Get(HeaderAuthorization)),
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Role:   domain.ParseRole(r.Header.Get(HeaderUserRole)),
		}
		if !session.Authenticated() {
			session = domain.AnonymousSession()
		}

		clientID := strings.TrimSpace(r.Header.Get(HeaderClientID))
		if clientID == "" {
			clientID = cart.AnonymousClient
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		ctx = context.WithValue(ctx, clientIDKey, clientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFrom возвращает сессию запроса.
func SessionFrom(ctx context.Context) domain.Session {
	session, ok := ctx.Value(sessionKey).(domain.Session)
	if !ok {
		return domain.AnonymousSession()
	}
	return session
}

// ClientIDFrom возвращает идентификатор владельца корзины.
func ClientIDFrom(ctx context.Context) string {
	clientID, ok := ctx.Value(clientIDKey).(string)
	if !ok || clientID == "" {
		return cart.AnonymousClient
	}
	return clientID
}

func bearerToken(header string) string {
	value := strings.TrimSpace(header)
	if len(value) < len("Bearer ") || !strings.EqualFold(value[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("Bearer "):])
}

// RequestLogger пишет одну запись logrus на запрос.
func RequestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(log.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Debug("http request")
		})
	}
}

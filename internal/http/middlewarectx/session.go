// Package middlewarectx содержит HTTP middleware: разрешение сессии по
// непрозрачному токену, проверку права доступа к платным функциям и
// грубое ограничение частоты запросов.
//
// Токен сессии принимается из заголовка Authorization ("Bearer <token>")
// или из cookie "session_id". Валидная сессия добавляет в контекст
// идентификатор сессии, имя пользователя и его UID.
package middlewarectx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// SessionID — ключ идентификатора сессии в контексте.
	SessionID Key = "session_id"
	// User — ключ имени пользователя в контексте.
	User Key = "username"
	// UserUID — ключ UID пользователя в контексте.
	UserUID Key = "user_uid"
	// Role — ключ роли пользователя в контексте.
	Role Key = "role"
)

// SessionCookie имя cookie с токеном сессии.
const SessionCookie = "session_id"

// SessionService описывает интерфейс реестра сессий.
type SessionService interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
}

// sessionPayload часть полезной нагрузки сессии, которую читает middleware.
// Остальное содержимое принадлежит приложению и здесь не разбирается.
type sessionPayload struct {
	UserUID string `json:"user_uid"`
	Role    string `json:"role"`
}

// TokenFromRequest извлекает токен сессии из запроса.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// SessionMiddleware возвращает middleware, разрешающий непрозрачный токен
// сессии в контекст запроса. Отсутствующая, погашенная и истёкшая сессия
// дают одинаковый ответ 401.
func SessionMiddleware(sessions SessionService, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.SessionMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			tokenStr := TokenFromRequest(r)
			if tokenStr == "" {
				log.Info("missing session token")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("authentication required"))
				return
			}

			sess, err := sessions.Get(r.Context(), tokenStr)
			if err != nil {
				log.Info("session rejected", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired session"))
				return
			}

			var payload sessionPayload
			if err := json.Unmarshal(sess.Payload, &payload); err != nil {
				log.Error("malformed session payload", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired session"))
				return
			}

			ctx := context.WithValue(r.Context(), SessionID, sess.SessionID)
			ctx = context.WithValue(ctx, User, sess.Username)
			ctx = context.WithValue(ctx, UserUID, payload.UserUID)
			ctx = context.WithValue(ctx, Role, payload.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Package logout реализует HTTP-обработчик выхода из учётной записи.
// Гасится только текущая сессия; остальные сессии пользователя
// продолжают жить до своего срока.
package logout

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/squeezeai/account-service/internal/http/middlewarectx"
	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
)

// SessionService описывает интерфейс погашения сессии.
type SessionService interface {
	Invalidate(ctx context.Context, sessionID string) error
}

// AuthService снимает признак выполненного входа.
type AuthService interface {
	Logout(ctx context.Context, username string) error
}

// Handler обрабатывает HTTP-запросы выхода.
type Handler struct {
	log      *slog.Logger
	sessions SessionService
	auth     AuthService
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, sessions SessionService, auth AuthService) *Handler {
	return &Handler{log: log, sessions: sessions, auth: auth}
}

// ServeHTTP godoc
// @Summary Выход из учётной записи
// @Description Гасит текущую сессию и очищает cookie.
// @Tags Auth
// @Produce  json
// @Success 200 {object} response.Response "Сессия погашена"
// @Failure 401 {object} response.ErrorResponse "Нет активной сессии"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	sessionID, ok := r.Context().Value(middlewarectx.SessionID).(string)
	if !ok || sessionID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("authentication required"))
		return
	}
	username, _ := r.Context().Value(middlewarectx.User).(string)

	if err := h.sessions.Invalidate(r.Context(), sessionID); err != nil {
		log.Error("failed to invalidate session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}
	if username != "" {
		if err := h.auth.Logout(r.Context(), username); err != nil {
			log.Error("failed to mark user logged out", sl.Err(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middlewarectx.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})

	log.Info("logout success", slog.String("username", username))
	render.JSON(w, r, response.OK())
}

// Package login реализует HTTP-обработчик входа пользователей.
//
// До проверки пароля запрос проходит лимит неудачных входов по имени и
// IP-адресу. Успешный вход создаёт серверную сессию с непрозрачным
// токеном; токен возвращается в теле ответа и в cookie.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/squeezeai/account-service/internal/http/middlewarectx"
	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/metrics"
	"github.com/squeezeai/account-service/internal/models"
	"github.com/squeezeai/account-service/internal/services/auth"
)

// Request — структура входных данных для входа. Идентификатором может
// быть имя пользователя или email.
type Request struct {
	Username string `json:"username" validate:"required,min=3,max=254"`
	Password string `json:"password" validate:"required,min=8"`
}

// Service описывает интерфейс проверки учётных данных.
type Service interface {
	Verify(ctx context.Context, identifier, rawPassword string) (*models.User, error)
}

// SessionService описывает интерфейс реестра сессий.
type SessionService interface {
	Create(ctx context.Context, username string, payload json.RawMessage) (string, error)
}

// Limiter описывает интерфейс лимита неудачных входов.
type Limiter interface {
	Allowed(ctx context.Context, username, ip string) (bool, error)
	Record(ctx context.Context, username, ip string, success bool) error
}

// Handler обрабатывает HTTP-запросы входа.
type Handler struct {
	log        *slog.Logger
	service    Service
	sessions   SessionService
	limiter    Limiter
	sessionTTL time.Duration
	validate   *validator.Validate
}

// New создает новый экземпляр Handler. sessionTTL задаёт срок жизни
// cookie и должен совпадать со сроком жизни сессии в реестре.
func New(log *slog.Logger, service Service, sessions SessionService, limiter Limiter, sessionTTL time.Duration) *Handler {
	return &Handler{
		log:        log,
		service:    service,
		sessions:   sessions,
		limiter:    limiter,
		sessionTTL: sessionTTL,
		validate:   validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход пользователя
// @Description Проверяет учётные данные и создаёт серверную сессию.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учетные данные пользователя"
// @Success 200 {object} map[string]any "Успешный вход"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 403 {object} response.ErrorResponse "Учётная запись деактивирована"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.ErrorResponse "Превышен лимит попыток"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	ip := clientIP(r)
	allowed, err := h.limiter.Allowed(r.Context(), req.Username, ip)
	if err != nil {
		log.Error("failed to check login limit", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}
	if !allowed {
		metrics.RateLimitedLogins.Inc()
		log.Warn("login rate limit exceeded", slog.String("ip", ip))
		w.WriteHeader(http.StatusTooManyRequests)
		render.JSON(w, r, response.Error("too many failed attempts, try again later"))
		return
	}

	user, err := h.service.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotFound), errors.Is(err, auth.ErrBadPassword):
			metrics.FailedLogins.Inc()
			if recErr := h.limiter.Record(r.Context(), req.Username, ip, false); recErr != nil {
				log.Error("failed to record login attempt", sl.Err(recErr))
			}
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid credentials"))
		case errors.Is(err, auth.ErrDeactivated):
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("account is deactivated"))
		default:
			log.Error("login failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal service error"))
		}
		return
	}

	if err := h.limiter.Record(r.Context(), user.Username, ip, true); err != nil {
		log.Error("failed to record login attempt", sl.Err(err))
	}

	payload, err := json.Marshal(map[string]string{
		"user_uid": user.UID,
		"role":     user.Role,
	})
	if err != nil {
		log.Error("failed to marshal session payload", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}
	sessionID, err := h.sessions.Create(r.Context(), user.Username, payload)
	if err != nil {
		log.Error("failed to create session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middlewarectx.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.sessionTTL),
	})

	log.Info("login success", slog.String("username", user.Username))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"session_id": sessionID,
		"username":   user.Username,
		"role":       user.Role,
	}))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

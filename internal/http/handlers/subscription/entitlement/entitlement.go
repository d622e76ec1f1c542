// Package entitlement реализует конечную точку проверки права доступа
// к платным функциям. Сам отказ выдаёт EntitlementMiddleware: до
// обработчика доходят только запросы с действующей платной подпиской,
// так что смежным сервисам достаточно различать 200 и 403.
package entitlement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/squeezeai/account-service/internal/http/response"
)

// Handler обрабатывает HTTP-запросы проверки доступа.
type Handler struct {
	log *slog.Logger
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Проверка права доступа к платным функциям
// @Description Возвращает 200 при действующей платной подписке, 403 без неё.
// @Tags Subscription
// @Produce  json
// @Success 200 {object} response.Response "Доступ разрешён"
// @Failure 401 {object} response.ErrorResponse "Нет действующей сессии"
// @Failure 403 {object} response.ErrorResponse "Требуется платная подписка"
// @Security BearerAuth
// @Router /entitlement [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(map[string]any{"entitled": true}))
}

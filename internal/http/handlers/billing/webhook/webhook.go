// Package webhook реализует HTTP-обработчик событий платёжного
// провайдера.
//
// Запрос без валидной подписи отклоняется до разбора тела. Повторная
// доставка события отвечает 200 без повторного применения; событие,
// которое не удалось применить, отвечает 5xx, чтобы провайдер повторил
// доставку.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
	webhooksvc "github.com/squeezeai/account-service/internal/services/webhook"
)

// SignatureHeader заголовок с подписью события.
const SignatureHeader = "Webhook-Signature"

// maxBodySize предельный размер тела события.
const maxBodySize = 1 << 20

// Processor описывает интерфейс обработки событий.
type Processor interface {
	VerifySignature(payload []byte, header string, now time.Time) error
	Dispatch(ctx context.Context, event *webhooksvc.Event) error
}

// Handler обрабатывает HTTP-запросы webhook.
type Handler struct {
	log       *slog.Logger
	processor Processor
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, processor Processor) *Handler {
	return &Handler{log: log, processor: processor}
}

// ServeHTTP godoc
// @Summary Приём событий платёжного провайдера
// @Description Проверяет подпись и применяет событие к подписке ровно один раз.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Success 200 {object} response.Response "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело события"
// @Failure 401 {object} response.ErrorResponse "Подпись не прошла проверку"
// @Failure 500 {object} response.ErrorResponse "Событие не применено, нужна повторная доставка"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.processor.VerifySignature(payload, r.Header.Get(SignatureHeader), time.Now()); err != nil {
		log.Warn("webhook signature rejected", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	event, err := webhooksvc.ParseEvent(payload)
	if err != nil {
		log.Error("failed to parse webhook event", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("malformed event"))
		return
	}

	if err := h.processor.Dispatch(r.Context(), event); err != nil {
		if errors.Is(err, webhooksvc.ErrBadPayload) {
			log.Error("unprocessable webhook event", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("malformed event"))
			return
		}
		log.Error("failed to apply webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("event not applied"))
		return
	}

	render.JSON(w, r, response.OK())
}

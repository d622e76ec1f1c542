package webhook

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	webhooksvc "github.com/squeezeai/account-service/internal/services/webhook"
)

type ProcessorMock struct{ mock.Mock }

func (m *ProcessorMock) VerifySignature(payload []byte, header string, now time.Time) error {
	return m.Called(payload, header, now).Error(0)
}

func (m *ProcessorMock) Dispatch(ctx context.Context, event *webhooksvc.Event) error {
	return m.Called(ctx, event).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func doWebhook(t *testing.T, h *Handler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewBufferString(body))
	req.Header.Set(SignatureHeader, signature)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validEvent = `{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1"}}}`

func TestWebhook_Applied(t *testing.T) {
	proc := new(ProcessorMock)
	proc.On("VerifySignature", []byte(validEvent), "t=1,v1=ok", mock.Anything).Return(nil).Once()
	proc.On("Dispatch", mock.Anything, mock.MatchedBy(func(e *webhooksvc.Event) bool {
		return e.ID == "evt_1" && e.Type == "customer.subscription.deleted"
	})).Return(nil).Once()

	h := New(newNoopLogger(), proc)
	rec := doWebhook(t, h, validEvent, "t=1,v1=ok")

	assert.Equal(t, http.StatusOK, rec.Code)
	proc.AssertExpectations(t)
}

func TestWebhook_BadSignature(t *testing.T) {
	proc := new(ProcessorMock)
	proc.On("VerifySignature", mock.Anything, mock.Anything, mock.Anything).
		Return(webhooksvc.ErrBadSignature).Once()

	h := New(newNoopLogger(), proc)
	rec := doWebhook(t, h, validEvent, "t=1,v1=bad")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// тело не разбирается и не диспетчеризуется без подписи
	proc.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestWebhook_MalformedBody(t *testing.T) {
	proc := new(ProcessorMock)
	proc.On("VerifySignature", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	h := New(newNoopLogger(), proc)
	rec := doWebhook(t, h, `{"type":"x"}`, "t=1,v1=ok")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	proc.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestWebhook_BadPayloadFromDispatch(t *testing.T) {
	proc := new(ProcessorMock)
	proc.On("VerifySignature", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	proc.On("Dispatch", mock.Anything, mock.Anything).Return(webhooksvc.ErrBadPayload).Once()

	h := New(newNoopLogger(), proc)
	rec := doWebhook(t, h, validEvent, "t=1,v1=ok")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_ApplyFailureTriggersRetry(t *testing.T) {
	proc := new(ProcessorMock)
	proc.On("VerifySignature", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	proc.On("Dispatch", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	h := New(newNoopLogger(), proc)
	rec := doWebhook(t, h, validEvent, "t=1,v1=ok")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package login

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/models"
	"github.com/squeezeai/account-service/internal/services/auth"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) Verify(ctx context.Context, identifier, rawPassword string) (*models.User, error) {
	args := m.Called(ctx, identifier, rawPassword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type SessionMock struct{ mock.Mock }

func (m *SessionMock) Create(ctx context.Context, username string, payload json.RawMessage) (string, error) {
	args := m.Called(ctx, username, payload)
	return args.String(0), args.Error(1)
}

type LimiterMock struct{ mock.Mock }

func (m *LimiterMock) Allowed(ctx context.Context, username, ip string) (bool, error) {
	args := m.Called(ctx, username, ip)
	return args.Bool(0), args.Error(1)
}

func (m *LimiterMock) Record(ctx context.Context, username, ip string, success bool) error {
	return m.Called(ctx, username, ip, success).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func doLogin(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewBufferString(body))
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLogin_Success(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Verify", mock.Anything, "alice", "Passw0rd!").
		Return(&models.User{UID: "uid-1", Username: "alice", Role: "user"}, nil).Once()

	sessions := new(SessionMock)
	sessions.On("Create", mock.Anything, "alice", mock.MatchedBy(func(p json.RawMessage) bool {
		var payload map[string]string
		return json.Unmarshal(p, &payload) == nil && payload["user_uid"] == "uid-1"
	})).Return("sid-1", nil).Once()

	limiter := new(LimiterMock)
	limiter.On("Allowed", mock.Anything, "alice", "10.0.0.1").Return(true, nil).Once()
	limiter.On("Record", mock.Anything, "alice", "10.0.0.1", true).Return(nil).Once()

	h := New(newNoopLogger(), svc, sessions, limiter, time.Hour)
	rec := doLogin(t, h, `{"username":"alice","password":"Passw0rd!"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, response.StatusOK, resp.Status)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session_id", cookies[0].Name)
	assert.Equal(t, "sid-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	svc.AssertExpectations(t)
	sessions.AssertExpectations(t)
	limiter.AssertExpectations(t)
}

func TestLogin_BadCredentialsAreUniform(t *testing.T) {
	tests := []struct {
		name   string
		svcErr error
	}{
		{name: "unknown user", svcErr: auth.ErrNotFound},
		{name: "wrong password", svcErr: auth.ErrBadPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			svc.On("Verify", mock.Anything, "alice", "Passw0rd!").Return(nil, tt.svcErr).Once()

			limiter := new(LimiterMock)
			limiter.On("Allowed", mock.Anything, "alice", "10.0.0.1").Return(true, nil).Once()
			limiter.On("Record", mock.Anything, "alice", "10.0.0.1", false).Return(nil).Once()

			h := New(newNoopLogger(), svc, new(SessionMock), limiter, time.Hour)
			rec := doLogin(t, h, `{"username":"alice","password":"Passw0rd!"}`)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid credentials")
			limiter.AssertExpectations(t)
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	svc := new(ServiceMock)

	limiter := new(LimiterMock)
	limiter.On("Allowed", mock.Anything, "alice", "10.0.0.1").Return(false, nil).Once()

	h := New(newNoopLogger(), svc, new(SessionMock), limiter, time.Hour)
	rec := doLogin(t, h, `{"username":"alice","password":"Passw0rd!"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	// пароль не проверяется, пока действует лимит
	svc.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_Deactivated(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Verify", mock.Anything, "alice", "Passw0rd!").Return(nil, auth.ErrDeactivated).Once()

	limiter := new(LimiterMock)
	limiter.On("Allowed", mock.Anything, "alice", "10.0.0.1").Return(true, nil).Once()

	h := New(newNoopLogger(), svc, new(SessionMock), limiter, time.Hour)
	rec := doLogin(t, h, `{"username":"alice","password":"Passw0rd!"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogin_Validation(t *testing.T) {
	h := New(newNoopLogger(), new(ServiceMock), new(SessionMock), new(LimiterMock), time.Hour)

	rec := doLogin(t, h, `{"username":"alice"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doLogin(t, h, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

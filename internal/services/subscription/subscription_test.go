package subscription

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/squeezeai/account-service/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) ResetToFree(ctx context.Context, userUID string) error {
	return m.Called(ctx, userUID).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newService(repo *RepoMock) *Service {
	return New(repo, nil, 14, newNoopLogger())
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestNextBillingDate(t *testing.T) {
	anchor := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		sub     models.Subscription
		want    time.Time
		wantErr error
	}{
		{
			name: "trialing uses anchor plus trial length",
			sub:  models.Subscription{Status: models.StatusTrialing, StartedAt: ptrTime(anchor)},
			want: anchor.AddDate(0, 0, 14),
		},
		{
			name:    "trialing without anchor",
			sub:     models.Subscription{Status: models.StatusTrialing},
			wantErr: ErrMissingAnchor,
		},
		{
			name: "active uses provider period end",
			sub:  models.Subscription{Status: models.StatusActive, CurrentPeriodEnd: ptrTime(periodEnd)},
			want: periodEnd,
		},
		{
			name:    "active without period end",
			sub:     models.Subscription{Status: models.StatusActive},
			wantErr: ErrNoBillingDate,
		},
		{
			name:    "inactive has no billing date",
			sub:     models.Subscription{Status: models.StatusInactive},
			wantErr: ErrNoBillingDate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(new(RepoMock))
			got, err := svc.NextBillingDate(&tt.sub)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextBillingDate_Deterministic(t *testing.T) {
	// Дата списания зависит только от сохранённых полей, не от "сейчас":
	// якорь в прошлом даёт дату в прошлом, а не сдвигается вперёд.
	anchor := time.Now().UTC().AddDate(0, 0, -30)
	sub := models.Subscription{Status: models.StatusTrialing, StartedAt: ptrTime(anchor)}

	svc := newService(new(RepoMock))
	got, err := svc.NextBillingDate(&sub)
	require.NoError(t, err)
	assert.Equal(t, anchor.AddDate(0, 0, 14), got)
	assert.True(t, got.Before(time.Now().UTC()))
}

func TestGet_NoDowngradeWhileNotCancelled(t *testing.T) {
	sub := &models.Subscription{
		UserUID:   "uid-1",
		PlanType:  models.PlanPro,
		Status:    models.StatusTrialing,
		StartedAt: ptrTime(time.Now().UTC().AddDate(0, 0, -30)),
	}

	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, "uid-1").Return(sub, nil).Once()

	svc := newService(repo)
	got, err := svc.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrialing, got.Status)
	repo.AssertNotCalled(t, "ResetToFree", mock.Anything, mock.Anything)
}

func TestGet_CancelledBeforePeriodEndKeepsAccess(t *testing.T) {
	sub := &models.Subscription{
		UserUID:          "uid-1",
		PlanType:         models.PlanPro,
		Status:           models.StatusActive,
		Cancelled:        true,
		CurrentPeriodEnd: ptrTime(time.Now().UTC().AddDate(0, 0, 7)),
	}

	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, "uid-1").Return(sub, nil).Once()

	svc := newService(repo)
	got, err := svc.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.True(t, got.Cancelled)
	repo.AssertNotCalled(t, "ResetToFree", mock.Anything, mock.Anything)
}

func TestGet_CancelledAndLapsedDowngrades(t *testing.T) {
	lapsed := &models.Subscription{
		UserUID:          "uid-1",
		PlanType:         models.PlanPro,
		Status:           models.StatusActive,
		Cancelled:        true,
		CurrentPeriodEnd: ptrTime(time.Now().UTC().AddDate(0, 0, -1)),
	}
	free := &models.Subscription{
		UserUID:  "uid-1",
		PlanType: models.PlanFree,
		Status:   models.StatusInactive,
	}

	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, "uid-1").Return(lapsed, nil).Once()
	repo.On("ResetToFree", mock.Anything, "uid-1").Return(nil).Once()
	repo.On("GetSubscription", mock.Anything, "uid-1").Return(free, nil).Once()

	svc := newService(repo)
	got, err := svc.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, got.PlanType)
	assert.Equal(t, models.StatusInactive, got.Status)
	repo.AssertExpectations(t)
}

func TestGet_CancelledWithBrokenAnchorStaysPut(t *testing.T) {
	sub := &models.Subscription{
		UserUID:   "uid-1",
		PlanType:  models.PlanPro,
		Status:    models.StatusTrialing,
		Cancelled: true,
		// якорь потерян — даунгрейд по догадке запрещён
	}

	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, "uid-1").Return(sub, nil).Once()

	svc := newService(repo)
	_, err := svc.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	repo.AssertNotCalled(t, "ResetToFree", mock.Anything, mock.Anything)
}

func TestEntitled_NoCache(t *testing.T) {
	tests := []struct {
		name string
		sub  models.Subscription
		want bool
	}{
		{
			name: "pro trialing",
			sub:  models.Subscription{PlanType: models.PlanPro, Status: models.StatusTrialing, StartedAt: ptrTime(time.Now().UTC())},
			want: true,
		},
		{
			name: "pro active",
			sub:  models.Subscription{PlanType: models.PlanPro, Status: models.StatusActive, CurrentPeriodEnd: ptrTime(time.Now().UTC().AddDate(0, 1, 0))},
			want: true,
		},
		{
			name: "free inactive",
			sub:  models.Subscription{PlanType: models.PlanFree, Status: models.StatusInactive},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := tt.sub
			sub.UserUID = "uid-1"
			repo := new(RepoMock)
			repo.On("GetSubscription", mock.Anything, "uid-1").Return(&sub, nil).Once()

			svc := newService(repo)
			got, err := svc.Entitled(context.Background(), "uid-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squeezeai/account-service/internal/models"
)

func TestRegisterUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	verify := NewTestVerification(storage)

	uid, err := storage.RegisterUser(ctx, models.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hashed",
		Role:         "user",
		IsActive:     true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	verify.VerifyUserExists(t, uid)
	// бесплатная подписка создаётся той же транзакцией
	verify.VerifySubscriptionState(t, uid, "free", "inactive")
}

func TestRegisterUser_DuplicatesAreCaseInsensitive(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	_, err := storage.RegisterUser(ctx, models.User{
		Username: "alice", Email: "alice@example.com", PasswordHash: "hashed", Role: "user", IsActive: true,
	})
	require.NoError(t, err)

	_, err = storage.RegisterUser(ctx, models.User{
		Username: "ALICE", Email: "other@example.com", PasswordHash: "hashed", Role: "user", IsActive: true,
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = storage.RegisterUser(ctx, models.User{
		Username: "bob", Email: "Alice@Example.com", PasswordHash: "hashed", Role: "user", IsActive: true,
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestGetUserByUsername_CaseInsensitive(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	factory.CreateUser(t, "Alice", "alice@example.com", "hashed")

	user, err := storage.GetUserByUsername(ctx, "aLiCe")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Username)

	_, err = storage.GetUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTouchSession(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	factory.CreateUser(t, "alice", "alice@example.com", "hashed")
	factory.CreateSession(t, "sid-live", "alice", now.Add(time.Hour))
	factory.CreateSession(t, "sid-expired", "alice", now.Add(-time.Hour))

	sess, err := storage.TouchSession(ctx, "sid-live", now)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)

	// истечение обнаруживается лениво, тем же запросом
	_, err = storage.TouchSession(ctx, "sid-expired", now)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = storage.TouchSession(ctx, "sid-missing", now)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTouchSession_InvalidatedSession(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	factory.CreateUser(t, "alice", "alice@example.com", "hashed")
	factory.CreateSession(t, "sid-1", "alice", now.Add(time.Hour))

	require.NoError(t, storage.InvalidateSession(ctx, "sid-1"))

	_, err := storage.TouchSession(ctx, "sid-1", now)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCleanupSessions(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	factory.CreateUser(t, "alice", "alice@example.com", "hashed")
	factory.CreateSession(t, "sid-live", "alice", now.Add(time.Hour))
	factory.CreateSession(t, "sid-expired", "alice", now.Add(-time.Hour))

	deleted, err := storage.CleanupSessions(ctx, now, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = storage.TouchSession(ctx, "sid-live", now)
	assert.NoError(t, err)
}

func TestRedeemResetToken(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	now := time.Now().UTC()

	factory.CreateUser(t, "alice", "alice@example.com", "old-hash")
	factory.CreateSession(t, "sid-1", "alice", now.Add(time.Hour))
	factory.CreateResetToken(t, "tok-1", "alice", now.Add(time.Hour), false)

	username, err := storage.RedeemResetToken(ctx, "tok-1", "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	user, err := storage.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", user.PasswordHash)

	// активные сессии гаснут той же транзакцией
	verify.VerifySessionActive(t, "sid-1", false)

	// повторное погашение невозможно
	_, err = storage.RedeemResetToken(ctx, "tok-1", "another-hash", now)
	assert.ErrorIs(t, err, ErrTokenUsed)
}

func TestRedeemResetToken_Errors(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	factory.CreateUser(t, "alice", "alice@example.com", "hashed")
	factory.CreateResetToken(t, "tok-expired", "alice", now.Add(-time.Minute), false)

	_, err := storage.RedeemResetToken(ctx, "tok-missing", "new-hash", now)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = storage.RedeemResetToken(ctx, "tok-expired", "new-hash", now)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestCountRecentFailures(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	attempts := []models.LoginAttempt{
		{Username: "alice", IPAddress: "10.0.0.1", Success: false, AttemptTime: now},
		{Username: "alice", IPAddress: "10.0.0.2", Success: false, AttemptTime: now},
		{Username: "bob", IPAddress: "10.0.0.1", Success: false, AttemptTime: now},
		{Username: "alice", IPAddress: "10.0.0.1", Success: true, AttemptTime: now},
		{Username: "alice", IPAddress: "10.0.0.1", Success: false, AttemptTime: now.Add(-2 * time.Hour)},
	}
	for _, a := range attempts {
		require.NoError(t, storage.CreateLoginAttempt(ctx, a))
	}

	// неудачи считаются по имени ИЛИ по IP внутри окна; успехи и
	// попытки за пределами окна не учитываются
	count, err := storage.CountRecentFailures(ctx, "alice", "10.0.0.1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = storage.CountRecentFailures(ctx, "carol", "10.0.0.9", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestProcessEvent_Idempotency(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	now := time.Now().UTC()

	uid := factory.CreateUser(t, "alice", "alice@example.com", "hashed")

	apply := func(db DBTX) error {
		return StartTrialTx(ctx, db, uid, "cus_1", "sub_1", now, now.AddDate(0, 0, 14))
	}

	applied, err := storage.ProcessEvent(ctx, "evt_1", "checkout.session.completed", apply)
	require.NoError(t, err)
	assert.True(t, applied)
	verify.VerifySubscriptionState(t, uid, "pro", "trialing")

	processed, err := storage.IsEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)

	// повторная доставка не применяется и не падает
	applied, err = storage.ProcessEvent(ctx, "evt_1", "checkout.session.completed", func(db DBTX) error {
		t.Fatal("apply must not run for a duplicate event")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestProcessEvent_FailedApplyLeavesNoJournalRow(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	verify := NewTestVerification(storage)

	applyErr := errors.New("boom")
	_, err := storage.ProcessEvent(ctx, "evt_broken", "customer.subscription.updated", func(db DBTX) error {
		return applyErr
	})
	assert.ErrorIs(t, err, applyErr)

	// строка журнала и переход либо фиксируются вместе, либо никак
	verify.VerifyEventJournaled(t, "evt_broken", false)
}

func TestSubscriptionTransitions(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	now := time.Now().UTC()

	uid := factory.CreateUser(t, "alice", "alice@example.com", "hashed")
	factory.ActivateTrial(t, uid, "cus_1", "sub_1", now, now.AddDate(0, 0, 14))

	periodEnd := now.AddDate(0, 1, 0)
	require.NoError(t, MarkActiveTx(ctx, storage.DB, "sub_1", &periodEnd))
	verify.VerifySubscriptionState(t, uid, "pro", "active")

	require.NoError(t, MarkCancelledTx(ctx, storage.DB, "sub_1"))
	sub, err := storage.GetSubscription(ctx, uid)
	require.NoError(t, err)
	// отмена — флаг, статус остаётся оплаченным до конца периода
	assert.True(t, sub.Cancelled)
	assert.Equal(t, models.StatusActive, sub.Status)

	require.NoError(t, ResetToFreeTx(ctx, storage.DB, uid))
	verify.VerifySubscriptionState(t, uid, "free", "inactive")
}

func TestGetSubscriptionByExternalID(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	uid := factory.CreateUser(t, "alice", "alice@example.com", "hashed")
	factory.ActivateTrial(t, uid, "cus_1", "sub_1", now, now.AddDate(0, 0, 14))

	sub, err := storage.GetSubscriptionByExternalID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, uid, sub.UserUID)

	_, err = storage.GetSubscriptionByExternalID(ctx, "sub_ghost")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestUpdateSessionPayload(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	factory.CreateUser(t, "alice", "alice@example.com", "hashed")
	factory.CreateSession(t, "sid-1", "alice", now.Add(time.Hour))

	payload := json.RawMessage(`{"user_uid":"uid-1","role":"user"}`)
	require.NoError(t, storage.UpdateSessionPayload(ctx, "sid-1", payload, now))

	sess, err := storage.TouchSession(ctx, "sid-1", now)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(sess.Payload))
}

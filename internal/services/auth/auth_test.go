package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/squeezeai/account-service/internal/lib/password"
	"github.com/squeezeai/account-service/internal/models"
	"github.com/squeezeai/account-service/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) RegisterUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *RepoMock) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) MarkLoginSuccess(ctx context.Context, userUID string, at time.Time) error {
	return m.Called(ctx, userUID, at).Error(0)
}

func (m *RepoMock) IncrementFailedLogins(ctx context.Context, userUID string) error {
	return m.Called(ctx, userUID).Error(0)
}

func (m *RepoMock) MarkLoggedOut(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *RepoMock) UpdatePasswordHash(ctx context.Context, username, passwordHash string) error {
	return m.Called(ctx, username, passwordHash).Error(0)
}

func (m *RepoMock) DeactivateUser(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *RepoMock) DeleteUser(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newService(repo *RepoMock) *Service {
	return New(repo, password.NewHasher(password.MinCost), true, newNoopLogger())
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{name: "valid", username: "alice_01", wantErr: false},
		{name: "too short", username: "ab", wantErr: true},
		{name: "too long", username: "a234567890123456789012345678901", wantErr: true},
		{name: "bad characters", username: "alice!", wantErr: true},
		{name: "reserved", username: "admin", wantErr: true},
		{name: "reserved case-insensitive", username: "Admin", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUsername)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("user@example.com"))
	assert.ErrorIs(t, ValidateEmail("not-an-email"), ErrInvalidEmail)
	assert.ErrorIs(t, ValidateEmail("user@"), ErrInvalidEmail)
}

func TestRegister_Success(t *testing.T) {
	repo := new(RepoMock)
	repo.On("RegisterUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Username == "alice" && u.Email == "alice@example.com" &&
			u.Role == "user" && u.IsActive && u.PasswordHash != ""
	})).Return("uid-1", nil).Once()

	svc := newService(repo)
	user, err := svc.Register(context.Background(), "alice", "alice@example.com", "Passw0rd!", models.Profile{})
	require.NoError(t, err)
	assert.Equal(t, "uid-1", user.UID)
	repo.AssertExpectations(t)
}

func TestRegister_Validation(t *testing.T) {
	svc := newService(new(RepoMock))

	_, err := svc.Register(context.Background(), "root", "a@b.com", "Passw0rd!", models.Profile{})
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = svc.Register(context.Background(), "alice", "bad-email", "Passw0rd!", models.Profile{})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Register(context.Background(), "alice", "a@b.com", "weakpass", models.Profile{})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegister_Taken(t *testing.T) {
	repo := new(RepoMock)
	repo.On("RegisterUser", mock.Anything, mock.Anything).
		Return("", repository.ErrUsernameTaken).Once()

	svc := newService(repo)
	_, err := svc.Register(context.Background(), "alice", "a@b.com", "Passw0rd!", models.Profile{})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestVerify_Success(t *testing.T) {
	hasher := password.NewHasher(password.MinCost)
	hash, err := hasher.Hash("Passw0rd!")
	require.NoError(t, err)

	repo := new(RepoMock)
	repo.On("GetUserByUsername", mock.Anything, "alice").
		Return(&models.User{UID: "uid-1", Username: "alice", PasswordHash: hash, IsActive: true}, nil).Once()
	repo.On("MarkLoginSuccess", mock.Anything, "uid-1", mock.Anything).Return(nil).Once()

	svc := newService(repo)
	user, err := svc.Verify(context.Background(), "alice", "Passw0rd!")
	require.NoError(t, err)
	assert.True(t, user.LoggedIn)
	assert.NotNil(t, user.LastLogin)
	repo.AssertExpectations(t)
}

func TestVerify_ByEmail(t *testing.T) {
	hasher := password.NewHasher(password.MinCost)
	hash, err := hasher.Hash("Passw0rd!")
	require.NoError(t, err)

	repo := new(RepoMock)
	repo.On("GetUserByUsername", mock.Anything, "alice@example.com").
		Return(nil, repository.ErrUserNotFound).Once()
	repo.On("GetUserByEmail", mock.Anything, "alice@example.com").
		Return(&models.User{UID: "uid-1", Username: "alice", PasswordHash: hash, IsActive: true}, nil).Once()
	repo.On("MarkLoginSuccess", mock.Anything, "uid-1", mock.Anything).Return(nil).Once()

	svc := newService(repo)
	user, err := svc.Verify(context.Background(), "alice@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestVerify_BadPassword(t *testing.T) {
	hasher := password.NewHasher(password.MinCost)
	hash, err := hasher.Hash("Passw0rd!")
	require.NoError(t, err)

	repo := new(RepoMock)
	repo.On("GetUserByUsername", mock.Anything, "alice").
		Return(&models.User{UID: "uid-1", Username: "alice", PasswordHash: hash, IsActive: true}, nil).Once()
	repo.On("IncrementFailedLogins", mock.Anything, "uid-1").Return(nil).Once()

	svc := newService(repo)
	_, err = svc.Verify(context.Background(), "alice", "WrongPass1!")
	assert.ErrorIs(t, err, ErrBadPassword)
	repo.AssertExpectations(t)
}

func TestVerify_Deactivated(t *testing.T) {
	hasher := password.NewHasher(password.MinCost)
	hash, err := hasher.Hash("Passw0rd!")
	require.NoError(t, err)

	repo := new(RepoMock)
	repo.On("GetUserByUsername", mock.Anything, "alice").
		Return(&models.User{UID: "uid-1", Username: "alice", PasswordHash: hash, IsActive: false}, nil).Once()

	svc := newService(repo)
	_, err = svc.Verify(context.Background(), "alice", "Passw0rd!")
	assert.ErrorIs(t, err, ErrDeactivated)
}

func TestVerify_UnknownUser(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetUserByUsername", mock.Anything, "ghost").
		Return(nil, repository.ErrUserNotFound).Once()
	repo.On("GetUserByEmail", mock.Anything, "ghost").
		Return(nil, repository.ErrUserNotFound).Once()

	svc := newService(repo)
	_, err := svc.Verify(context.Background(), "ghost", "Passw0rd!")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	hasher := password.NewHasher(password.MinCost)
	hash, err := hasher.Hash("Passw0rd!")
	require.NoError(t, err)

	repo := new(RepoMock)
	repo.On("GetUserByUsername", mock.Anything, "alice").
		Return(&models.User{UID: "uid-1", Username: "alice", PasswordHash: hash, IsActive: true}, nil)
	repo.On("UpdatePasswordHash", mock.Anything, "alice", mock.Anything).Return(nil).Once()

	svc := newService(repo)

	err = svc.ChangePassword(context.Background(), "alice", "WrongPass1!", "NewPassw0rd!")
	assert.ErrorIs(t, err, ErrBadPassword)

	err = svc.ChangePassword(context.Background(), "alice", "Passw0rd!", "weakpass")
	assert.ErrorIs(t, err, ErrWeakPassword)

	err = svc.ChangePassword(context.Background(), "alice", "Passw0rd!", "NewPassw0rd!")
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

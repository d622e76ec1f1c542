// Package maintenance выполняет плановые чистки хранилища: истёкшие и
// старые сессии, журнал попыток входа, истёкшие токены восстановления.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/squeezeai/account-service/internal/lib/sl"
)

// SessionSweeper чистит истёкшие сессии и строки старше горизонта хранения.
type SessionSweeper interface {
	Cleanup(ctx context.Context) error
}

// AttemptSweeper чистит старые записи журнала попыток входа.
type AttemptSweeper interface {
	Sweep(ctx context.Context) error
}

// TokenSweeper чистит истёкшие токены восстановления.
type TokenSweeper interface {
	DeleteExpiredResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper периодически запускает все чистки.
type Sweeper struct {
	sessions SessionSweeper
	attempts AttemptSweeper
	tokens   TokenSweeper
	interval time.Duration
	log      *slog.Logger
}

// New создает Sweeper с периодом interval.
func New(sessions SessionSweeper, attempts AttemptSweeper, tokens TokenSweeper,
	interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		attempts: attempts,
		tokens:   tokens,
		interval: interval,
		log:      log,
	}
}

// Run запускает цикл чисток до отмены контекста. Первый проход
// выполняется сразу.
func (s *Sweeper) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if err := s.sessions.Cleanup(ctx); err != nil {
		s.log.Error("session cleanup failed", sl.Err(err))
	}
	if err := s.attempts.Sweep(ctx); err != nil {
		s.log.Error("login attempt sweep failed", sl.Err(err))
	}
	if deleted, err := s.tokens.DeleteExpiredResetTokens(ctx, time.Now().UTC()); err != nil {
		s.log.Error("reset token sweep failed", sl.Err(err))
	} else if deleted > 0 {
		s.log.Info("swept expired reset tokens", slog.Int64("deleted", deleted))
	}
}

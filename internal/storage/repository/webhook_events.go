package repository

import (
	"context"
	"fmt"
)

// ProcessEvent выполняет идемпотентную обработку webhook-события.
// Запись в журнал событий и применение перехода apply идут одной
// транзакцией: либо фиксируется всё, либо ничего. Если событие уже есть
// в журнале, возвращается (false, nil) и apply не вызывается — повторная
// доставка того же event_id превращается в no-op.
func (s *Storage) ProcessEvent(ctx context.Context, eventID, eventType string, apply func(db DBTX) error) (bool, error) {
	const op = "storage.ProcessEvent"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO webhook_events (event_id, event_type)
			  VALUES ($1, $2)
			  ON CONFLICT (event_id) DO NOTHING`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return false, nil
	}

	if apply != nil {
		if err := apply(tx); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// IsEventProcessed сообщает, встречался ли уже данный event_id.
func (s *Storage) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	const op = "storage.IsEventProcessed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`
	if err := s.DB.QueryRowContext(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

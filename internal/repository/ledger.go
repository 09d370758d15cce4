package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/triclub-points/internal/model"
)

const pointEventColumns = `id, user_id, amount, kind, description, reference, created_at`

func scanPointEvent(row rowScanner) (*model.PointEvent, error) {
	var (
		e      model.PointEvent
		userID *int64
		kind   string
	)
	if err := row.Scan(&e.ID, &userID, &e.Amount, &kind, &e.Description, &e.Reference, &e.CreatedAt); err != nil {
		return nil, err
	}
	if userID != nil {
		e.UserID = *userID
	}
	e.Kind = model.EventKind(kind)
	return &e, nil
}

// RecordEvent добавляет событие в журнал и изменяет баланс пользователя в одной транзакции.
func (r *PostgresRepository) RecordEvent(ctx context.Context, ev model.NewPointEvent) (*model.PointEvent, error) {
	var recorded *model.PointEvent
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		recorded, err = recordEvent(ctx, tx, ev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

func recordEvent(ctx context.Context, tx pgx.Tx, ev model.NewPointEvent) (*model.PointEvent, error) {
	// UPDATE держит блокировку строки пользователя до конца транзакции,
	// параллельные начисления одному пользователю выполняются по очереди.
	cmdTag, err := tx.Exec(ctx,
		`UPDATE users SET points = points + $1 WHERE id = $2`,
		ev.Amount, ev.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: update balance: %w", ErrTransactionAborted, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, ev.UserID)
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO point_events (user_id, amount, kind, description, reference)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+pointEventColumns,
		ev.UserID, ev.Amount, string(ev.Kind), ev.Description, ev.Reference,
	)
	recorded, err := scanPointEvent(row)
	if err != nil {
		return nil, fmt.Errorf("%w: insert event: %w", ErrTransactionAborted, err)
	}

	return recorded, nil
}

// ReverseEvent списывает с баланса ровно сохранённую сумму события и удаляет событие.
// Если владельца уже нет, баланс не трогается, но событие всё равно удаляется.
func (r *PostgresRepository) ReverseEvent(ctx context.Context, eventID int64) (*model.PointEvent, error) {
	var reversed *model.PointEvent
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		reversed, err = reverseEvent(ctx, tx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reversed, nil
}

func reverseEvent(ctx context.Context, tx pgx.Tx, eventID int64) (*model.PointEvent, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+pointEventColumns+` FROM point_events WHERE id = $1 FOR UPDATE`,
		eventID,
	)
	ev, err := scanPointEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrEventNotFound, eventID)
		}
		return nil, fmt.Errorf("%w: select event: %w", ErrTransactionAborted, err)
	}

	if ev.UserID != 0 {
		_, err = tx.Exec(ctx,
			`UPDATE users SET points = points - $1 WHERE id = $2`,
			ev.Amount, ev.UserID,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: update balance: %w", ErrTransactionAborted, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM point_events WHERE id = $1`, eventID); err != nil {
		return nil, fmt.Errorf("%w: delete event: %w", ErrTransactionAborted, err)
	}

	return ev, nil
}

// GetBalance возвращает кэшированный баланс пользователя без пересчёта по журналу.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var points int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `SELECT points FROM users WHERE id = $1`, userID).Scan(&points)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return points, nil
}

// GetHistory возвращает события пользователя от новых к старым с необязательным окном времени.
func (r *PostgresRepository) GetHistory(ctx context.Context, userID int64, window model.HistoryWindow) ([]model.PointEvent, error) {
	query := `SELECT ` + pointEventColumns + ` FROM point_events WHERE user_id = $1`
	args := []any{userID}

	if window.From != nil {
		args = append(args, *window.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if window.To != nil {
		args = append(args, *window.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var events []model.PointEvent
	err := r.withRetry(ctx, func() error {
		events = events[:0]

		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			ev, err := scanPointEvent(rows)
			if err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			events = append(events, *ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}

	return events, nil
}

// FindEventByReference возвращает событие по обратной ссылке на исходную сущность.
func (r *PostgresRepository) FindEventByReference(ctx context.Context, reference string) (*model.PointEvent, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+pointEventColumns+` FROM point_events WHERE reference = $1 ORDER BY id LIMIT 1`,
		reference,
	)
	ev, err := scanPointEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, reference)
		}
		return nil, fmt.Errorf("find event by reference: %w", err)
	}
	return ev, nil
}

// ReconcileBalance возвращает кэшированный баланс и сумму по журналу для сверки.
func (r *PostgresRepository) ReconcileBalance(ctx context.Context, userID int64) (int64, int64, error) {
	var cached, fromHistory int64
	err := r.pool.QueryRow(ctx,
		`SELECT u.points,
		        COALESCE((SELECT SUM(e.amount) FROM point_events e WHERE e.user_id = u.id), 0)::BIGINT
		 FROM users u
		 WHERE u.id = $1`,
		userID,
	).Scan(&cached, &fromHistory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return 0, 0, fmt.Errorf("reconcile balance: %w", err)
	}
	return cached, fromHistory, nil
}

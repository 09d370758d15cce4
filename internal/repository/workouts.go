package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/triclub-points/internal/model"
)

const workoutColumns = `id, user_id, sport, duration_minutes, distance_km, description, points, created_at`

func scanWorkout(row rowScanner) (*model.Workout, error) {
	var (
		w      model.Workout
		userID *int64
		sport  string
	)
	if err := row.Scan(&w.ID, &userID, &sport, &w.DurationMinutes, &w.DistanceKm, &w.Description, &w.Points, &w.CreatedAt); err != nil {
		return nil, err
	}
	if userID != nil {
		w.UserID = *userID
	}
	w.Sport = model.Sport(sport)
	return &w, nil
}

// CreateWorkout сохраняет тренировку и событие WORKOUT со ссылкой на неё в одной транзакции.
func (r *PostgresRepository) CreateWorkout(ctx context.Context, w model.Workout) (*model.Workout, *model.PointEvent, error) {
	var (
		created *model.Workout
		event   *model.PointEvent
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		created, err = scanWorkout(tx.QueryRow(ctx,
			`INSERT INTO workouts (user_id, sport, duration_minutes, distance_km, description, points)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+workoutColumns,
			w.UserID, string(w.Sport), w.DurationMinutes, w.DistanceKm, w.Description, w.Points,
		))
		if err != nil {
			if isPgError(err, pgerrcode.ForeignKeyViolation) {
				return fmt.Errorf("%w: %d", ErrUserNotFound, w.UserID)
			}
			return fmt.Errorf("%w: insert workout: %w", ErrTransactionAborted, err)
		}

		ref := model.WorkoutReference(created.ID)
		event, err = recordEvent(ctx, tx, model.NewPointEvent{
			UserID:      w.UserID,
			Amount:      w.Points,
			Kind:        model.EventKindWorkout,
			Description: w.Description,
			Reference:   &ref,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return created, event, nil
}

// GetWorkoutsByUser возвращает тренировки пользователя, новые первыми.
func (r *PostgresRepository) GetWorkoutsByUser(ctx context.Context, userID int64) ([]model.Workout, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workoutColumns+`
		 FROM workouts
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select workouts: %w", err)
	}
	defer rows.Close()

	var res []model.Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workout: %w", err)
		}
		res = append(res, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteWorkout удаляет тренировку и отменяет связанное с ней событие в одной транзакции.
// Возвращает отменённое событие или nil, если парного события не было.
func (r *PostgresRepository) DeleteWorkout(ctx context.Context, workoutID int64) (*model.PointEvent, error) {
	var reversed *model.PointEvent
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM workouts WHERE id = $1 FOR UPDATE`, workoutID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrWorkoutNotFound, workoutID)
			}
			return fmt.Errorf("%w: lock workout: %w", ErrTransactionAborted, err)
		}

		var eventID int64
		err = tx.QueryRow(ctx,
			`SELECT id FROM point_events WHERE reference = $1 ORDER BY id LIMIT 1`,
			model.WorkoutReference(workoutID),
		).Scan(&eventID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("%w: find workout event: %w", ErrTransactionAborted, err)
		default:
			reversed, err = reverseEvent(ctx, tx, eventID)
			if err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM workouts WHERE id = $1`, workoutID); err != nil {
			return fmt.Errorf("%w: delete workout: %w", ErrTransactionAborted, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversed, nil
}

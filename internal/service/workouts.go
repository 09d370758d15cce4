package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/triclub-points/internal/model"
)

const maxWorkoutMinutes = 24 * 60

// Баллы за 10 минут тренировки по видам спорта.
var sportRates = map[model.Sport]int64{
	model.SportSwim:     20,
	model.SportRun:      15,
	model.SportBrick:    18,
	model.SportBike:     10,
	model.SportStrength: 8,
	model.SportOther:    5,
}

// WorkoutPoints возвращает баллы за тренировку. Для неизвестного вида спорта ok == false.
func WorkoutPoints(sport model.Sport, durationMinutes int) (points int64, ok bool) {
	rate, ok := sportRates[sport]
	if !ok {
		return 0, false
	}
	return int64(durationMinutes) * rate / 10, true
}

// WorkoutInput содержит параметры новой тренировки.
type WorkoutInput struct {
	Sport           model.Sport
	DurationMinutes int
	DistanceKm      float64
	Description     string
}

// RecordWorkout сохраняет тренировку и начисляет за неё баллы.
func (s *Service) RecordWorkout(ctx context.Context, userID int64, in WorkoutInput) (*model.Workout, error) {
	if in.DurationMinutes < 1 || in.DurationMinutes > maxWorkoutMinutes {
		return nil, fmt.Errorf("%w: duration must be in [1, %d] minutes", ErrInvalidWorkout, maxWorkoutMinutes)
	}
	if in.DistanceKm < 0 {
		return nil, fmt.Errorf("%w: negative distance", ErrInvalidWorkout)
	}
	points, ok := WorkoutPoints(in.Sport, in.DurationMinutes)
	if !ok {
		return nil, fmt.Errorf("%w: unknown sport %q", ErrInvalidWorkout, in.Sport)
	}

	w, ev, err := s.repo.CreateWorkout(ctx, model.Workout{
		UserID:          userID,
		Sport:           in.Sport,
		DurationMinutes: in.DurationMinutes,
		DistanceKm:      in.DistanceKm,
		Description:     in.Description,
		Points:          points,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev, false)
	return w, nil
}

// GetWorkouts возвращает тренировки пользователя.
func (s *Service) GetWorkouts(ctx context.Context, userID int64) ([]model.Workout, error) {
	return s.repo.GetWorkoutsByUser(ctx, userID)
}

// DeleteWorkout удаляет тренировку и отменяет начисленные за неё баллы ровно на записанную сумму.
func (s *Service) DeleteWorkout(ctx context.Context, workoutID int64) (*model.PointEvent, error) {
	ev, err := s.repo.DeleteWorkout(ctx, workoutID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev, true)
	return ev, nil
}

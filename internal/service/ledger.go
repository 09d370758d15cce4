package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/triclub-points/internal/model"
	"github.com/mmeshcher/triclub-points/internal/ranking"
)

// RecordEvent записывает событие начисления и отправляет уведомление после фиксации.
func (s *Service) RecordEvent(ctx context.Context, ev model.NewPointEvent) (*model.PointEvent, error) {
	if !ev.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, ev.Kind)
	}

	recorded, err := s.repo.RecordEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, recorded, false)
	return recorded, nil
}

// ReverseEvent отменяет событие на сохранённую в нём сумму.
func (s *Service) ReverseEvent(ctx context.Context, eventID int64) (*model.PointEvent, error) {
	reversed, err := s.repo.ReverseEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, reversed, true)
	return reversed, nil
}

// GetBalance возвращает кэшированный баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// GetHistory возвращает историю событий пользователя, новые первыми.
func (s *Service) GetHistory(ctx context.Context, userID int64, window model.HistoryWindow) ([]model.PointEvent, error) {
	return s.repo.GetHistory(ctx, userID, window)
}

// MonthWindow возвращает окно текущего месяца по часам сервиса.
func (s *Service) MonthWindow() model.HistoryWindow {
	return model.MonthWindow(s.now())
}

// Stats собирает показатели для панели пользователя: баланс, уровень, корзину рейтинга
// и сумму начислений за текущий месяц.
func (s *Service) Stats(ctx context.Context, userID int64) (*model.Stats, error) {
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.GetHistory(ctx, userID, s.MonthWindow())
	if err != nil {
		return nil, err
	}

	var monthly int64
	for _, e := range events {
		monthly += e.Amount
	}

	c := ranking.Classify(balance)
	return &model.Stats{
		Points:        balance,
		Level:         c.Level,
		RankBucket:    c.RankBucket,
		MonthlyPoints: monthly,
	}, nil
}

var adjustableKinds = map[model.EventKind]bool{
	model.EventKindAdminAdjust: true,
	model.EventKindBonus:       true,
	model.EventKindChallenge:   true,
}

// AdjustPoints выполняет ручную корректировку баланса администратором.
// Пустой kind означает ADMIN_ADJUST.
func (s *Service) AdjustPoints(ctx context.Context, adminID, userID, amount int64, kind model.EventKind, description string) (*model.PointEvent, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if kind == "" {
		kind = model.EventKindAdminAdjust
	}
	if !adjustableKinds[kind] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	ev, err := s.RecordEvent(ctx, model.NewPointEvent{
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("points adjusted",
		zap.Int64("admin_id", adminID),
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("kind", string(kind)),
	)
	return ev, nil
}

// Reconcile сверяет кэшированный баланс с суммой событий.
func (s *Service) Reconcile(ctx context.Context, userID int64) (*model.Reconciliation, error) {
	cached, fromHistory, err := s.repo.ReconcileBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cached != fromHistory {
		s.logger.Error("balance drift detected",
			zap.Int64("user_id", userID),
			zap.Int64("cached", cached),
			zap.Int64("from_history", fromHistory),
		)
	}

	return &model.Reconciliation{
		UserID:      userID,
		Cached:      cached,
		FromHistory: fromHistory,
		Consistent:  cached == fromHistory,
	}, nil
}

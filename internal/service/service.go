// Package service реализует бизнес-логику клубного сервиса баллов.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/triclub-points/internal/model"
	"github.com/mmeshcher/triclub-points/internal/notify"
	"github.com/mmeshcher/triclub-points/internal/repository"
)

var (
	// ErrCodeNotFound возвращается для неизвестного или некорректного кода приглашения.
	ErrCodeNotFound = errors.New("invitation code not found")
	// ErrCodeDisabled возвращается для отключённого кода приглашения.
	ErrCodeDisabled = errors.New("invitation code disabled")
	// ErrCodeExpired возвращается для просроченного кода приглашения.
	ErrCodeExpired = errors.New("invitation code expired")
	// ErrInvalidInvitation возвращается при создании приглашения с некорректными параметрами.
	ErrInvalidInvitation = errors.New("invalid invitation")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidAmount возвращается для нулевой суммы корректировки.
	ErrInvalidAmount = errors.New("amount must not be zero")
	// ErrInvalidKind возвращается для вида события, недопустимого в данной операции.
	ErrInvalidKind = errors.New("invalid event kind")
	// ErrInvalidWorkout возвращается для некорректных параметров тренировки.
	ErrInvalidWorkout = errors.New("invalid workout")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	RecordEvent(ctx context.Context, ev model.NewPointEvent) (*model.PointEvent, error)
	ReverseEvent(ctx context.Context, eventID int64) (*model.PointEvent, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	GetHistory(ctx context.Context, userID int64, window model.HistoryWindow) ([]model.PointEvent, error)
	ReconcileBalance(ctx context.Context, userID int64) (int64, int64, error)

	CreateUser(ctx context.Context, nu repository.NewUser) (int64, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	ListUsers(ctx context.Context, f repository.UserFilter) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) error

	GetInvitation(ctx context.Context, code string) (*model.Invitation, error)
	CreateInvitation(ctx context.Context, inv *model.Invitation) error
	SetInvitationStatus(ctx context.Context, code string, status model.InvitationStatus) error
	ListInvitations(ctx context.Context, f repository.InvitationFilter) ([]model.Invitation, error)
	DeleteAllInvitations(ctx context.Context) (int64, error)
	RedeemInvitation(ctx context.Context, p repository.RedeemParams) (*model.PointEvent, error)
	RegisterMember(ctx context.Context, p repository.RegisterParams) (*repository.Registration, error)

	CreateWorkout(ctx context.Context, w model.Workout) (*model.Workout, *model.PointEvent, error)
	GetWorkoutsByUser(ctx context.Context, userID int64) ([]model.Workout, error)
	DeleteWorkout(ctx context.Context, workoutID int64) (*model.PointEvent, error)
}

// Bonuses задаёт размеры бонусов за приглашение и регистрацию.
type Bonuses struct {
	Invite  int64
	Welcome int64
}

// Service содержит бизнес-логику клубного сервиса баллов.
type Service struct {
	repo      Repository
	publisher notify.Publisher
	logger    *zap.Logger
	bonuses   Bonuses

	now      func() time.Time
	hashCost int
}

// NewService создаёт сервис. Если publisher равен nil, уведомления не отправляются.
func NewService(repo Repository, publisher notify.Publisher, logger *zap.Logger, bonuses Bonuses) *Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		bonuses:   bonuses,
		now:       time.Now,
		hashCost:  bcrypt.DefaultCost,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	return errors.Join(errs...)
}

// publish отправляет уведомление после фиксации транзакции. Ошибка только логируется.
func (s *Service) publish(ctx context.Context, ev *model.PointEvent, reversed bool) {
	if ev == nil {
		return
	}

	n := model.PointsNotification{
		EventID:    ev.ID,
		UserID:     ev.UserID,
		Amount:     ev.Amount,
		Kind:       ev.Kind,
		Reference:  ev.Reference,
		Reversed:   reversed,
		OccurredAt: ev.CreatedAt,
	}
	if reversed {
		n.OccurredAt = s.now()
	}

	if err := s.publisher.Publish(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Warn("publish points notification failed",
			zap.Error(err),
			zap.Int64("event_id", ev.ID),
			zap.Bool("reversed", reversed),
		)
	}
}

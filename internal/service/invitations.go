package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/triclub-points/internal/model"
	"github.com/mmeshcher/triclub-points/internal/repository"
	"github.com/mmeshcher/triclub-points/internal/validation"
)

const defaultInvitationTTL = 30 * 24 * time.Hour

// checkInvitation применяет правила допуска к найденному приглашению.
// Счётчик использований не проверяется: коды многоразовые.
func checkInvitation(inv *model.Invitation, now time.Time) error {
	if inv.Status != model.InvitationStatusPending {
		return fmt.Errorf("%w: %s", ErrCodeDisabled, inv.Code)
	}
	if inv.ExpiresAt.Before(now) {
		return fmt.Errorf("%w: %s", ErrCodeExpired, inv.Code)
	}
	return nil
}

func normalizeCode(code string) (string, error) {
	code = validation.NormalizeInvitationCode(code)
	if !validation.IsValidInvitationCode(code) {
		return "", ErrCodeNotFound
	}
	return code, nil
}

// ValidateInvitation проверяет код без побочных эффектов и возвращает данные для показа.
func (s *Service) ValidateInvitation(ctx context.Context, code string, now time.Time) (*model.InvitationSummary, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.GetInvitation(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrInvitationNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	if err := checkInvitation(inv, now); err != nil {
		return nil, err
	}

	return inv.Summary(), nil
}

// RedeemInvitation погашает код для уже созданного пользователя: правила проверяются повторно
// под блокировкой, отправитель получает бонус за приглашение.
func (s *Service) RedeemInvitation(ctx context.Context, code string, newUserID int64, now time.Time) (*model.PointEvent, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	ev, err := s.repo.RedeemInvitation(ctx, repository.RedeemParams{
		Code:      code,
		NewUserID: newUserID,
		Bonus:     s.bonuses.Invite,
		Check:     func(inv *model.Invitation) error { return checkInvitation(inv, now) },
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvitationNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	s.publish(ctx, ev, false)
	return ev, nil
}

// InvitationInput содержит параметры нового приглашения.
type InvitationInput struct {
	Code      string
	Message   string
	ExpiresAt time.Time
	MaxUses   int
}

// CreateInvitation создаёт приглашение от имени отправителя. Без кода генерируется случайный.
func (s *Service) CreateInvitation(ctx context.Context, senderID int64, in InvitationInput) (*model.Invitation, error) {
	now := s.now()

	code := validation.NormalizeInvitationCode(in.Code)
	if code == "" {
		code = generateInvitationCode()
	}
	if !validation.IsValidInvitationCode(code) {
		return nil, fmt.Errorf("%w: malformed code", ErrInvalidInvitation)
	}

	expiresAt := in.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultInvitationTTL)
	}
	if expiresAt.Before(now) {
		return nil, fmt.Errorf("%w: expiry in the past", ErrInvalidInvitation)
	}

	maxUses := in.MaxUses
	if maxUses < 0 {
		return nil, fmt.Errorf("%w: negative max uses", ErrInvalidInvitation)
	}
	if maxUses == 0 {
		maxUses = 1
	}

	inv := &model.Invitation{
		Code:      code,
		SenderID:  senderID,
		Message:   in.Message,
		ExpiresAt: expiresAt,
		MaxUses:   maxUses,
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info("invitation created", zap.String("code", code), zap.Int64("sender_id", senderID))
	return inv, nil
}

func generateInvitationCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRI-" + strings.ToUpper(raw[:10])
}

// DisableInvitation переводит приглашение в статус DISABLED.
func (s *Service) DisableInvitation(ctx context.Context, code string) error {
	code, err := normalizeCode(code)
	if err != nil {
		return err
	}

	err = s.repo.SetInvitationStatus(ctx, code, model.InvitationStatusDisabled)
	if errors.Is(err, repository.ErrInvitationNotFound) {
		return ErrCodeNotFound
	}
	return err
}

// ListInvitations возвращает приглашения по фильтру. Непросроченность считается по часам сервиса.
func (s *Service) ListInvitations(ctx context.Context, f repository.InvitationFilter) ([]model.Invitation, error) {
	if f.Now.IsZero() {
		f.Now = s.now()
	}
	return s.repo.ListInvitations(ctx, f)
}

// ResetInvitations удаляет все приглашения.
func (s *Service) ResetInvitations(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAllInvitations(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("invitations reset", zap.Int64("deleted", n))
	return n, nil
}

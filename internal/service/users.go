package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/triclub-points/internal/model"
	"github.com/mmeshcher/triclub-points/internal/repository"
)

// RegisterInput содержит данные регистрации нового участника.
type RegisterInput struct {
	Login       string
	Password    string
	DisplayName string
	Club        string
	InviteCode  string
}

// RegisterUser регистрирует участника по коду приглашения. Создание пользователя,
// погашение кода и приветственный бонус фиксируются одной транзакцией.
func (s *Service) RegisterUser(ctx context.Context, reg RegisterInput) (int64, error) {
	now := s.now()

	// Быстрый отказ до хэширования пароля; окончательная проверка идёт под блокировкой.
	if _, err := s.ValidateInvitation(ctx, reg.InviteCode, now); err != nil {
		return 0, err
	}
	code, err := normalizeCode(reg.InviteCode)
	if err != nil {
		return 0, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.hashCost)
	if err != nil {
		return 0, err
	}

	res, err := s.repo.RegisterMember(ctx, repository.RegisterParams{
		User: repository.NewUser{
			Login:        reg.Login,
			PasswordHash: hash,
			DisplayName:  reg.DisplayName,
			Club:         reg.Club,
			Role:         model.RoleMember,
		},
		InvitationCode: code,
		InviteBonus:    s.bonuses.Invite,
		WelcomeBonus:   s.bonuses.Welcome,
		Check:          func(inv *model.Invitation) error { return checkInvitation(inv, now) },
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvitationNotFound) {
			return 0, ErrCodeNotFound
		}
		return 0, err
	}

	s.publish(ctx, res.InviteEvent, false)
	s.publish(ctx, res.WelcomeEvent, false)

	s.logger.Info("member registered", zap.Int64("user_id", res.UserID), zap.String("invite_code", code))
	return res.UserID, nil
}

// AuthenticateUser проверяет логин и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// ListUsers возвращает пользователей по фильтру.
func (s *Service) ListUsers(ctx context.Context, f repository.UserFilter) ([]model.User, error) {
	return s.repo.ListUsers(ctx, f)
}

// DeleteUser удаляет пользователя; его история остаётся без владельца.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.Int64("user_id", id))
	return nil
}

// EnsureAdmin создаёт администратора с указанным логином, если такого пользователя ещё нет.
// Пароль существующего пользователя не меняется.
func (s *Service) EnsureAdmin(ctx context.Context, login, password string) error {
	_, err := s.repo.GetUserByLogin(ctx, login)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return err
	}

	id, err := s.repo.CreateUser(ctx, repository.NewUser{
		Login:        login,
		PasswordHash: hash,
		DisplayName:  login,
		Role:         model.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil
		}
		return err
	}

	s.logger.Info("admin account created", zap.Int64("user_id", id), zap.String("login", login))
	return nil
}

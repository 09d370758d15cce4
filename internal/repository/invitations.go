package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/triclub-points/internal/model"
)

const invitationSelect = `SELECT i.code, i.sender_id, i.message, i.expires_at, i.max_uses, i.current_uses,
       i.status, i.created_at, COALESCE(u.display_name, ''), COALESCE(u.club, '')
FROM invitations i
LEFT JOIN users u ON u.id = i.sender_id`

// InvitationCheck проверяет приглашение под блокировкой строки. Ошибка отменяет погашение.
type InvitationCheck func(inv *model.Invitation) error

// InvitationFilter задаёт параметры выборки приглашений.
type InvitationFilter struct {
	Status         *model.InvitationStatus
	SenderID       *int64
	IncludeExpired bool
	Now            time.Time
}

func (f InvitationFilter) validate() error {
	if f.Status != nil && *f.Status != model.InvitationStatusPending && *f.Status != model.InvitationStatusDisabled {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, *f.Status)
	}
	if f.SenderID != nil && *f.SenderID <= 0 {
		return fmt.Errorf("%w: sender id must be positive", ErrInvalidFilter)
	}
	if !f.IncludeExpired && f.Now.IsZero() {
		return fmt.Errorf("%w: now is required to exclude expired invitations", ErrInvalidFilter)
	}
	return nil
}

func scanInvitation(row rowScanner) (*model.Invitation, error) {
	var (
		inv      model.Invitation
		senderID *int64
		status   string
	)
	err := row.Scan(&inv.Code, &senderID, &inv.Message, &inv.ExpiresAt, &inv.MaxUses, &inv.CurrentUses,
		&status, &inv.CreatedAt, &inv.SenderName, &inv.SenderClub)
	if err != nil {
		return nil, err
	}
	if senderID != nil {
		inv.SenderID = *senderID
	}
	inv.Status = model.InvitationStatus(status)
	return &inv, nil
}

// GetInvitation возвращает приглашение по точному (нормализованному) коду.
func (r *PostgresRepository) GetInvitation(ctx context.Context, code string) (*model.Invitation, error) {
	var inv *model.Invitation
	err := r.withRetry(ctx, func() error {
		var err error
		inv, err = scanInvitation(r.pool.QueryRow(ctx, invitationSelect+` WHERE i.code = $1`, code))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// CreateInvitation сохраняет новое приглашение в статусе PENDING.
func (r *PostgresRepository) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	var senderID *int64
	if inv.SenderID != 0 {
		senderID = &inv.SenderID
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO invitations (code, sender_id, message, expires_at, max_uses, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING current_uses, created_at`,
		inv.Code, senderID, inv.Message, inv.ExpiresAt, inv.MaxUses, string(model.InvitationStatusPending),
	).Scan(&inv.CurrentUses, &inv.CreatedAt)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return fmt.Errorf("%w: %s", ErrInvitationExists, inv.Code)
		}
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return fmt.Errorf("%w: %d", ErrUserNotFound, inv.SenderID)
		}
		return fmt.Errorf("create invitation: %w", err)
	}
	inv.Status = model.InvitationStatusPending
	return nil
}

// SetInvitationStatus меняет статус приглашения.
func (r *PostgresRepository) SetInvitationStatus(ctx context.Context, code string, status model.InvitationStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE invitations SET status = $2 WHERE code = $1`,
		code, string(status),
	)
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// ListInvitations возвращает приглашения по фильтру, новые первыми.
func (r *PostgresRepository) ListInvitations(ctx context.Context, f InvitationFilter) ([]model.Invitation, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	query := invitationSelect + ` WHERE TRUE`
	var args []any

	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(" AND i.status = $%d", len(args))
	}
	if f.SenderID != nil {
		args = append(args, *f.SenderID)
		query += fmt.Sprintf(" AND i.sender_id = $%d", len(args))
	}
	if !f.IncludeExpired {
		args = append(args, f.Now)
		query += fmt.Sprintf(" AND i.expires_at >= $%d", len(args))
	}
	query += ` ORDER BY i.created_at DESC, i.code`

	var res []model.Invitation
	err := r.withRetry(ctx, func() error {
		res = res[:0]

		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			inv, err := scanInvitation(rows)
			if err != nil {
				return fmt.Errorf("scan invitation: %w", err)
			}
			res = append(res, *inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select invitations: %w", err)
	}

	return res, nil
}

// DeleteAllInvitations удаляет все приглашения и возвращает их количество.
func (r *PostgresRepository) DeleteAllInvitations(ctx context.Context) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM invitations`)
	if err != nil {
		return 0, fmt.Errorf("delete invitations: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// RedeemParams описывает погашение приглашения новым участником.
type RedeemParams struct {
	Code      string
	NewUserID int64
	Bonus     int64
	Check     InvitationCheck
}

// RedeemInvitation погашает приглашение в отдельной транзакции и возвращает событие награды отправителю.
func (r *PostgresRepository) RedeemInvitation(ctx context.Context, p RedeemParams) (*model.PointEvent, error) {
	var reward *model.PointEvent
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		reward, err = redeemInvitation(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

// redeemInvitation блокирует строку приглашения, повторяет проверку, увеличивает счётчик
// использований и начисляет бонус отправителю. Если отправителя нет, событие не создаётся.
func redeemInvitation(ctx context.Context, tx pgx.Tx, p RedeemParams) (*model.PointEvent, error) {
	inv, err := scanInvitation(tx.QueryRow(ctx,
		invitationSelect+` WHERE i.code = $1 FOR UPDATE OF i`,
		p.Code,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("%w: lock invitation: %w", ErrTransactionAborted, err)
	}

	if p.Check != nil {
		if err := p.Check(inv); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE invitations SET current_uses = current_uses + 1 WHERE code = $1`,
		inv.Code,
	); err != nil {
		return nil, fmt.Errorf("%w: increment uses: %w", ErrTransactionAborted, err)
	}

	if inv.SenderID == 0 || p.Bonus == 0 {
		return nil, nil
	}

	ref := model.UserReference(p.NewUserID)
	return recordEvent(ctx, tx, model.NewPointEvent{
		UserID:      inv.SenderID,
		Amount:      p.Bonus,
		Kind:        model.EventKindInvite,
		Description: fmt.Sprintf("invitation %s redeemed", inv.Code),
		Reference:   &ref,
	})
}

// RegisterParams описывает регистрацию участника по приглашению.
type RegisterParams struct {
	User           NewUser
	InvitationCode string
	InviteBonus    int64
	WelcomeBonus   int64
	Check          InvitationCheck
}

// Registration — результат регистрации.
type Registration struct {
	UserID       int64
	InviteEvent  *model.PointEvent
	WelcomeEvent *model.PointEvent
}

// RegisterMember создаёт пользователя, погашает приглашение и начисляет приветственный бонус в одной транзакции.
func (r *PostgresRepository) RegisterMember(ctx context.Context, p RegisterParams) (*Registration, error) {
	res := &Registration{}
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		res.UserID, err = createUser(ctx, tx, p.User)
		if err != nil {
			return err
		}

		res.InviteEvent, err = redeemInvitation(ctx, tx, RedeemParams{
			Code:      p.InvitationCode,
			NewUserID: res.UserID,
			Bonus:     p.InviteBonus,
			Check:     p.Check,
		})
		if err != nil {
			return err
		}

		if p.WelcomeBonus != 0 {
			res.WelcomeEvent, err = recordEvent(ctx, tx, model.NewPointEvent{
				UserID:      res.UserID,
				Amount:      p.WelcomeBonus,
				Kind:        model.EventKindBonus,
				Description: "welcome bonus",
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

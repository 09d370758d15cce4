package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/triclub-points/internal/model"
)

const userColumns = `id, login, password_hash, display_name, club, role, points, created_at`

const (
	defaultUserLimit = 50
	maxUserLimit     = 500
)

// NewUser содержит данные для создания пользователя.
type NewUser struct {
	Login        string
	PasswordHash []byte
	DisplayName  string
	Club         string
	Role         model.Role
}

// UserFilter задаёт параметры выборки пользователей. Пустые поля не участвуют в условии.
type UserFilter struct {
	Club      *string
	MinPoints *int64
	Limit     int
}

func (f UserFilter) validate() error {
	if f.Limit < 0 || f.Limit > maxUserLimit {
		return fmt.Errorf("%w: limit must be in [0, %d]", ErrInvalidFilter, maxUserLimit)
	}
	if f.Club != nil && *f.Club == "" {
		return fmt.Errorf("%w: club must not be empty", ErrInvalidFilter)
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.DisplayName, &u.Club, &role, &u.Points, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// CreateUser создаёт нового пользователя с нулевым балансом.
func (r *PostgresRepository) CreateUser(ctx context.Context, nu NewUser) (int64, error) {
	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		id, err = createUser(ctx, tx, nu)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func createUser(ctx context.Context, tx pgx.Tx, nu NewUser) (int64, error) {
	role := nu.Role
	if role == "" {
		role = model.RoleMember
	}

	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, display_name, club, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		nu.Login, nu.PasswordHash, nu.DisplayName, nu.Club, string(role),
	).Scan(&id)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, nu.Login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = $1`,
		login,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers возвращает пользователей по убыванию баланса.
func (r *PostgresRepository) ListUsers(ctx context.Context, f UserFilter) ([]model.User, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE TRUE`
	var args []any

	if f.Club != nil {
		args = append(args, *f.Club)
		query += fmt.Sprintf(" AND club = $%d", len(args))
	}
	if f.MinPoints != nil {
		args = append(args, *f.MinPoints)
		query += fmt.Sprintf(" AND points >= $%d", len(args))
	}

	limit := f.Limit
	if limit == 0 {
		limit = defaultUserLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY points DESC, id LIMIT $%d", len(args))

	var users []model.User
	err := r.withRetry(ctx, func() error {
		users = users[:0]

		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return fmt.Errorf("scan user: %w", err)
			}
			users = append(users, *u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}

	return users, nil
}

// DeleteUser удаляет пользователя. Его события и тренировки остаются без владельца.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

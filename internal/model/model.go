// Package model содержит доменные сущности клубного сервиса баллов.
package model

import (
	"fmt"
	"time"
)

// Role определяет права пользователя.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User представляет члена клуба вместе с кэшированным балансом баллов.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	DisplayName  string
	Club         string
	Role         Role
	Points       int64
	CreatedAt    time.Time
}

// EventKind описывает причину начисления или списания баллов.
type EventKind string

const (
	EventKindWorkout     EventKind = "WORKOUT"
	EventKindChallenge   EventKind = "CHALLENGE"
	EventKindBonus       EventKind = "BONUS"
	EventKindInvite      EventKind = "INVITE"
	EventKindAdminAdjust EventKind = "ADMIN_ADJUST"
)

// Valid сообщает, входит ли вид события в известный набор.
func (k EventKind) Valid() bool {
	switch k {
	case EventKindWorkout, EventKindChallenge, EventKindBonus, EventKindInvite, EventKindAdminAdjust:
		return true
	}
	return false
}

// PointEvent — неизменяемая запись об изменении баланса пользователя.
// Amount положителен для начисления и отрицателен для списания.
type PointEvent struct {
	ID          int64
	UserID      int64
	Amount      int64
	Kind        EventKind
	Description string
	Reference   *string
	CreatedAt   time.Time
}

// NewPointEvent содержит данные для записи нового события.
type NewPointEvent struct {
	UserID      int64
	Amount      int64
	Kind        EventKind
	Description string
	Reference   *string
}

// WorkoutReference формирует обратную ссылку события на тренировку.
func WorkoutReference(workoutID int64) string {
	return fmt.Sprintf("workout:%d", workoutID)
}

// UserReference формирует обратную ссылку события на пользователя.
func UserReference(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// HistoryWindow задаёт полуоткрытый интервал [From, To) для выборки истории.
// Пустые границы не ограничивают выборку.
type HistoryWindow struct {
	From *time.Time
	To   *time.Time
}

// MonthWindow возвращает окно текущего календарного месяца в часовом поясе now.
func MonthWindow(now time.Time) HistoryWindow {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, 0)
	return HistoryWindow{From: &from, To: &to}
}

// Contains сообщает, попадает ли момент t в окно.
func (w HistoryWindow) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && !t.Before(*w.To) {
		return false
	}
	return true
}

// InvitationStatus описывает состояние кода приглашения.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "PENDING"
	InvitationStatusDisabled InvitationStatus = "DISABLED"
)

// Invitation — код приглашения, открывающий регистрацию.
// MaxUses хранится для отчётности и не ограничивает повторное использование.
type Invitation struct {
	Code        string
	SenderID    int64
	Message     string
	ExpiresAt   time.Time
	MaxUses     int
	CurrentUses int
	Status      InvitationStatus
	CreatedAt   time.Time

	SenderName string
	SenderClub string
}

// InvitationSummary — данные о приглашении, которые показываются при проверке кода.
type InvitationSummary struct {
	Code        string    `json:"code"`
	SenderName  string    `json:"sender_name"`
	SenderClub  string    `json:"sender_club"`
	Message     string    `json:"message"`
	ExpiresAt   time.Time `json:"expires_at"`
	CurrentUses int       `json:"current_uses"`
	MaxUses     int       `json:"max_uses"`
}

// Summary возвращает публичное представление приглашения.
func (i *Invitation) Summary() *InvitationSummary {
	return &InvitationSummary{
		Code:        i.Code,
		SenderName:  i.SenderName,
		SenderClub:  i.SenderClub,
		Message:     i.Message,
		ExpiresAt:   i.ExpiresAt,
		CurrentUses: i.CurrentUses,
		MaxUses:     i.MaxUses,
	}
}

// Sport — вид тренировки.
type Sport string

const (
	SportSwim     Sport = "SWIM"
	SportBike     Sport = "BIKE"
	SportRun      Sport = "RUN"
	SportBrick    Sport = "BRICK"
	SportStrength Sport = "STRENGTH"
	SportOther    Sport = "OTHER"
)

// Workout описывает записанную тренировку и начисленные за неё баллы.
type Workout struct {
	ID              int64
	UserID          int64
	Sport           Sport
	DurationMinutes int
	DistanceKm      float64
	Description     string
	Points          int64
	CreatedAt       time.Time
}

// Stats содержит показатели для панели пользователя.
type Stats struct {
	Points        int64  `json:"points"`
	Level         string `json:"level"`
	RankBucket    int    `json:"rank_bucket"`
	MonthlyPoints int64  `json:"monthly_points"`
}

// PointsNotification отправляется подписчикам после фиксации изменения баланса.
type PointsNotification struct {
	EventID    int64     `json:"event_id"`
	UserID     int64     `json:"user_id"`
	Amount     int64     `json:"amount"`
	Kind       EventKind `json:"kind"`
	Reference  *string   `json:"reference,omitempty"`
	Reversed   bool      `json:"reversed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Reconciliation сравнивает кэшированный баланс с суммой по журналу.
type Reconciliation struct {
	UserID      int64 `json:"user_id"`
	Cached      int64 `json:"cached"`
	FromHistory int64 `json:"from_history"`
	Consistent  bool  `json:"consistent"`
}

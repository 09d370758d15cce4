// Package handler содержит HTTP-обработчики API клубного сервиса баллов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/triclub-points/internal/middleware"
	"github.com/mmeshcher/triclub-points/internal/model"
	"github.com/mmeshcher/triclub-points/internal/repository"
	"github.com/mmeshcher/triclub-points/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, reg service.RegisterInput) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	ValidateInvitation(ctx context.Context, code string, now time.Time) (*model.InvitationSummary, error)

	Stats(ctx context.Context, userID int64) (*model.Stats, error)
	GetHistory(ctx context.Context, userID int64, window model.HistoryWindow) ([]model.PointEvent, error)
	MonthWindow() model.HistoryWindow
	RecordWorkout(ctx context.Context, userID int64, in service.WorkoutInput) (*model.Workout, error)
	GetWorkouts(ctx context.Context, userID int64) ([]model.Workout, error)

	AdjustPoints(ctx context.Context, adminID, userID, amount int64, kind model.EventKind, description string) (*model.PointEvent, error)
	ListUsers(ctx context.Context, f repository.UserFilter) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) error
	Reconcile(ctx context.Context, userID int64) (*model.Reconciliation, error)
	DeleteWorkout(ctx context.Context, workoutID int64) (*model.PointEvent, error)
	CreateInvitation(ctx context.Context, senderID int64, in service.InvitationInput) (*model.Invitation, error)
	ListInvitations(ctx context.Context, f repository.InvitationFilter) ([]model.Invitation, error)
	DisableInvitation(ctx context.Context, code string) error
	ResetInvitations(ctx context.Context) (int64, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
	now            func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		now:            time.Now,
	}
}

var errBadRequest = errors.New("bad request")

// decodeJSON читает тело запроса в dst и проверяет теги validate.
func (h *Handler) decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// statusFor сопоставляет ошибку бизнес-логики HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidKind),
		errors.Is(err, service.ErrInvalidWorkout),
		errors.Is(err, service.ErrInvalidInvitation),
		errors.Is(err, repository.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrCodeDisabled):
		return http.StatusForbidden
	case errors.Is(err, service.ErrCodeExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrCodeNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrWorkoutNotFound),
		errors.Is(err, repository.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrInvitationExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail отвечает статусом, соответствующим ошибке. Непредвиденные ошибки логируются.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		fields = append(fields,
			zap.Error(err),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		h.logger.Error(op+" error", fields...)
	}
	http.Error(w, http.StatusText(status), status)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

type eventResponse struct {
	ID          int64   `json:"id"`
	Amount      int64   `json:"amount"`
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Reference   *string `json:"reference,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func newEventResponse(e model.PointEvent) eventResponse {
	return eventResponse{
		ID:          e.ID,
		Amount:      e.Amount,
		Kind:        string(e.Kind),
		Description: e.Description,
		Reference:   e.Reference,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

type workoutResponse struct {
	ID              int64   `json:"id"`
	Sport           string  `json:"sport"`
	DurationMinutes int     `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
	Description     string  `json:"description"`
	Points          int64   `json:"points"`
	CreatedAt       string  `json:"created_at"`
}

func newWorkoutResponse(w model.Workout) workoutResponse {
	return workoutResponse{
		ID:              w.ID,
		Sport:           string(w.Sport),
		DurationMinutes: w.DurationMinutes,
		DistanceKm:      w.DistanceKm,
		Description:     w.Description,
		Points:          w.Points,
		CreatedAt:       w.CreatedAt.Format(time.RFC3339),
	}
}

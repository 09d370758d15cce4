package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/triclub-points/internal/middleware"
	"github.com/mmeshcher/triclub-points/internal/model"
	"github.com/mmeshcher/triclub-points/internal/service"
)

type registerRequest struct {
	Login       string `json:"login" validate:"required,min=3,max=64"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	DisplayName string `json:"displayName" validate:"required,max=100"`
	Club        string `json:"club" validate:"max=100"`
	InviteCode  string `json:"inviteCode" validate:"required"`
}

// Register регистрирует участника по коду приглашения и сразу авторизует его.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.fail(w, r, "register user", err)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		Login:       req.Login,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Club:        req.Club,
		InviteCode:  req.InviteCode,
	})
	if err != nil {
		h.fail(w, r, "register user", err, zap.String("login", req.Login))
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Identity{UserID: userID, Role: model.RoleMember})
	w.WriteHeader(http.StatusOK)
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.fail(w, r, "login user", err)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.fail(w, r, "login user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Identity{UserID: u.ID, Role: u.Role})
	w.WriteHeader(http.StatusOK)
}

// CheckInvitation проверяет код приглашения без его погашения.
func (h *Handler) CheckInvitation(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ValidateInvitation(r.Context(), chi.URLParam(r, "code"), h.now())
	if err != nil {
		h.fail(w, r, "check invitation", err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// GetStats возвращает показатели текущего пользователя.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, "get stats", err, zap.Int64("userID", id.UserID))
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// GetHistory возвращает историю начислений текущего пользователя, новые первыми.
// Параметр window принимает значения all (по умолчанию) и month.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var window model.HistoryWindow
	switch v := r.URL.Query().Get("window"); v {
	case "", "all":
	case "month":
		window = h.service.MonthWindow()
	default:
		h.fail(w, r, "get history", fmt.Errorf("%w: unknown window %q", errBadRequest, v))
		return
	}

	events, err := h.service.GetHistory(r.Context(), id.UserID, window)
	if err != nil {
		h.fail(w, r, "get history", err, zap.Int64("userID", id.UserID))
		return
	}

	if len(events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, newEventResponse(e))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type workoutRequest struct {
	Sport           string  `json:"sport" validate:"required,oneof=SWIM BIKE RUN BRICK STRENGTH OTHER"`
	DurationMinutes int     `json:"durationMinutes" validate:"required,min=1,max=1440"`
	DistanceKm      float64 `json:"distanceKm" validate:"gte=0"`
	Description     string  `json:"description" validate:"max=500"`
}

// CreateWorkout записывает тренировку текущего пользователя и начисляет за неё баллы.
func (h *Handler) CreateWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req workoutRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.fail(w, r, "create workout", err)
		return
	}

	workout, err := h.service.RecordWorkout(r.Context(), id.UserID, service.WorkoutInput{
		Sport:           model.Sport(req.Sport),
		DurationMinutes: req.DurationMinutes,
		DistanceKm:      req.DistanceKm,
		Description:     req.Description,
	})
	if err != nil {
		h.fail(w, r, "create workout", err, zap.Int64("userID", id.UserID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newWorkoutResponse(*workout))
}

// GetWorkouts возвращает тренировки текущего пользователя.
func (h *Handler) GetWorkouts(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	workouts, err := h.service.GetWorkouts(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, "get workouts", err, zap.Int64("userID", id.UserID))
		return
	}

	if len(workouts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]workoutResponse, 0, len(workouts))
	for _, wo := range workouts {
		resp = append(resp, newWorkoutResponse(wo))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

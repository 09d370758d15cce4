package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/triclub-points/internal/model"
	"github.com/mmeshcher/triclub-points/internal/repository"
	"github.com/mmeshcher/triclub-points/internal/service"
)

type adjustRequest struct {
	Amount      int64  `json:"amount" validate:"required"`
	Kind        string `json:"kind" validate:"omitempty,oneof=ADMIN_ADJUST BONUS CHALLENGE"`
	Description string `json:"description" validate:"required,max=500"`
}

// AdjustPoints начисляет или списывает баллы пользователю вручную.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	admin, ok := identity(w, r)
	if !ok {
		return
	}

	userID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "adjust points", err)
		return
	}

	var req adjustRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.fail(w, r, "adjust points", err)
		return
	}

	ev, err := h.service.AdjustPoints(r.Context(), admin.UserID, userID, req.Amount, model.EventKind(req.Kind), req.Description)
	if err != nil {
		h.fail(w, r, "adjust points", err, zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newEventResponse(*ev))
}

type userResponse struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Club        string `json:"club"`
	Role        string `json:"role"`
	Points      int64  `json:"points"`
	CreatedAt   string `json:"created_at"`
}

// ListUsers возвращает пользователей по убыванию баланса.
// Параметры: club, minPoints, limit.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f repository.UserFilter
	if v := q.Get("club"); v != "" {
		f.Club = &v
	}
	if v := q.Get("minPoints"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.fail(w, r, "list users", fmt.Errorf("%w: minPoints: %w", errBadRequest, err))
			return
		}
		f.MinPoints = &n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.fail(w, r, "list users", fmt.Errorf("%w: limit: %w", errBadRequest, err))
			return
		}
		f.Limit = n
	}

	users, err := h.service.ListUsers(r.Context(), f)
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{
			ID:          u.ID,
			Login:       u.Login,
			DisplayName: u.DisplayName,
			Club:        u.Club,
			Role:        string(u.Role),
			Points:      u.Points,
			CreatedAt:   u.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteUser удаляет пользователя.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "delete user", err)
		return
	}

	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		h.fail(w, r, "delete user", err, zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReconcileUser сверяет кэшированный баланс пользователя с журналом.
func (h *Handler) ReconcileUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "reconcile user", err)
		return
	}

	rec, err := h.service.Reconcile(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "reconcile user", err, zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// DeleteWorkout удаляет тренировку и отменяет начисленные за неё баллы.
func (h *Handler) DeleteWorkout(w http.ResponseWriter, r *http.Request) {
	workoutID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "delete workout", err)
		return
	}

	ev, err := h.service.DeleteWorkout(r.Context(), workoutID)
	if err != nil {
		h.fail(w, r, "delete workout", err, zap.Int64("workoutID", workoutID))
		return
	}

	if ev == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, newEventResponse(*ev))
}

type invitationRequest struct {
	Code      string     `json:"code" validate:"omitempty,min=4,max=32"`
	Message   string     `json:"message" validate:"max=500"`
	ExpiresAt *time.Time `json:"expiresAt"`
	MaxUses   int        `json:"maxUses" validate:"gte=0"`
}

type invitationResponse struct {
	Code        string `json:"code"`
	SenderID    int64  `json:"sender_id,omitempty"`
	Message     string `json:"message"`
	ExpiresAt   string `json:"expires_at"`
	MaxUses     int    `json:"max_uses"`
	CurrentUses int    `json:"current_uses"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

func newInvitationResponse(inv model.Invitation) invitationResponse {
	return invitationResponse{
		Code:        inv.Code,
		SenderID:    inv.SenderID,
		Message:     inv.Message,
		ExpiresAt:   inv.ExpiresAt.Format(time.RFC3339),
		MaxUses:     inv.MaxUses,
		CurrentUses: inv.CurrentUses,
		Status:      string(inv.Status),
		CreatedAt:   inv.CreatedAt.Format(time.RFC3339),
	}
}

// CreateInvitation создаёт приглашение от имени администратора.
func (h *Handler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	admin, ok := identity(w, r)
	if !ok {
		return
	}

	var req invitationRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.fail(w, r, "create invitation", err)
		return
	}

	in := service.InvitationInput{
		Code:    req.Code,
		Message: req.Message,
		MaxUses: req.MaxUses,
	}
	if req.ExpiresAt != nil {
		in.ExpiresAt = *req.ExpiresAt
	}

	inv, err := h.service.CreateInvitation(r.Context(), admin.UserID, in)
	if err != nil {
		h.fail(w, r, "create invitation", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newInvitationResponse(*inv))
}

// ListInvitations возвращает приглашения. Параметры: status, senderId, includeExpired.
func (h *Handler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f repository.InvitationFilter
	if v := q.Get("status"); v != "" {
		status := model.InvitationStatus(v)
		f.Status = &status
	}
	if v := q.Get("senderId"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.fail(w, r, "list invitations", fmt.Errorf("%w: senderId: %w", errBadRequest, err))
			return
		}
		f.SenderID = &n
	}
	if v := q.Get("includeExpired"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, "list invitations", fmt.Errorf("%w: includeExpired: %w", errBadRequest, err))
			return
		}
		f.IncludeExpired = b
	}

	invitations, err := h.service.ListInvitations(r.Context(), f)
	if err != nil {
		h.fail(w, r, "list invitations", err)
		return
	}

	resp := make([]invitationResponse, 0, len(invitations))
	for _, inv := range invitations {
		resp = append(resp, newInvitationResponse(inv))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DisableInvitation отключает код приглашения.
func (h *Handler) DisableInvitation(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.service.DisableInvitation(r.Context(), code); err != nil {
		h.fail(w, r, "disable invitation", err, zap.String("code", code))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResetInvitations удаляет все приглашения.
func (h *Handler) ResetInvitations(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ResetInvitations(r.Context())
	if err != nil {
		h.fail(w, r, "reset invitations", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

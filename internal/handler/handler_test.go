package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/triclub-points/internal/middleware"
	"github.com/mmeshcher/triclub-points/internal/model"
	"github.com/mmeshcher/triclub-points/internal/repository"
	"github.com/mmeshcher/triclub-points/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error
	registerInput  service.RegisterInput

	authUser *model.User
	authErr  error

	summary     *model.InvitationSummary
	validateErr error
	checkedCode string

	stats *model.Stats

	history       []model.PointEvent
	historyWindow model.HistoryWindow
	monthWindow   model.HistoryWindow

	workout      *model.Workout
	workoutErr   error
	workoutInput service.WorkoutInput
	workouts     []model.Workout

	adjustEvent *model.PointEvent
	adjustErr   error
	adjustAdmin int64
	adjustUser  int64
	adjustKind  model.EventKind

	userFilter repository.UserFilter
	users      []model.User

	deleteWorkoutEvent *model.PointEvent
	deleteWorkoutErr   error

	invitation      *model.Invitation
	invitationInput service.InvitationInput
	invitationFrom  int64

	invitationFilter repository.InvitationFilter
	disableErr       error
}

func (s *stubService) RegisterUser(ctx context.Context, reg service.RegisterInput) (int64, error) {
	s.registerInput = reg
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) ValidateInvitation(ctx context.Context, code string, now time.Time) (*model.InvitationSummary, error) {
	s.checkedCode = code
	return s.summary, s.validateErr
}

func (s *stubService) Stats(ctx context.Context, userID int64) (*model.Stats, error) {
	return s.stats, nil
}

func (s *stubService) GetHistory(ctx context.Context, userID int64, window model.HistoryWindow) ([]model.PointEvent, error) {
	s.historyWindow = window
	return s.history, nil
}

func (s *stubService) MonthWindow() model.HistoryWindow {
	return s.monthWindow
}

func (s *stubService) RecordWorkout(ctx context.Context, userID int64, in service.WorkoutInput) (*model.Workout, error) {
	s.workoutInput = in
	return s.workout, s.workoutErr
}

func (s *stubService) GetWorkouts(ctx context.Context, userID int64) ([]model.Workout, error) {
	return s.workouts, nil
}

func (s *stubService) AdjustPoints(ctx context.Context, adminID, userID, amount int64, kind model.EventKind, description string) (*model.PointEvent, error) {
	s.adjustAdmin, s.adjustUser, s.adjustKind = adminID, userID, kind
	return s.adjustEvent, s.adjustErr
}

func (s *stubService) ListUsers(ctx context.Context, f repository.UserFilter) ([]model.User, error) {
	s.userFilter = f
	return s.users, nil
}

func (s *stubService) DeleteUser(ctx context.Context, id int64) error { return nil }

func (s *stubService) Reconcile(ctx context.Context, userID int64) (*model.Reconciliation, error) {
	return &model.Reconciliation{UserID: userID, Consistent: true}, nil
}

func (s *stubService) DeleteWorkout(ctx context.Context, workoutID int64) (*model.PointEvent, error) {
	return s.deleteWorkoutEvent, s.deleteWorkoutErr
}

func (s *stubService) CreateInvitation(ctx context.Context, senderID int64, in service.InvitationInput) (*model.Invitation, error) {
	s.invitationFrom, s.invitationInput = senderID, in
	return s.invitation, nil
}

func (s *stubService) ListInvitations(ctx context.Context, f repository.InvitationFilter) ([]model.Invitation, error) {
	s.invitationFilter = f
	return nil, nil
}

func (s *stubService) DisableInvitation(ctx context.Context, code string) error { return s.disableErr }

func (s *stubService) ResetInvitations(ctx context.Context) (int64, error) { return 3, nil }

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret")
	return NewHandler(svc, zap.NewNop(), auth)
}

// do выполняет запрос через полный роутер от имени указанного пользователя.
func do(t *testing.T, h *Handler, method, target string, body any, as *middleware.Identity) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	if as != nil {
		rec := httptest.NewRecorder()
		h.authMiddleware.SetAuthCookie(rec, *as)
		req.AddCookie(rec.Result().Cookies()[0])
	}

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec.Result()
}

var (
	asMember = &middleware.Identity{UserID: 1, Role: model.RoleMember}
	asAdmin  = &middleware.Identity{UserID: 99, Role: model.RoleAdmin}
)

func validRegistration() registerRequest {
	return registerRequest{
		Login:       "rookie",
		Password:    "secret-pw",
		DisplayName: "Rookie",
		Club:        "Harbour Tri",
		InviteCode:  "triclub2024",
	}
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{registerUserID: 42}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodPost, "/api/user/register", validRegistration(), nil)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie must be set")
	}
	if svc.registerInput.InviteCode != "triclub2024" {
		t.Fatalf("invite code = %q", svc.registerInput.InviteCode)
	}
}

func TestRegister_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "login taken", err: repository.ErrUserExists, want: http.StatusConflict},
		{name: "unknown code", err: service.ErrCodeNotFound, want: http.StatusNotFound},
		{name: "disabled code", err: service.ErrCodeDisabled, want: http.StatusForbidden},
		{name: "expired code", err: service.ErrCodeExpired, want: http.StatusGone},
		{name: "storage failure", err: repository.ErrTransactionAborted, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{registerErr: tt.err})

			res := do(t, h, http.MethodPost, "/api/user/register", validRegistration(), nil)
			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
		})
	}
}

func TestRegister_BadRequest(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	short := validRegistration()
	short.Password = "123"
	noCode := validRegistration()
	noCode.InviteCode = ""

	for _, body := range []any{short, noCode, "not an object"} {
		res := do(t, h, http.MethodPost, "/api/user/register", body, nil)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %+v: status = %d, want %d", body, res.StatusCode, http.StatusBadRequest)
		}
	}
}

func TestLogin(t *testing.T) {
	svc := &stubService{authUser: &model.User{ID: 5, Role: model.RoleAdmin}}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodPost, "/api/user/login", credentialsRequest{Login: "coach", Password: "pw"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	// Выданный cookie открывает админские маршруты.
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.AddCookie(res.Cookies()[0])
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin route status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestLogin_UnauthorizedOnInvalidCredentials(t *testing.T) {
	h := newTestHandler(t, &stubService{authErr: service.ErrInvalidCredentials})

	res := do(t, h, http.MethodPost, "/api/user/login", credentialsRequest{Login: "user", Password: "pass"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestCheckInvitation(t *testing.T) {
	svc := &stubService{summary: &model.InvitationSummary{Code: "TRICLUB2024", SenderName: "Coach", MaxUses: 1, CurrentUses: 50}}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodGet, "/api/invitations/triclub2024", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.checkedCode != "triclub2024" {
		t.Fatalf("checked code = %q", svc.checkedCode)
	}

	var got model.InvitationSummary
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SenderName != "Coach" || got.CurrentUses != 50 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestGetStats(t *testing.T) {
	svc := &stubService{stats: &model.Stats{Points: 700, Level: "Beginner", RankBucket: 4, MonthlyPoints: 120}}
	h := newTestHandler(t, svc)

	if res := do(t, h, http.MethodGet, "/api/user/stats", nil, nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}

	res := do(t, h, http.MethodGet, "/api/user/stats", nil, asMember)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got map[string]any
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["level"] != "Beginner" || got["rank_bucket"] != float64(4) || got["monthly_points"] != float64(120) {
		t.Fatalf("unexpected stats: %v", got)
	}
}

func TestGetHistory(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubService{monthWindow: model.HistoryWindow{From: &from}}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodGet, "/api/user/points/history", nil, asMember)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}

	ref := model.WorkoutReference(3)
	svc.history = []model.PointEvent{{ID: 2, Amount: 75, Kind: model.EventKindWorkout, Reference: &ref}}
	res = do(t, h, http.MethodGet, "/api/user/points/history?window=month", nil, asMember)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.historyWindow.From == nil || !svc.historyWindow.From.Equal(from) {
		t.Fatalf("month window not applied: %+v", svc.historyWindow)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	res = do(t, h, http.MethodGet, "/api/user/points/history?window=year", nil, asMember)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCreateWorkout(t *testing.T) {
	svc := &stubService{workout: &model.Workout{ID: 3, Sport: model.SportRun, DurationMinutes: 50, Points: 75}}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodPost, "/api/user/workouts", workoutRequest{Sport: "RUN", DurationMinutes: 50, DistanceKm: 10}, asMember)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	if svc.workoutInput.Sport != model.SportRun || svc.workoutInput.DurationMinutes != 50 {
		t.Fatalf("unexpected input: %+v", svc.workoutInput)
	}

	for _, body := range []workoutRequest{
		{Sport: "YOGA", DurationMinutes: 50},
		{Sport: "RUN", DurationMinutes: 0},
		{Sport: "RUN", DurationMinutes: 2000},
		{Sport: "RUN", DurationMinutes: 30, DistanceKm: -5},
	} {
		res := do(t, h, http.MethodPost, "/api/user/workouts", body, asMember)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %+v: status = %d, want %d", body, res.StatusCode, http.StatusBadRequest)
		}
	}
}

func TestGetWorkouts_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := do(t, h, http.MethodGet, "/api/user/workouts", nil, asMember)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := do(t, h, http.MethodDelete, "/api/admin/invitations", nil, asMember)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	res = do(t, h, http.MethodDelete, "/api/admin/invitations", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}

	res = do(t, h, http.MethodDelete, "/api/admin/invitations", nil, asAdmin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestAdjustPoints(t *testing.T) {
	svc := &stubService{adjustEvent: &model.PointEvent{ID: 8, UserID: 7, Amount: -30, Kind: model.EventKindAdminAdjust}}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodPost, "/api/admin/users/7/points", adjustRequest{Amount: -30, Description: "duplicate entry"}, asAdmin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	if svc.adjustAdmin != 99 || svc.adjustUser != 7 || svc.adjustKind != "" {
		t.Fatalf("unexpected call: admin=%d user=%d kind=%q", svc.adjustAdmin, svc.adjustUser, svc.adjustKind)
	}

	tests := []struct {
		name   string
		target string
		body   adjustRequest
		err    error
		want   int
	}{
		{name: "zero amount", target: "/api/admin/users/7/points", body: adjustRequest{Amount: 0, Description: "x"}, want: http.StatusBadRequest},
		{name: "invite kind", target: "/api/admin/users/7/points", body: adjustRequest{Amount: 5, Kind: "INVITE", Description: "x"}, want: http.StatusBadRequest},
		{name: "bad id", target: "/api/admin/users/abc/points", body: adjustRequest{Amount: 5, Description: "x"}, want: http.StatusBadRequest},
		{name: "unknown user", target: "/api/admin/users/404/points", body: adjustRequest{Amount: 5, Description: "x"}, err: repository.ErrUserNotFound, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.adjustErr = tt.err
			res := do(t, h, http.MethodPost, tt.target, tt.body, asAdmin)
			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
		})
	}
}

func TestListUsers_Filter(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodGet, "/api/admin/users?club=Harbour&minPoints=1500&limit=10", nil, asAdmin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	f := svc.userFilter
	if f.Club == nil || *f.Club != "Harbour" || f.MinPoints == nil || *f.MinPoints != 1500 || f.Limit != 10 {
		t.Fatalf("unexpected filter: %+v", f)
	}

	res = do(t, h, http.MethodGet, "/api/admin/users?minPoints=lots", nil, asAdmin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestDeleteWorkout(t *testing.T) {
	svc := &stubService{deleteWorkoutEvent: &model.PointEvent{ID: 4, Amount: 75, Kind: model.EventKindWorkout}}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodDelete, "/api/admin/workouts/3", nil, asAdmin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got eventResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Amount != 75 {
		t.Fatalf("reversed amount = %d, want 75", got.Amount)
	}

	svc.deleteWorkoutEvent, svc.deleteWorkoutErr = nil, repository.ErrWorkoutNotFound
	res = do(t, h, http.MethodDelete, "/api/admin/workouts/3", nil, asAdmin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestCreateInvitation(t *testing.T) {
	expires := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubService{invitation: &model.Invitation{Code: "SPRING-CAMP", SenderID: 99, ExpiresAt: expires, MaxUses: 10, Status: model.InvitationStatusPending}}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodPost, "/api/admin/invitations", invitationRequest{Code: "spring-camp", ExpiresAt: &expires, MaxUses: 10}, asAdmin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	if svc.invitationFrom != 99 || !svc.invitationInput.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected call: from=%d input=%+v", svc.invitationFrom, svc.invitationInput)
	}
}

func TestListInvitations_Filter(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	res := do(t, h, http.MethodGet, "/api/admin/invitations?status=DISABLED&senderId=99&includeExpired=true", nil, asAdmin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	f := svc.invitationFilter
	if f.Status == nil || *f.Status != model.InvitationStatusDisabled || f.SenderID == nil || *f.SenderID != 99 || !f.IncludeExpired {
		t.Fatalf("unexpected filter: %+v", f)
	}

	res = do(t, h, http.MethodGet, "/api/admin/invitations?includeExpired=maybe", nil, asAdmin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestDisableInvitation_NotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{disableErr: service.ErrCodeNotFound})

	res := do(t, h, http.MethodPost, "/api/admin/invitations/NOPE-CODE/disable", nil, asAdmin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/triclub-points/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/api/invitations/{code}", h.CheckInvitation)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/stats", h.GetStats)
			r.Get("/points/history", h.GetHistory)

			r.Post("/workouts", h.CreateWorkout)
			r.Get("/workouts", h.GetWorkouts)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(custommiddleware.RequireAdmin)

		r.Get("/users", h.ListUsers)
		r.Delete("/users/{id}", h.DeleteUser)
		r.Post("/users/{id}/points", h.AdjustPoints)
		r.Get("/users/{id}/reconcile", h.ReconcileUser)

		r.Delete("/workouts/{id}", h.DeleteWorkout)

		r.Post("/invitations", h.CreateInvitation)
		r.Get("/invitations", h.ListInvitations)
		r.Post("/invitations/{code}/disable", h.DisableInvitation)
		r.Delete("/invitations", h.ResetInvitations)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rosterly/rosterly-backend/pkg/actor"
	"github.com/rosterly/rosterly-backend/pkg/httputil"
)

// Routes mounts the scheduling endpoints. verifier authenticates every
// request; limit, when non-nil, guards the state-changing ones.
func (h *SchedulingHandler) Routes(verifier httputil.TokenVerifier, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(httputil.Authenticate(verifier))

	guarded := func(r chi.Router) chi.Router {
		if limit == nil {
			return r
		}
		return r.With(limit)
	}

	r.Group(func(r chi.Router) {
		r.Use(httputil.RequireRole(actor.RoleEmployee))
		guarded(r).Post("/assignments/{id}/release", h.Release)
		guarded(r).Post("/assignments/{id}/claim", h.Claim)
		r.Get("/hours/check", h.CheckHours)
	})

	r.Group(func(r chi.Router) {
		r.Use(httputil.RequireRole(actor.RoleManager))
		r.Post("/assignments/{id}/cancel", h.Cancel)
		r.Post("/shifts/{id}/assignments", h.CreateAssignment)
		guarded(r).Post("/schedule/run", h.RunSchedule)
		r.Get("/hours/monthly", h.MonthlyLoad)
		r.Get("/shifts/{id}/fill-status", h.GetFillStatus)
		r.Post("/shifts/{id}/fill-status", h.RecomputeFillStatus)
		r.Post("/shifts/fill-status", h.RecomputeAllFillStatus)
	})

	r.With(httputil.RequireRole(actor.RoleEmployee, actor.RoleManager)).Get("/hours/weekly", h.WeeklyHours)

	return r
}

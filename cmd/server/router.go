package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"admissions/internal/admin"
	admissionhandler "admissions/internal/admission/handler"
	"admissions/internal/app"
	identityhandler "admissions/internal/identity/handler"
	identitymodels "admissions/internal/identity/models"
	paymenthandler "admissions/internal/payment/handler"
	"admissions/internal/platform/metrics"
	"admissions/pkg/platform/httputil"
	authmw "admissions/pkg/platform/middleware/auth"
	"admissions/pkg/platform/middleware/metadata"
	request "admissions/pkg/platform/middleware/request"
	"admissions/pkg/platform/middleware/requesttime"

	dErrors "admissions/pkg/domain-errors"
)

const requestTimeout = 30 * time.Second

func newRouter(a *app.App) http.Handler {
	log := a.Logger
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(metrics.LatencyMiddleware(a.HTTP))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := a.Health(req.Context()); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUpstream, "dependency unavailable"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	if a.Simulator != nil {
		r.Mount(app.SimulatorPrefix, a.Simulator.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(requestTimeout))
		identityhandler.New(a.Identity, log).Register(r)

		// Course browsing is public.
		admissions := admissionhandler.New(a.Admission, log)
		payments := paymenthandler.New(a.Payments, log)
		admissions.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(a.Tokens.Middleware(), log))

			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireRole(log, string(identitymodels.RoleStudent)))
				admissions.Register(r)
				payments.Register(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireRole(log, string(identitymodels.RoleStudent), string(identitymodels.RoleAdmin)))
				payments.RegisterReceipts(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireRole(log, string(identitymodels.RoleAdmin)))
				admin.New(a.Audit, log).Register(r)
			})
		})
	})
	return r
}

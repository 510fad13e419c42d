package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"youthexchange/internal/delivery/http/controllers"
	"youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/delivery/http/middleware"
	"youthexchange/internal/domain"
	"youthexchange/internal/metrics"
)

// Controllers groups the handlers mounted by NewRouter.
type Controllers struct {
	Auth          *controllers.AuthController
	Events        *controllers.EventController
	Registrants   *controllers.RegistrantController
	Registrations *controllers.RegistrationController
	Invites       *controllers.InviteController
	Guest         *controllers.GuestController
}

// RouterConfig holds the cross-cutting pieces of the HTTP surface.
type RouterConfig struct {
	Logger        *slog.Logger
	Authenticator middleware.Authenticator
	Metrics       *metrics.Metrics
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	// HealthCheck reports whether the store is reachable; nil always reports healthy.
	HealthCheck func(ctx context.Context) error
}

// NewRouter initializes the HTTP router with all application routes, wrapped in request logging
// and CORS.
func NewRouter(c Controllers, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(cfg.Authenticator, cfg.Logger)
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return auth(middleware.RequireRole(domain.RoleCodeAdmin)(next))
	}

	// Auth
	mux.HandleFunc("POST /auth/login", c.Auth.Login)
	mux.HandleFunc("POST /auth/logout", auth(c.Auth.Logout))

	// Events
	mux.HandleFunc("POST /admin/events", admin(c.Events.CreateEvent))
	mux.HandleFunc("GET /admin/events", admin(c.Events.ListEvents))
	mux.HandleFunc("GET /admin/events/{eventID}", admin(c.Events.GetEvent))
	mux.HandleFunc("PUT /admin/events/{eventID}", admin(c.Events.UpdateEvent))
	mux.HandleFunc("DELETE /admin/events/{eventID}", admin(c.Events.DeleteEvent))
	mux.HandleFunc("GET /admin/events/{eventID}/pricing", admin(c.Events.GetPricing))

	// Registrants
	mux.HandleFunc("POST /admin/registrants", admin(c.Registrants.CreateRegistrant))
	mux.HandleFunc("GET /admin/registrants", admin(c.Registrants.ListRegistrants))
	mux.HandleFunc("GET /admin/registrants/{registrantID}", admin(c.Registrants.GetRegistrant))
	mux.HandleFunc("PATCH /admin/registrants/{registrantID}", admin(c.Registrants.UpdateRegistrant))

	// Registrations
	mux.HandleFunc("POST /admin/registrations", admin(c.Registrations.CreateRegistration))
	mux.HandleFunc("GET /admin/registrations", admin(c.Registrations.ListRegistrations))
	mux.HandleFunc("GET /admin/registrations/views", admin(c.Registrations.ListRegistrationViews))
	mux.HandleFunc("GET /admin/registrations/stream", admin(c.Registrations.StreamRegistrations))
	mux.HandleFunc("GET /admin/registrations/{registrationID}", admin(c.Registrations.GetRegistration))
	mux.HandleFunc("PATCH /admin/registrations/{registrationID}/status", admin(c.Registrations.UpdateStatus))
	mux.HandleFunc("DELETE /admin/registrations/{registrationID}", admin(c.Registrations.DeleteRegistration))

	// Invites
	mux.HandleFunc("POST /admin/invites", admin(c.Invites.IssueInvite))
	mux.HandleFunc("GET /admin/invites", admin(c.Invites.ListInvites))
	mux.HandleFunc("GET /admin/invites/stream", admin(c.Invites.StreamInvites))
	mux.HandleFunc("GET /admin/invites/{token}", admin(c.Invites.GetInvite))
	mux.HandleFunc("PATCH /admin/invites/{token}/status", admin(c.Invites.SetInviteStatus))

	// Guest
	mux.HandleFunc("GET /guest/invites/{token}", c.Guest.LookupInvite)
	mux.HandleFunc("POST /guest/invites/{token}/register", c.Guest.RegisterGuardian)
	mux.HandleFunc("POST /guest/invites/{token}/login", c.Guest.SignInGuardian)
	mux.HandleFunc("POST /guest/invites/{token}/claim", auth(c.Guest.ClaimInvite))
	mux.HandleFunc("PUT /guest/invites/{token}/form", auth(c.Guest.SubmitForm))
	mux.HandleFunc("GET /guest/registrations", auth(c.Guest.ListMyRegistrations))

	// Ops
	mux.HandleFunc("GET /healthz", healthz(cfg.HealthCheck))
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return middleware.CORS(cfg.CORSOrigins, middleware.LoggingMiddleware(cfg.Logger, cfg.Metrics, mux))
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				helpers.WriteJSONError(w, http.StatusServiceUnavailable, helpers.ErrCodeServiceUnavailable, "store unreachable")
				return
			}
		}
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

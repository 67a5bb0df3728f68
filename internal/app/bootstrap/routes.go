// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	authgooglefeature "github.com/dalemusser/impacthub/internal/app/features/authgoogle"
	contributionsfeature "github.com/dalemusser/impacthub/internal/app/features/contributions"
	errorsfeature "github.com/dalemusser/impacthub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/impacthub/internal/app/features/health"
	heartbeatfeature "github.com/dalemusser/impacthub/internal/app/features/heartbeat"
	homefeature "github.com/dalemusser/impacthub/internal/app/features/home"
	loginfeature "github.com/dalemusser/impacthub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/impacthub/internal/app/features/logout"
	notificationsfeature "github.com/dalemusser/impacthub/internal/app/features/notifications"
	profilefeature "github.com/dalemusser/impacthub/internal/app/features/profile"
	userinfofeature "github.com/dalemusser/impacthub/internal/app/features/userinfo"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed, so every service in deps.Services is ready.
//
// ImpactHub initializes the template engine and mounts the feature routers:
// sign-in and sign-out, the profile page, the merged user, the notification center, admin
// contribution decisions, callable functions, health and metrics.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services
	if svc == nil || svc.SessionMgr == nil {
		return nil, errors.New("build handler: services not started")
	}
	sm := svc.SessionMgr

	// Initialize and boot the template engine once at startup.
	// Dev mode enables template reloading for faster iteration.
	eng := templates.New(coreCfg != nil && coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	checks := map[string]healthfeature.Pinger{}
	if deps.MongoClient != nil {
		checks["mongo"] = healthfeature.MongoPinger(deps.MongoClient)
	}
	if deps.Redis != nil {
		checks["redis"] = healthfeature.RedisPinger(deps.Redis)
	}
	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(checks, logger)))

	r.Handle("/metrics", promhttp.HandlerFor(svc.Metrics, promhttp.HandlerOpts{}))

	// Static assets with pre-compressed file support (gzip/brotli)
	r.Handle("/static/*", fileserver.Handler("/static", "public"))

	// Public pages
	homeHandler := homefeature.NewHandler(sm, svc.Notify, logger)
	r.Mount("/", homefeature.Routes(homeHandler))

	// Authentication
	googleEnabled := appCfg.GoogleClientID != ""
	googleHandler := authgooglefeature.NewHandler(svc.Accounts, sm,
		appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL, logger)
	r.Mount("/login/google", authgooglefeature.Routes(googleHandler))

	loginHandler := loginfeature.NewHandler(svc.Accounts, sm, svc.Limiter, googleEnabled, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sm, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sm))

	profileHandler := profilefeature.NewHandler(svc.Accounts, svc.Store, logger)
	r.Mount("/profile", profilefeature.Routes(profileHandler, sm))

	userinfofeature.MountRoutes(r, userinfofeature.NewHandler(sm, logger), sm)

	heartbeatHandler := heartbeatfeature.NewHandler(sm, logger)
	r.Mount("/api/heartbeat", heartbeatfeature.Routes(heartbeatHandler, sm))

	// Error pages
	errorsHandler := errorsfeature.NewHandler()
	r.Get("/forbidden", errorsHandler.Forbidden)

	// Notification center
	notificationsHandler := notificationsfeature.NewHandler(svc.Notify, sm, logger)
	r.Mount("/notifications", notificationsfeature.Routes(notificationsHandler, sm))

	// Admin
	contributionsHandler := contributionsfeature.NewHandler(svc.Notify, logger)
	r.Mount("/admin/contributions", contributionsfeature.Routes(contributionsHandler, sm))

	// Callable functions (token-authenticated, not session-gated)
	if svc.Functions != nil {
		r.Mount("/functions", svc.Functions.Routes())
	}

	return r, nil
}

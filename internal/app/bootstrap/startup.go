// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/impacthub/internal/app/resources"
	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/docstore/mongostore"
	"github.com/dalemusser/impacthub/internal/app/system/functions"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"github.com/dalemusser/impacthub/internal/app/system/mailer"
	"github.com/dalemusser/impacthub/internal/app/system/metrics"
	"github.com/dalemusser/impacthub/internal/app/system/notify"
	"github.com/dalemusser/impacthub/internal/app/system/ratelimit"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/dalemusser/impacthub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Services are the long-lived application objects shared by handlers.
type Services struct {
	Store      docstore.Store
	Provider   identity.Provider
	Engines    *auth.Registry
	SessionMgr *auth.SessionManager
	Accounts   *identity.Accounts
	Notify     *notify.Service
	Functions  *functions.Server
	Mailer     *mailer.Mailer
	Limiter    *ratelimit.LoginLimiter
	Sweep      *workers.EngineSweep
	Metrics    *prometheus.Registry
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It
// builds the store, identity provider and session engines, registers the
// callable functions, and starts the idle engine sweep.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Services == nil {
		return errors.New("startup: DBDeps has no Services")
	}
	svc := deps.Services

	resources.LoadSharedTemplates()

	timeouts.Configure(timeouts.Config{
		Ping:     appCfg.TimeoutPing,
		Short:    appCfg.TimeoutShort,
		Medium:   appCfg.TimeoutMedium,
		Long:     appCfg.TimeoutLong,
		Gate:     appCfg.TimeoutGate,
		Delivery: appCfg.TimeoutDelivery,
	})

	if deps.MongoDatabase != nil {
		svc.Store = mongostore.New(deps.MongoClient, deps.MongoDatabase, logger)
	} else {
		logger.Warn("using in-memory document store; data is lost on restart")
		svc.Store = docstore.NewMemory()
	}

	if deps.Redis != nil {
		svc.Provider = identity.NewRedis(deps.Redis, appCfg.IdentitySessionTTL, logger)
	} else {
		logger.Warn("using in-memory identity provider; sign-ins are lost on restart")
		svc.Provider = identity.NewMemory()
	}

	svc.Engines = auth.NewRegistry(svc.Provider, svc.Store, logger)

	secure := coreCfg != nil && coreCfg.Env == "prod"
	sm, err := auth.NewSessionManager(svc.Engines, appCfg.SessionKey, appCfg.SessionName,
		appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return err
	}
	svc.SessionMgr = sm

	svc.Accounts = identity.NewAccounts(svc.Store, logger)

	svc.Mailer = mailer.New(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	}, logger)

	// Delivery runs through the callable server, which the hub also hosts.
	// Without a shared secret it is off and notifications stay in-app.
	var invoker functions.Invoker
	if appCfg.FunctionsSecret != "" {
		svc.Functions = functions.NewServer(appCfg.FunctionsSecret, logger)
		svc.Functions.Register(notify.SendNotificationFunction,
			notify.SendNotificationHandler(svc.Accounts, svc.Mailer, appCfg.SiteName, appCfg.BaseURL, logger))
		invoker = functions.NewClient(appCfg.FunctionsBaseURL, appCfg.FunctionsSecret, nil, logger)
	} else {
		logger.Info("functions_secret not set; notification delivery disabled")
	}
	svc.Notify = notify.NewService(svc.Store, invoker, logger)

	svc.Limiter = ratelimit.NewLoginLimiter(appCfg.LoginRateLimit)

	svc.Metrics = prometheus.NewRegistry()
	svc.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.RegisterCollectors(svc.Metrics, svc.Engines.Len)

	svc.Sweep = workers.NewEngineSweep(svc.Engines, logger, appCfg.EngineSweepInterval, appCfg.EngineIdleTimeout)
	svc.Sweep.Start()

	if appCfg.AdminEmail != "" {
		if err := ensureAdmin(ctx, svc.Accounts, svc.Store, appCfg.AdminEmail, logger); err != nil {
			logger.Warn("admin promotion failed", zap.String("email", appCfg.AdminEmail), zap.Error(err))
		}
	}

	return nil
}

// ensureAdmin gives the account registered under email the admin role on
// its profile, creating the profile if needed. A missing account is
// reported; it is promoted on a later start once it exists.
func ensureAdmin(ctx context.Context, accounts *identity.Accounts, store docstore.Store, email string, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	acct, err := accounts.ByEmail(ctx, email)
	if errors.Is(err, docstore.ErrNotFound) {
		logger.Warn("admin account not registered yet", zap.String("email", email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find admin account: %w", err)
	}

	err = store.Update(ctx, authstate.ProfilesCollection, acct.ID, docstore.Doc{"role": "admin"})
	if errors.Is(err, docstore.ErrNotFound) {
		_, err = store.Write(ctx, authstate.ProfilesCollection, acct.ID, docstore.Doc{
			"role":         "admin",
			"display_name": acct.DisplayName,
		})
	}
	if err != nil {
		return fmt.Errorf("promote admin: %w", err)
	}
	logger.Info("admin role ensured", zap.String("user_id", acct.ID), zap.String("email", email))
	return nil
}

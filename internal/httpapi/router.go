// internal/httpapi/router.go
//
// HTTP surface of siteconf.
//
// Context
// -------
// One chi router serves the JSON API consumed by tenant sites and the
// editor.  Handlers are thin: they decode, call one engine component, and
// encode.  Every failure goes through writeErr so the response body never
// carries internal detail.
//
// Routes
// ------
//   GET  /api/config                 compose for the resolved tenant
//   POST /api/config                 save a bundle (session or bearer)
//   GET  /api/assets/*               single asset, ?v= pins the version
//   POST /api/auth/signup            create a user
//   POST /api/auth/login             open a session, set the cookie
//   POST /api/auth/logout            close the session, clear the cookie
//   GET  /api/auth/session           who am I
//   POST /api/auth/password/forgot   request a reset link
//   POST /api/auth/password/reset    complete a reset
//   GET  /healthz                    liveness
//   GET  /metrics                    Prometheus
//
// Notes
// -----
//   - /api/auth/* is rate limited per client IP when AuthRatePerMinute > 0.
//   - requestinfo enrichment runs on /api/auth/* only; it feeds the audit
//     log lines written by auth.Service.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/asset"
	"github.com/yanizio/siteconf/internal/content"
	"github.com/yanizio/siteconf/internal/meta"
	"github.com/yanizio/siteconf/internal/middleware"
	"github.com/yanizio/siteconf/internal/session"
	"github.com/yanizio/siteconf/internal/tenant"
)

/*──────────────────────────── collaborators ───────────────────────────────*/

// Identities is satisfied by *tenant.Resolver.
type Identities interface {
	ResolveRequest(r *http.Request) (tenant.Identity, error)
	Authenticate(ctx context.Context, token string) (*meta.User, error)
}

// Composer is satisfied by *content.Composer.
type Composer interface {
	Compose(ctx context.Context, tenantID string) (*content.Composition, error)
}

// Saver is satisfied by *content.Coordinator.
type Saver interface {
	Save(ctx context.Context, user *meta.User, tenantID string, b content.Bundle) (*content.SaveResult, error)
}

// Assets is satisfied by *asset.Resolver.
type Assets interface {
	Get(ctx context.Context, logicalPath, version string, id tenant.Identity) (*asset.Asset, error)
}

// Accounts is satisfied by *auth.Service.
type Accounts interface {
	Signup(ctx context.Context, email, password, code string) (*meta.User, error)
	Login(ctx context.Context, email, password string) (*meta.User, *meta.Session, error)
	Logout(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string)
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
}

// Deps wires the router.  Enrich may be nil.
type Deps struct {
	Identities Identities
	Composer   Composer
	Saver      Saver
	Assets     Assets
	Accounts   Accounts
	Cookies    session.Cookies
	Enrich     func(http.Handler) http.Handler

	CORSOrigins       []string
	AuthRatePerMinute int
	MaxBodyBytes      int64

	Log *zap.Logger
}

// DefaultMaxBodyBytes caps a save bundle, assets included.
const DefaultMaxBodyBytes = 32 << 20

// API holds the handlers.
type API struct {
	d   Deps
	log *zap.Logger
}

// NewRouter builds the full handler tree.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = DefaultMaxBodyBytes
	}
	a := &API{d: d, log: d.Log.Named("http")}

	allowed := origins(d.CORSOrigins)
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.AccessLog(a.log),
		chimw.Recoverer,
		middleware.Security,
		cors.Handler(cors.Options{
			AllowedOrigins:   allowed,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader, "ETag"},
			AllowCredentials: allowed[0] != "*",
			MaxAge:           300,
		}),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(a.identify).Get("/config", a.getConfig)
		r.With(a.requireUser).Post("/config", a.saveConfig)
		r.With(a.identify).Get("/assets/*", a.getAsset)

		r.Route("/auth", func(r chi.Router) {
			if d.AuthRatePerMinute > 0 {
				r.Use(httprate.Limit(d.AuthRatePerMinute, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(a.tooManyRequests),
				))
			}
			if d.Enrich != nil {
				r.Use(d.Enrich)
			}
			r.Post("/signup", a.signup)
			r.Post("/login", a.login)
			r.Post("/logout", a.logout)
			r.With(a.requireUser).Get("/session", a.currentSession)
			r.Post("/password/forgot", a.forgotPassword)
			r.Post("/password/reset", a.resetPassword)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Kind: "not_found", Message: "not found"}.envelope())
	})
	return r
}

// origins drops blanks.  An empty list becomes "*", which the router pairs
// with credentials off; that suits local development only.
func origins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

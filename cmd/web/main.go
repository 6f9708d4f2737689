// cmd/web/main.go
//
// siteconf HTTP entry point.
//
// Start-up
// --------
//
//  1. Console logger for the bootstrap phase.
//
//  2. Load configuration (defaults → conf/siteconf.yaml → SITECONF_* env →
//     vault: secrets) and start the daily rotating logger.
//
//  3. Open the metadata store (MySQL or Postgres via sqlx, or in-memory
//     for local runs) and the object store (MinIO/S3 or in-memory).
//
//  4. Build the engine: auth service, host cache + identity resolver,
//     composer, save coordinator, asset resolver.
//
//  5. Schedule the janitor that purges expired sessions and reset tokens.
//
//  6. Serve the chi router, wrapped with ForceHTTPS when configured, until
//     SIGINT or SIGTERM; then drain.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/asset"
	"github.com/yanizio/siteconf/internal/auth"
	"github.com/yanizio/siteconf/internal/config"
	"github.com/yanizio/siteconf/internal/content"
	"github.com/yanizio/siteconf/internal/database"
	"github.com/yanizio/siteconf/internal/httpapi"
	"github.com/yanizio/siteconf/internal/jobs"
	"github.com/yanizio/siteconf/internal/logger"
	"github.com/yanizio/siteconf/internal/mail"
	"github.com/yanizio/siteconf/internal/meta"
	"github.com/yanizio/siteconf/internal/middleware"
	"github.com/yanizio/siteconf/internal/objstore"
	"github.com/yanizio/siteconf/internal/requestinfo"
	"github.com/yanizio/siteconf/internal/server"
	"github.com/yanizio/siteconf/internal/session"
	"github.com/yanizio/siteconf/internal/tenant"
)

const shutdownGrace = 20 * time.Second

func main() {
	boot := logger.Bootstrap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		boot.Errorw("siteconf exited", "err", err)
		_ = zap.L().Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	sugar, err := logger.New(cfg.Paths.Root, logger.Options{Tee: logger.IsTTY() || cfg.HTTP.Dev})
	if err != nil {
		return err
	}
	defer func() { _ = sugar.Sync() }()
	log := sugar.Desugar()

	//
	// ── 1.  Stores ──────────────────────────────────────────────────────
	//
	store, closeStore, err := openMeta(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	objs, err := openObjects(ctx, cfg.ObjectStore, log)
	if err != nil {
		return err
	}

	//
	// ── 2.  Engine ──────────────────────────────────────────────────────
	//
	accounts := auth.NewService(store, newMailer(cfg.Mail, log), auth.Options{
		SessionTTL:    cfg.Auth.SessionTTL,
		ResetTTL:      cfg.Auth.ResetTTL,
		ResetLinkBase: cfg.Auth.ResetLinkBase,
		Policy:        auth.PolicyFor(cfg.Auth.InvitationMode),
	}, log)
	// Runs after the server drains so queued reset mail still goes out.
	defer accounts.Wait()

	hosts := tenant.NewHostCache(store, tenant.CacheOptions{
		TTL:        cfg.Auth.HostCacheTTL,
		MaxEntries: cfg.Auth.HostCacheSize,
	}, log)
	go hosts.Run()
	defer hosts.Close()

	cookies := session.Cookies{Name: cfg.Auth.CookieName, Insecure: cfg.HTTP.Dev}
	identities := tenant.NewResolver(accounts, hosts, tenant.ResolverOptions{
		Cookies:        cookies,
		LocalhostAlias: cfg.HTTP.LocalhostAlias,
	}, log)

	enricher, err := requestinfo.New(cfg.GeoIP.Path)
	if err != nil {
		// Geo data is optional; keep serving with UA-only enrichment.
		log.Warn("geoip disabled", zap.Error(err))
		enricher, _ = requestinfo.New("")
	}
	defer func() { _ = enricher.Close() }()

	//
	// ── 3.  Janitor ─────────────────────────────────────────────────────
	//
	if cfg.Auth.JanitorInterval > 0 {
		janitor, err := jobs.NewJanitor(accounts, cfg.Auth.JanitorInterval, log)
		if err != nil {
			return err
		}
		janitor.Start()
		defer func() { _ = janitor.Stop() }()
	}

	//
	// ── 4.  HTTP ────────────────────────────────────────────────────────
	//
	var handler http.Handler = httpapi.NewRouter(httpapi.Deps{
		Identities:        identities,
		Composer:          content.NewComposer(objs, log),
		Saver:             content.NewCoordinator(objs, log),
		Assets:            asset.NewResolver(objs, log),
		Accounts:          accounts,
		Cookies:           cookies,
		Enrich:            enricher.Middleware,
		CORSOrigins:       cfg.CORS.Origins,
		AuthRatePerMinute: cfg.HTTP.AuthRatePerMinute,
		Log:               log,
	})
	if cfg.HTTP.ForceHTTPS {
		handler = middleware.ForceHTTPS(identities, handler)
	}

	log.Info("siteconf online",
		zap.String("addr", cfg.HTTP.ListenAddr),
		zap.String("db", cfg.Database.Driver),
		zap.String("objects", cfg.ObjectStore.Driver),
		zap.String("invitations", cfg.Auth.InvitationMode),
	)
	return server.Run(ctx, server.New(cfg.HTTP.ListenAddr, handler), shutdownGrace, log)
}

func openMeta(ctx context.Context, c config.Database, log *zap.Logger) (meta.Store, func(), error) {
	if c.Driver == "memory" {
		log.Warn("metadata store is in-memory; nothing survives a restart")
		return meta.NewMemStore(), func() {}, nil
	}
	db, err := database.OpenWithOptions(ctx, c.Driver, c.DSN, c.MaxOpen, c.MaxIdle)
	if err != nil {
		return nil, nil, err
	}
	log.Info("metadata store online", zap.String("driver", c.Driver))
	return meta.NewSQLStore(db), func() { _ = db.Close() }, nil
}

func openObjects(ctx context.Context, c config.ObjectStore, log *zap.Logger) (objstore.Store, error) {
	if c.Driver == "memory" {
		log.Warn("object store is in-memory; nothing survives a restart")
		return objstore.NewMemory(), nil
	}
	b, err := objstore.NewBucket(ctx, objstore.BucketOptions{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Region:    c.Region,
		Bucket:    c.Bucket,
		UseSSL:    c.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	log.Info("object store online", zap.String("endpoint", c.Endpoint), zap.String("bucket", c.Bucket))
	return b, nil
}

// newMailer returns the log-only mailer when no endpoint is configured.
func newMailer(c config.Mail, log *zap.Logger) mail.Mailer {
	if c.Endpoint == "" {
		return mail.LogMailer{Log: log}
	}
	return mail.NewHTTPMailer(mail.HTTPOptions{
		Endpoint: c.Endpoint,
		APIKey:   c.APIKey,
		From:     c.From,
		Timeout:  c.Timeout,
		Retries:  c.Retries,
	}, log)
}

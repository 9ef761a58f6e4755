package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/legit-games/eveauth/acl"
	"github.com/legit-games/eveauth/config"
	"github.com/legit-games/eveauth/email"
	"github.com/legit-games/eveauth/eveapi"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/migrate"
	"github.com/legit-games/eveauth/permission"
	"github.com/legit-games/eveauth/protocol"
	"github.com/legit-games/eveauth/proxy"
	"github.com/legit-games/eveauth/refresher"
	"github.com/legit-games/eveauth/seed"
	"github.com/legit-games/eveauth/server"
	"github.com/legit-games/eveauth/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "eveauth: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Caller:    cfg.Log.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if cfg.Database.MigrateOnStart {
		if err := migrate.Apply(sqlDB, cfg.Database.Driver); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.Database.SeedOnStart {
		if err := seed.Apply(sqlDB, cfg.Database.Driver); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	cache, err := store.NewAPICacheStore(cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer cache.Close()

	stores := server.Stores{
		Applications: store.NewApplicationStore(db),
		Users:        store.NewUserStore(db),
		Logins:       store.NewLoginHistoryStore(db),
		Links:        store.NewAccountLinkStore(db),
		Characters:   store.NewCharacterStore(db),
		Credentials:  store.NewCredentialStore(db, cfg.KeyPolicy()),
		Grants:       store.NewGrantStore(db),
		Permissions:  store.NewPermissionStore(db),
		APICache:     cache,
	}
	groups := acl.NewService(store.NewGroupStore(db), stores.Credentials, store.NewMembershipCacheStore(db))

	upstream := eveapi.New(eveapi.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
		Breaker: eveapi.BreakerConfig{
			MaxRequests:      cfg.Upstream.Breaker.MaxRequests,
			Interval:         cfg.Upstream.Breaker.Interval,
			Timeout:          cfg.Upstream.Breaker.Timeout,
			FailureThreshold: cfg.Upstream.Breaker.FailureThreshold,
		},
	})

	base := &protocol.Base{
		Applications: stores.Applications,
		Grants:       stores.Grants,
		Characters:   stores.Characters,
		Credentials:  stores.Credentials,
		Authorizer:   groups,
		Defaults:     permission.Set(cfg.DefaultPermissions),
		VerifiedOnly: cfg.RecommendVerifiedKeysOnly,
	}
	legacy := &protocol.Legacy{
		Base:      base,
		Requests:  store.NewAuthRequestStore(db),
		BaseURL:   cfg.HTTP.BaseURL,
		Blacklist: protocol.Blacklist{Schemes: cfg.Blacklist.Schemes, Hosts: cfg.Blacklist.Hosts},
		Debug:     cfg.Debug,
	}
	oauth := protocol.NewAuthorizationCode(base, store.NewAuthorizationCodeStore(db), cfg.HTTP.BaseURL)

	srv := server.New(cfg, stores, groups, legacy, oauth, nil)
	srv.Proxy = &proxy.Service{
		Grants:      srv.Protocols,
		Users:       stores.Users,
		Characters:  stores.Characters,
		Credentials: stores.Credentials,
		Cache:       cache,
		Upstream:    upstream,
	}

	mailer, err := email.Factory(&email.ProviderConfig{
		ProviderType: email.ProviderType(cfg.Mail.Provider),
		FromAddress:  cfg.Mail.From,
		AppName:      "eveauth",
		SMTP: email.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			UseTLS:   cfg.Mail.SMTP.UseTLS,
		},
	})
	if err != nil {
		return err
	}
	validator := &refresher.Validator{
		Upstream:    upstream,
		Credentials: stores.Credentials,
		Characters:  stores.Characters,
		Links:       stores.Links,
		Users:       stores.Users,
		Cache:       cache,
		Mailer:      mailer,
	}
	srv.Validator = validator

	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()
	root := suture.New("eveauth", suture.Spec{EventHook: hook})

	root.Add(&server.HTTPService{
		Server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           server.NewGinEngine(srv),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.HTTP.RequestTimeout,
		},
	})

	refresherGate, reaperGate := store.Gate(store.AlwaysLeader{}), store.Gate(store.AlwaysLeader{})
	if cfg.Valkey.Addr != "" {
		client, err := store.NewValkeyClient(ctx, cfg.Valkey.Addr)
		if err != nil {
			return err
		}
		defer client.Close()
		refresherLeader := store.NewLeaderElection(client, store.LeaderElectionConfig{Job: "refresher", Prefix: cfg.Valkey.Prefix})
		reaperLeader := store.NewLeaderElection(client, store.LeaderElectionConfig{Job: "reaper", Prefix: cfg.Valkey.Prefix})
		root.Add(refresherLeader)
		root.Add(reaperLeader)
		refresherGate, reaperGate = refresherLeader, reaperLeader
	}

	if cfg.Refresher.Enabled {
		root.Add(refresher.New(validator, stores.Credentials, refresherGate, refresher.Config{
			Interval: cfg.Refresher.Interval,
			Workers:  cfg.Refresher.Workers,
			QPS:      cfg.Refresher.QPS,
		}))
	}
	root.Add(&store.Reaper{
		Credentials:  stores.Credentials,
		Cache:        cache,
		Grants:       stores.Grants,
		Requests:     store.NewAuthRequestStore(db),
		Codes:        store.NewAuthorizationCodeStore(db),
		LoginHistory: stores.Logins,
		HistoryTTL:   cfg.LoginHistoryTTL(),
		Gate:         reaperGate,
	})

	logging.Info().Str("env", cfg.Env).Str("base_url", cfg.HTTP.BaseURL).Msg("eveauth starting")
	if err := root.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logging.Info().Msg("eveauth stopped")
	return nil
}

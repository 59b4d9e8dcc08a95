package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/storefront-checkout/api"
	"github.com/irsalhamdi/storefront-checkout/api/background"
	"github.com/irsalhamdi/storefront-checkout/commerce"
	"github.com/irsalhamdi/storefront-checkout/config"
	"github.com/irsalhamdi/storefront-checkout/core/bundle"
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/flight"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/irsalhamdi/storefront-checkout/core/order"
	"github.com/irsalhamdi/storefront-checkout/core/payment"
	"github.com/irsalhamdi/storefront-checkout/database"
	"github.com/irsalhamdi/storefront-checkout/rate"
	"github.com/joho/godotenv"
	"github.com/plutov/paypal/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	const prefix = "CHECKOUT"
	var cfg config.Config
	if help, err := conf.Parse(prefix, &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	bg := background.New(logger)

	var sinks []invalidate.Sink
	var locker flight.Locker = flight.NewMemory()

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}

		locker = flight.NewRedis(logger, rdb, cfg.Checkout.LockTTL)
		sinks = append(sinks, invalidate.NewRedisSink(rdb, cfg.Redis.Channel))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		ks := invalidate.NewKafkaSink(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		defer ks.Close()
		sinks = append(sinks, ks)
	}

	if len(sinks) == 0 {
		sinks = append(sinks, &invalidate.Recorder{})
	}
	fanout := invalidate.NewFanout(logger, bg, cfg.Checkout.InvalidationTimeout, sinks...)

	var repo cart.Repository
	switch cfg.Backend.Mode {
	case "memory":
		repo = commerce.NewMemory(commerce.DefaultCatalog())
	case "http":
		repo = commerce.NewClient(logger, commerce.Config{
			URL:              cfg.Backend.URL,
			PublishableKey:   cfg.Backend.PublishableKey,
			Timeout:          cfg.Backend.Timeout,
			FailureThreshold: cfg.Backend.FailureThreshold,
			OpenTimeout:      cfg.Backend.OpenTimeout,
		})
	default:
		return fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
	}

	var (
		ledger payment.Ledger
		orders order.Store
	)
	switch cfg.Storage.Mode {
	case "memory":
		ledger, orders = payment.NewMemoryLedger(), order.NewMemoryStore()
	case "postgres":
		db, err := database.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to open db connection: %w", err)
		}
		defer db.Close()

		if cfg.DB.Migrate {
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("failed to migrate db: %w", err)
			}
		}
		ledger, orders = payment.NewPostgresLedger(db), order.NewPostgresStore(db)
	default:
		return fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}

	providers := []payment.Provider{payment.Manual{}}

	var webhook *payment.Webhook
	if cfg.Stripe.APISecret != "" {
		strp := payment.NewStripe(payment.NewStripeAPI(cfg.Stripe.APISecret, cfg.Stripe.URL), cfg.Stripe.PaymentMethod)
		providers = append(providers, strp)
		webhook = payment.NewWebhook(logger, repo, fanout, strp)
	}

	if cfg.Paypal.ClientID != "" {
		pp, err := paypal.NewClient(
			cfg.Paypal.ClientID,
			cfg.Paypal.Secret,
			cfg.Paypal.URL,
		)
		if err != nil {
			return fmt.Errorf("failed to build the paypal client: %w", err)
		}

		if _, err = pp.GetAccessToken(context.TODO()); err != nil {
			return fmt.Errorf("failed to get the first paypal access token: %w", err)
		}
		providers = append(providers, payment.NewPaypal(pp, cfg.Paypal.ReturnURL, cfg.Paypal.CancelURL))
	}

	guard := payment.NewGuard(logger, repo, locker, ledger, payment.NewProviders(providers...), fanout, payment.Config{
		MaxRecreate:     cfg.Checkout.MaxRecreate,
		DefaultProvider: cfg.Checkout.DefaultProvider,
	})

	remover := bundle.NewRemover(logger, repo, bundle.Policy{
		Retries:  cfg.Checkout.RemoveRetries,
		Interval: cfg.Checkout.RemoveInterval,
	})
	carts := cart.NewService(logger, repo, payment.Snapshots(ledger), remover, fanout)
	coord := order.NewCoordinator(logger, repo, locker, guard, orders, fanout)

	limiter := rate.NewLimiter(cfg.Rate.Burst, cfg.Rate.Expiry, rate.Every(cfg.Rate.Interval))
	defer limiter.Close()

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Session.Lifetime
	sessionManager.Cookie.Name = cfg.Session.CookieName
	sessionManager.Cookie.Secure = cfg.Session.Secure
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode

	mux := api.APIMux(api.APIConfig{
		CorsOrigins:         cfg.Cors.Origins,
		Log:                 logger,
		Session:             sessionManager,
		Carts:               carts,
		Guard:               guard,
		Coordinator:         coord,
		Fanout:              fanout,
		Webhook:             webhook,
		StripeWebhookSecret: cfg.Stripe.WebhookSecret,
		Limiter:             limiter,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}

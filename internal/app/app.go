package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ogani-checkout/db"
	"github.com/xenking/ogani-checkout/internal/domain/auth"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
	"github.com/xenking/ogani-checkout/internal/domain/order"
	"github.com/xenking/ogani-checkout/internal/domain/product"
	"github.com/xenking/ogani-checkout/internal/domain/user"
	"github.com/xenking/ogani-checkout/internal/handler"
	"github.com/xenking/ogani-checkout/internal/seed"
	"github.com/xenking/ogani-checkout/internal/storage/memory"
	"github.com/xenking/ogani-checkout/internal/storage/postgres"
	"github.com/xenking/ogani-checkout/pkg/health"
	"github.com/xenking/ogani-checkout/pkg/httpmiddleware"
)

// backend is the storage the services run on.
type backend struct {
	products interface {
		product.Repository
		product.StockKeeper
	}
	users   user.Repository
	apikeys auth.Repository
	carts   cart.Repository
	orders  order.Store
	// pinger is nil for in-process storage.
	pinger health.Pinger
	close  func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	if cfg.Storage == StorageMemory {
		s := memory.New()
		sets := make([]*seed.Dataset, 0, len(cfg.SeedFiles))
		for _, path := range cfg.SeedFiles {
			d, err := seed.Load(path)
			if err != nil {
				return nil, errors.Wrapf(err, "load seed %s", path)
			}
			sets = append(sets, d)
		}
		if len(sets) == 0 {
			d, err := seed.Decode(strings.NewReader(db.Fixtures))
			if err != nil {
				return nil, errors.Wrap(err, "decode bundled fixtures")
			}
			sets = append(sets, d)
		}
		d := seed.Merge(sets...)
		if err := d.Validate(); err != nil {
			return nil, errors.Wrap(err, "validate seed")
		}
		d.Apply(s, []byte(cfg.Auth.APIKeyPepper))
		lg.Info("Using in-memory storage",
			zap.Int("products", len(d.Products)),
			zap.Int("users", len(d.Users)),
		)
		return &backend{
			products: s.Products(),
			users:    s.Users(),
			apikeys:  s.APIKeys(),
			carts:    s.Carts(),
			orders:   s.Orders(),
			close:    func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &backend{
		products: postgres.NewProductRepository(pool),
		users:    postgres.NewUserRepository(pool),
		apikeys:  postgres.NewAPIKeyRepository(pool),
		carts:    postgres.NewCartRepository(pool),
		orders:   postgres.NewOrderStore(pool),
		pinger:   pool,
		close:    pool.Close,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	b, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	healthSvc := health.New()
	if b.pinger != nil {
		healthSvc.Register(health.Check{
			Name:    "postgres",
			Probe:   health.Readiness,
			Timeout: 5 * time.Second,
			Func:    health.PingCheck(b.pinger),
		})
	}
	healthSvc.Register(health.Check{
		Name:  "goroutines",
		Probe: health.Liveness,
		Func:  health.GoroutineCountCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	orderService, err := order.NewService(b.users, b.orders, order.Options{
		Invoices:        order.NewInvoiceGenerator(cfg.Checkout.InvoicePrefix),
		InvoiceAttempts: cfg.Checkout.InvoiceAttempts,
		TracerProvider:  m.TracerProvider(),
		MeterProvider:   m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	cartService := cart.NewService(b.products, b.carts)

	if cfg.Auth.APIKeyPepper == "" {
		lg.Warn("API key pepper is empty")
	}
	authn := handler.NewAuthenticator(b.apikeys, b.users,
		[]byte(cfg.Auth.APIKeyPepper),
		[]byte(cfg.Auth.JWTSecret),
	)
	h := handler.New(b.products, cartService, orderService, authn)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.HeaderAPIKey},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("ogani-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

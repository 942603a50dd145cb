package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/api"
	"github.com/GaloyMoney/dealer-sub001/internal/audit"
	"github.com/GaloyMoney/dealer-sub001/internal/config"
	"github.com/GaloyMoney/dealer-sub001/internal/dealer"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/venues"
	"github.com/GaloyMoney/dealer-sub001/internal/hedging"
	"github.com/GaloyMoney/dealer-sub001/internal/ledger"
	"github.com/GaloyMoney/dealer-sub001/internal/logging"
	"github.com/GaloyMoney/dealer-sub001/internal/scheduler"
	"github.com/GaloyMoney/dealer-sub001/internal/wallet"
)

func main() {
	configPath := flag.String("config", os.Getenv("DEALER_CONFIG"), "path to the YAML config file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("logger setup failed", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		logCloser.Close()
	}()
	fail := func(msg string, err error) {
		slog.Error(msg, "err", err)
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		logCloser.Close()
		os.Exit(1)
	}

	// --- Exchange ---
	adapter, err := venues.New(cfg.Exchange)
	if err != nil {
		fail("exchange setup failed", err)
	}
	slog.Info("exchange configured", "exchange", adapter.Name(), "instrument", adapter.Instrument().ID, "sandbox", cfg.Exchange.Sandbox)

	// --- Wallet ---
	var w wallet.Adapter
	if cfg.SimulatedWallet() {
		slog.Warn("wallet url not set, using simulated wallet (no funds move)")
		w = wallet.NewSimulator(decimal.Zero, 0)
	} else {
		w = wallet.NewGraphQLClient(cfg.Wallet)
	}

	// --- Transfer ledger ---
	l, err := ledger.Open(cfg.Ledger)
	if err != nil {
		fail("ledger open failed", err)
	}
	cleanup = append(cleanup, func() {
		if err := l.Close(); err != nil {
			slog.Error("ledger close failed", "err", err)
		}
	})
	slog.Info("ledger opened", "backend", cfg.Ledger.Backend, "path", cfg.Ledger.Path)

	// --- Audit store ---
	var store audit.Store
	if cfg.Audit.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			fail("database connection failed", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := audit.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			fail("audit migration failed", err)
		}
		store = pg
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("audit database_url not set, using in-memory audit store (records will not persist)")
		store = audit.NewMemoryStore()
	}

	// --- Cycle lock ---
	var locker scheduler.Locker
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fail("invalid redis url", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		locker = scheduler.NewRedisLocker(rdb, "")
		slog.Info("Redis cycle lock enabled")
	}

	// --- WebSocket hub ---
	hub := api.NewWSHub(logger)
	go hub.Run(ctx)

	// --- Dealer ---
	d := dealer.New(cfg.DealerConfig(), adapter, w, l, hedging.New(cfg.Hedging),
		dealer.WithLimiter(cfg.Limiter()),
		dealer.WithAudit(store),
		dealer.WithLogger(logger),
		dealer.WithObserver(hub),
	)
	if err := d.Configure(ctx); err != nil {
		slog.Warn("exchange account configuration failed", "err", err)
	}

	sched := scheduler.New(cfg.SchedulerConfig(), func(ctx context.Context) error {
		return d.UpdatePositionAndLeverage(ctx).Error()
	}, locker, logger)

	if *once {
		if err := sched.RunOnce(ctx); err != nil {
			fail("cycle failed", err)
		}
		return
	}

	// --- HTTP server ---
	svc := api.NewService(d, l, store, sched.RunOnce, logger)
	port := strconv.Itoa(cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      api.NewRouter(svc, hub),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("dealer listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scheduler stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	// A cycle in flight runs to completion; it is bounded by the lock TTL.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.LockTTL)
	defer cancel()

	slog.Info("shutting down dealer, waiting for the running cycle...")
	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		slog.Error("cycle did not finish before shutdown deadline")
	}
	fmt.Println("dealer stopped")
}

package app

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/go-redis/redis/v8"

	"brandotp/internal/app/config"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/service/catalog"
	"brandotp/internal/app/service/otp"
	"brandotp/internal/app/service/payment"
	"brandotp/internal/app/service/wallet"
	"brandotp/internal/app/service/worker"
	"brandotp/internal/app/session"
	"brandotp/internal/app/storage"
	"brandotp/internal/app/storage/postgres"
	"brandotp/pkg/pay0"
	"brandotp/pkg/smsman"
)

const numWorkers = 4

type App struct {
	config   config.Config
	logger   logger.Logger
	users    storage.UserRepository
	keys     storage.IdempotencyRepository
	session  session.Manager
	wallet   *wallet.Service
	catalog  *catalog.Service
	otp      *otp.Service
	payments *payment.Service
	pool     *worker.Pool
	stopCh   chan struct{}
}

func New(cfg config.Config, logger logger.Logger, e embed.FS) (*App, error) {
	provider, err := smsman.NewService(cfg.Provider.RemoteURL, cfg.Provider.Token)
	if err != nil {
		return nil, fmt.Errorf("provider client init: %w", err)
	}

	gateway, err := pay0.NewService(cfg.Pay0.RemoteURL, cfg.Pay0.UserToken)
	if err != nil {
		return nil, fmt.Errorf("gateway client init: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := applyMigrations(e, db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	users, err := postgres.NewUserRepository(db)
	if err != nil {
		return nil, fmt.Errorf("user repository init: %w", err)
	}

	ledger, err := postgres.NewLedgerRepository(db)
	if err != nil {
		return nil, fmt.Errorf("ledger repository init: %w", err)
	}

	requests, err := postgres.NewOtpRequestRepository(db)
	if err != nil {
		return nil, fmt.Errorf("otp request repository init: %w", err)
	}

	services, err := postgres.NewServiceRepository(db)
	if err != nil {
		return nil, fmt.Errorf("service repository init: %w", err)
	}

	orders, err := postgres.NewPaymentOrderRepository(db)
	if err != nil {
		return nil, fmt.Errorf("payment order repository init: %w", err)
	}

	keys, err := postgres.NewIdempotencyRepository(db)
	if err != nil {
		return nil, fmt.Errorf("idempotency repository init: %w", err)
	}

	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pool := worker.New(numWorkers)

	walletSvc := wallet.New(ledger)
	catalogSvc := catalog.New(services, cache)
	otpSvc := otp.New(requests, catalogSvc, walletSvc, provider)
	paymentSvc := payment.New(orders, walletSvc, gateway, pool, cfg.Pay0.RedirectURL)

	// periodic sweep for delivered codes on non-terminal requests
	pool.Schedule(cfg.Provider.PollInterval, otpSvc.PollJobs)

	a := &App{
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		users:    users,
		keys:     keys,
		session:  session.NewMemory(cfg.SecretKey, users),
		wallet:   walletSvc,
		catalog:  catalogSvc,
		otp:      otpSvc,
		payments: paymentSvc,
		pool:     pool,
	}

	go func() {
		<-a.stopCh
		a.logger.Info().Msg("Shutting down application")
		pool.Stop()
	}()

	return a, nil
}

func (a *App) Stop() {
	close(a.stopCh)
}

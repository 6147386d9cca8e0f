package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-accounts/internal/bus"
	"github.com/arklim/social-platform-accounts/internal/infra/config"
	"github.com/arklim/social-platform-accounts/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-accounts/internal/infra/kafka"
	"github.com/arklim/social-platform-accounts/internal/infra/logger"
	"github.com/arklim/social-platform-accounts/internal/infra/metrics"
	"github.com/arklim/social-platform-accounts/internal/infra/notify"
	redisinfra "github.com/arklim/social-platform-accounts/internal/infra/redis"
	"github.com/arklim/social-platform-accounts/internal/infra/security"
	"github.com/arklim/social-platform-accounts/internal/infra/telemetry"
	postgresrepo "github.com/arklim/social-platform-accounts/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-accounts/internal/repository/redis"
	"github.com/arklim/social-platform-accounts/internal/usecase"
)

// Application wires the account service to its infrastructure and owns the
// lifecycle of every connection it opens.
type Application struct {
	cfg           *config.AppConfig
	logger        *zap.Logger
	pool          *pgxpool.Pool
	redis         *redisinfra.Client
	kafkaProducer *kafkainfra.Producer
	tracer        *telemetry.TracerProvider
	metricsServer *telemetry.MetricsServer
	service       *usecase.AccountService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	accounts := postgresrepo.NewAccountRepository(pool)

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	events := bus.NewEventBus()
	commands := bus.NewCommandBus()

	deviceStore := redisrepo.NewDeviceTokenStore(redisClient.Client())
	usecase.RegisterDeviceTokenStoreHandlers(commands, deviceStore)

	policy := cfg.SecurityPolicy()
	hasher := security.NewPasswordHasher(cfg.Password.HashingIterations, nil)

	rules := []security.PasswordRule{
		security.MinLengthRule(cfg.Password.MinLength),
		security.RequireCharacterClassesRule(cfg.Password.MinCharacterClass),
	}
	if cfg.Password.MinStrengthScore > 0 {
		rules = append(rules, security.RequirePasswordStrengthRule(cfg.Password.MinStrengthScore))
	}
	validator := security.NewPasswordValidator(rules...)

	var twoFactor *usecase.TwoFactorPolicy
	if cfg.Security.DeviceSigningKey != "" {
		issuer, err := security.NewDeviceTokenIssuer([]byte(cfg.Security.DeviceSigningKey), policy.RememberedDeviceLifetime, nil)
		if err != nil {
			_ = redisClient.Close()
			pool.Close()
			return nil, fmt.Errorf("init device token issuer: %w", err)
		}
		twoFactor = usecase.NewTwoFactorPolicy(issuer, commands)
	} else {
		// Without a signing key remembered devices are off and the second
		// factor is demanded on every login that has one configured.
		log.Info("device signing key not configured, remembered devices disabled")
		twoFactor = usecase.NewTwoFactorPolicy(nil, commands)
	}

	accountMetrics, err := metrics.New(metrics.Options{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	delivery := notify.NewLogDelivery(log)
	notify.NewMailer(delivery, cfg.App.Name, log).Attach(events)
	notify.NewTexter(delivery, log).Attach(events)

	var kafkaProducer *kafkainfra.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, event relay disabled", zap.Error(err))
		} else {
			kafkaProducer = producer
			kafkainfra.NewRelay(producer, cfg.App, log).Attach(events)
			log.Info("kafka event relay attached", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	}

	service, err := usecase.NewAccountService(policy, accounts, hasher, usecase.AccountServiceOptions{
		Validator: validator,
		Events:    events,
		Commands:  commands,
		TwoFactor: twoFactor,
		Metrics:   accountMetrics,
		Logger:    log,
		Tracer:    tracerProvider.Tracer("accounts"),
	})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init account service: %w", err)
	}

	return &Application{
		cfg:           cfg,
		logger:        log,
		pool:          pool,
		redis:         redisClient,
		kafkaProducer: kafkaProducer,
		tracer:        tracerProvider,
		metricsServer: telemetry.NewMetricsServer(cfg.Telemetry, nil, log),
		service:       service,
	}, nil
}

// Service exposes the wired account service to embedding hosts.
func (a *Application) Service() *usecase.AccountService {
	return a.service
}

// Logger exposes the application logger.
func (a *Application) Logger() *zap.Logger {
	return a.logger
}

// Run serves the metrics listener until ctx is cancelled, then releases
// every resource the application owns.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()
	defer func() {
		if a.kafkaProducer != nil {
			if err := a.kafkaProducer.Close(); err != nil {
				a.logger.Warn("close kafka producer", zap.Error(err))
			}
		}
	}()
	defer func() {
		shutdownCtx := context.Background()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}()

	a.logger.Info("accounts service started",
		zap.String("env", a.cfg.App.Env),
		zap.Int("metrics_port", a.cfg.Telemetry.MetricsPort),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- a.metricsServer.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

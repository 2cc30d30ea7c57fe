package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appinventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	appnotification "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/notification"
	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/config"
	domdeadletter "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	domnotify "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/breaker"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/cache"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/card"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/deadletter"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/gateway/vnpay"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/httpclient"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/messaging"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/notify"
	infraobs "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/voucher"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/worker"
)

// App is the assembled process: stores, collaborators, use cases, workers and the HTTP handler.
type App struct {
	cfg     *config.Config
	zap     *zap.Logger
	tel     observability.Observability
	pool    *pgxpool.Pool
	rdb     *redis.Client
	bus     *outbox.Bus
	orders  *apporder.Service
	sweeper *apporder.Sweeper
	handler http.Handler

	busStarted bool

	// closers run in reverse order on Close.
	closers []func(ctx context.Context) error
}

// Build wires every dependency from cfg. The caller owns the returned App and must Close it.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	app.zap, err = logging.NewLogger(logging.Options{
		Service: cfg.Service,
		Env:     cfg.Env,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error {
		_ = app.zap.Sync()
		return nil
	})

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.Service,
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, err
	}
	app.onClose(shutdownTracing)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := infraobs.StandardInstruments(prometrics.New("", "", reg))
	app.tel = infraobs.New(oteltrace.New(cfg.Service), zaplogger.New(app.zap), counters, histograms)
	logger := app.tel.Logger()

	orderRepo, paymentRepo, err := app.stores(ctx)
	if err != nil {
		return nil, err
	}

	app.bus = outbox.NewBus(logger, outbox.Options{})
	ids := id.NewUUIDGenerator()

	inventoryClient := inventory.NewClient(
		httpclient.New("inventory", cfg.Inventory.BaseURL, cfg.Inventory.Timeout, app.tel),
		breaker.New("inventory", breakerSettings(cfg.Inventory.Breaker), app.tel),
		app.bus,
		logger,
	)

	var vouchers apporder.Vouchers
	if cfg.Voucher.BaseURL != "" {
		vouchers = voucher.NewClient(
			httpclient.New("voucher", cfg.Voucher.BaseURL, cfg.Voucher.Timeout, app.tel),
			breaker.New("voucher", breakerSettings(cfg.Voucher.Breaker), app.tel),
		)
	}

	var cardProvider apppay.CardProvider
	if cfg.Card.BaseURL != "" {
		var opts []httpclient.Option
		if cfg.Card.APIKey != "" {
			opts = append(opts, httpclient.WithHeader("Authorization", "Bearer "+cfg.Card.APIKey))
		}
		cardProvider = card.NewHTTPProvider(
			httpclient.New("card", cfg.Card.BaseURL, cfg.Card.Timeout, app.tel, opts...),
			breaker.New("card", breakerSettings(cfg.Card.Breaker), app.tel),
		)
	} else {
		logger.Warn("card_sandbox_enabled", observability.F("success_rate", cfg.Card.SandboxSuccessRate))
		cardProvider = card.NewSandbox(cfg.Card.SandboxSuccessRate)
	}

	var gateway apppay.RedirectGateway
	if cfg.Gateway.Enabled {
		gwCfg := vnpay.Config{
			MerchantCode: cfg.Gateway.MerchantCode,
			SecretKey:    cfg.Gateway.SecretKey,
			PaymentURL:   cfg.Gateway.PaymentURL,
			ReturnURL:    cfg.Gateway.ReturnURL,
		}
		if err := gwCfg.Validate(); err != nil {
			return nil, fmt.Errorf("gateway config: %w", err)
		}
		gateway = vnpay.NewGateway(vnpay.NewClient(gwCfg))
	}

	deadLetters := app.deadLetterSink()
	sender, err := app.notificationSender(ctx)
	if err != nil {
		return nil, err
	}

	payments := apppay.NewService(apppay.Deps{
		Repo:    paymentRepo,
		IDs:     ids,
		Card:    cardProvider,
		Gateway: gateway,
		Bank: apppay.BankAccount{
			BankName:      cfg.BankTransfer.BankName,
			AccountNumber: cfg.BankTransfer.AccountNumber,
			AccountHolder: cfg.BankTransfer.AccountHolder,
		},
		Publisher: app.bus,
	}, app.tel)

	app.orders = apporder.NewService(apporder.Deps{
		Repo:        orderRepo,
		IDs:         ids,
		Inventory:   inventoryClient,
		Vouchers:    vouchers,
		Payments:    payments,
		DeadLetters: deadLetters,
		Publisher:   app.bus,
		Saga: apporder.SagaOptions{
			ConfirmAttempts:  cfg.Saga.ConfirmAttempts,
			ConfirmBaseDelay: cfg.Saga.ConfirmBaseDelay,
			PaymentTimeout:   cfg.Saga.PaymentTimeout,
			SweepBatch:       cfg.Saga.SweepBatch,
		},
	}, app.tel)
	app.sweeper = apporder.NewSweeper(app.orders, cfg.Saga.SweepInterval)

	appinventory.NewWorker(
		workerpresentation.Instrument(app.bus, "inventory-retry", app.tel),
		appinventory.NewRetryUseCase(inventoryClient, deadLetters, cfg.Saga.InventoryRetryAttempts, cfg.Saga.InventoryRetryDelay, app.tel),
	).Start()
	appnotification.NewWorker(
		workerpresentation.Instrument(app.bus, "notification-worker", app.tel),
		sender,
		app.tel,
	).Start()

	app.handler = httppresentation.NewHandler(httppresentation.Deps{
		Orders:      app.orders,
		CreateOrder: apporder.NewCreateOrderUseCase(app.orders),
		Refunds:     payments,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Ready:       app.ready,
	}, app.tel).Router()

	return app, nil
}

func (a *App) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// stores picks Postgres when a URL is configured and memory otherwise, then layers the Redis cache on orders.
func (a *App) stores(ctx context.Context) (domorder.Repository, dompay.Repository, error) {
	var (
		orders   domorder.Repository
		payments dompay.Repository
	)
	if a.cfg.Postgres.URL != "" {
		pool, err := postgres.Connect(ctx, postgres.PoolOptions{
			URL:             a.cfg.Postgres.URL,
			MaxConns:        a.cfg.Postgres.MaxConns,
			MinConns:        a.cfg.Postgres.MinConns,
			MaxConnLifetime: a.cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		a.pool = pool
		a.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		orders = postgres.NewOrderRepository(pool)
		payments = postgres.NewPaymentRepository(pool)
	} else {
		a.tel.Logger().Warn("memory_store_enabled")
		orders = memory.NewOrderRepository()
		payments = memory.NewPaymentRepository()
	}

	if a.cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.onClose(func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		a.rdb = rdb
		orders = cache.NewOrderRepository(orders, rdb, a.cfg.Redis.CacheTTL, a.tel.Logger())
	}
	return orders, payments, nil
}

func (a *App) deadLetterSink() domdeadletter.Sink {
	sinks := []domdeadletter.Sink{deadletter.NewLogSink(a.tel.Logger())}
	if len(a.cfg.Kafka.Brokers) > 0 {
		w := messaging.NewKafkaWriter(a.cfg.Kafka.Brokers, a.cfg.Kafka.DeadLetterTopic)
		a.onClose(func(context.Context) error { return w.Close() })
		sinks = append(sinks, deadletter.NewKafkaSink(w))
	}
	return deadletter.NewFanout(a.tel.Metrics(), sinks...)
}

func (a *App) notificationSender(ctx context.Context) (domnotify.Sender, error) {
	switch strings.ToLower(a.cfg.Notification.Transport) {
	case "http":
		return notify.NewHTTPSender(httpclient.New("notification", a.cfg.Notification.BaseURL, a.cfg.Notification.Timeout, a.tel)), nil
	case "kafka":
		w := messaging.NewKafkaWriter(a.cfg.Kafka.Brokers, a.cfg.Kafka.NotificationTopic)
		a.onClose(func(context.Context) error { return w.Close() })
		return notify.NewKafkaSender(w), nil
	case "amqp":
		conn, ch, err := messaging.DialAMQP(ctx, a.cfg.AMQP.URL, a.cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return errors.Join(ch.Close(), conn.Close()) })
		return notify.NewAMQPSender(ch, a.cfg.AMQP.Exchange), nil
	default:
		return notify.NewLogSender(a.tel.Logger()), nil
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Handler is the HTTP API.
func (a *App) Handler() http.Handler { return a.handler }

// Orders is the order orchestrator.
func (a *App) Orders() *apporder.Service { return a.orders }

// Logger is the process logger behind the observability port.
func (a *App) Logger() observability.Logger { return a.tel.Logger() }

// StartWorkers starts dispatching events to the inventory-retry and notification workers.
func (a *App) StartWorkers(ctx context.Context) {
	a.bus.Start(ctx)
	a.busStarted = true
}

// StartSweeper runs the payment-timeout sweeper until Close.
func (a *App) StartSweeper(ctx context.Context) {
	a.sweeper.Start(ctx)
}

// Close stops background work, drains the bus and releases every connection.
func (a *App) Close(ctx context.Context) error {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.busStarted {
		a.bus.Stop(ctx)
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func breakerSettings(b config.Breaker) breaker.Settings {
	s := breaker.DefaultSettings()
	s.ConsecutiveFailures = b.ConsecutiveFailures
	s.FailureRatio = b.FailureRatio
	s.MinRequests = b.MinRequests
	s.Interval = b.Interval
	s.CoolDown = b.CoolDown
	return s
}

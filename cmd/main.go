package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/okoshkin/go_market/internal/cache"
	"github.com/okoshkin/go_market/internal/cart"
	"github.com/okoshkin/go_market/internal/checkout"
	"github.com/okoshkin/go_market/internal/coupon"
	"github.com/okoshkin/go_market/internal/domain"
	marketHTTP "github.com/okoshkin/go_market/internal/http"
	"github.com/okoshkin/go_market/internal/order"
	"github.com/okoshkin/go_market/internal/payment"
	"github.com/okoshkin/go_market/internal/pricing"
	"github.com/okoshkin/go_market/internal/publisher"
	"github.com/okoshkin/go_market/internal/repository"
	"github.com/okoshkin/go_market/pkg/config"
	"github.com/okoshkin/go_market/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	// Mongo holds the cart and address documents.
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		zlog.Fatal("connect mongodb", zap.Error(err))
	}
	cartRepo := repository.NewMongoCartRepository(mongoDB)
	addressRepo := repository.NewMongoAddressRepository(mongoDB)
	zlog.Info("connected to mongodb", zap.String("uri", cfg.MongoURI))

	// Redis fronts the cart reads.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zlog.Fatal("redis ping", zap.Error(err))
	}
	cartCache := cache.NewRedisCache(redisClient)
	zlog.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	// Postgres holds orders, payments, refunds, sessions and the outbox.
	creds := &repository.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDB,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	store, err := repository.NewPostgresStore(creds)
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	defer store.Close()
	if err := store.RunMigrations(creds); err != nil {
		zlog.Fatal("run migrations", zap.Error(err))
	}
	zlog.Info("connected to postgres", zap.String("host", cfg.PostgresHost))

	rule := domain.DeliveryRule{FreeThreshold: cfg.FreeDeliveryThreshold, Fee: cfg.DeliveryFee}

	// TODO: replace the seeded codes with a coupon admin surface.
	coupons := coupon.NewValidator(coupon.NewMemoryStore(
		domain.Coupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10, MinSubtotal: 100},
		domain.Coupon{Code: "FREESHIP", Kind: domain.CouponKindFreeDelivery},
	))

	carts := cart.NewService(cartRepo, cartCache, coupons, rule, cfg.Currency, zlog)

	provider := payment.NewHTTPProvider(cfg.PaymentProviderURL, nil)
	payments := payment.NewCoordinator(store, provider, cfg.PaymentProviderTimeout, zlog)

	orders := order.NewService(store, payments, zlog)

	book := checkout.NewAddressBook(addressRepo)
	wizard := checkout.NewCoordinator(store, book, coupons, zlog)
	submitter := checkout.NewSubmitter(store, cartRepo, orders, payments,
		pricing.ProportionalAllocator{}, rule, cfg.Currency, zlog)

	// Outbox poller owns all Kafka traffic.
	poller := publisher.NewOutboxPoller(store, zlog, cfg.KafkaBrokers)
	pollerCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	go poller.Run(pollerCtx)

	router := marketHTTP.NewRouter(
		marketHTTP.NewCartHandler(carts, coupons, cfg.Currency, cfg.RequestTimeout),
		marketHTTP.NewCheckoutHandler(wizard, submitter, carts, book, cfg.Currency, cfg.RequestTimeout),
		marketHTTP.NewOrdersHandler(orders, carts, order.AllAvailable{}, order.TextInvoiceRenderer{}, cfg.RequestTimeout),
		marketHTTP.NewWebhookHandler(payments, orders, zlog, cfg.RequestTimeout),
		cfg.RequestTimeout,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "go-market"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	stopPoller()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal("forced shutdown", zap.Error(err))
	}
	zlog.Info("server exited")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tropicbook/resort-reservations-and-payments/internal/adapters/crdb"
	mongoadapter "github.com/tropicbook/resort-reservations-and-payments/internal/adapters/mongo"
	redisadapter "github.com/tropicbook/resort-reservations-and-payments/internal/adapters/redis"
	"github.com/tropicbook/resort-reservations-and-payments/internal/cancel"
	"github.com/tropicbook/resort-reservations-and-payments/internal/checkout"
	"github.com/tropicbook/resort-reservations-and-payments/internal/config"
	"github.com/tropicbook/resort-reservations-and-payments/internal/gateway"
	httphandler "github.com/tropicbook/resort-reservations-and-payments/internal/http"
	"github.com/tropicbook/resort-reservations-and-payments/internal/idempotency"
	"github.com/tropicbook/resort-reservations-and-payments/internal/ledger"
	"github.com/tropicbook/resort-reservations-and-payments/internal/materialize"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
	"github.com/tropicbook/resort-reservations-and-payments/internal/outbox"
	"github.com/tropicbook/resort-reservations-and-payments/internal/rateLimit"
	"github.com/tropicbook/resort-reservations-and-payments/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(context.Background()); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("rsv")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewPaymentAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayKey, cfg.GatewayTimeout)
	verifier := webhook.NewVerifier(cfg.WebhookSecret, webhook.DefaultTolerance)

	notify := outbox.NewQueue(repo)
	mat := materialize.NewMaterializer(repo, audit, notify, logger)
	co := checkout.NewOrchestrator(repo, mat, gw, logger)
	ledgerTx := func(ctx context.Context, fn func(ledger.Store) error) error {
		return repo.ReservationTx(ctx, func(s crdb.LedgerStore) error { return fn(s) })
	}
	lg := ledger.NewLedger(repo, ledgerTx, logger)
	cn := cancel.NewOrchestrator(repo, gw, audit, notify, logger)

	handlers := httphandler.NewHandlers(cfg, repo, redisCache, idemp, catalog, gw, verifier, mat, co, lg, cn, logger)
	r := httphandler.SetupRouter(handlers, logger, rl, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}

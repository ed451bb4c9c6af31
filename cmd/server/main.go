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
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/garment-booking/internal/config"
	"github.com/iliyamo/garment-booking/internal/database"
	"github.com/iliyamo/garment-booking/internal/gateway"
	"github.com/iliyamo/garment-booking/internal/handler"
	"github.com/iliyamo/garment-booking/internal/middleware"
	"github.com/iliyamo/garment-booking/internal/payment"
	"github.com/iliyamo/garment-booking/internal/queue"
	"github.com/iliyamo/garment-booking/internal/repository"
	"github.com/iliyamo/garment-booking/internal/router"
	"github.com/iliyamo/garment-booking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			log.Fatalf("db migrate: %v", err)
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("[redis] unreachable; running without rate limit, cache and shared checkout locks")
	} else {
		defer rdb.Close()
	}

	events := queue.NewPublisher(cfg.Events)
	defer events.Close()

	// card payments stay off without a gateway key; interfaces must hold a
	// real nil then, not a typed one
	var (
		intents service.IntentGateway
		confirm payment.Gateway
	)
	if cfg.Stripe.Enabled() {
		s := gateway.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.APIURL)
		intents, confirm = s, s
	} else {
		log.Printf("[payment] STRIPE_SECRET_KEY not set; only cash on delivery is accepted")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	svc := service.NewBookingService(
		repository.NewProductRepo(db),
		repository.NewBookingRepo(db),
		intents, events, cfg.Currency,
	)

	var locks handler.Locker = handler.NewLocalLocker()
	if rdb != nil {
		locks = handler.NewRedisLocker(rdb)
	}

	cacheCfg := config.LoadCacheConfig()
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	rateCfg := config.LoadRateLimitConfig()
	e.Use(middleware.NewTokenBucket(rateCfg, rdb))

	router.RegisterRoutes(e, handler.Health(db, rdb))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterCatalog(e, handler.NewCatalogHandler(svc, cacheCfg, rdb), cfg.JWTSecret,
		middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterBuyer(e,
		handler.NewBookingHandler(svc),
		handler.NewCheckoutHandler(svc, confirm, locks, cfg.Checkout, cfg.Currency, service.Retryable),
		cfg.JWTSecret, middleware.NewPaymentLimit(rateCfg, rdb))
	router.RegisterManager(e, handler.NewManagerHandler(svc), cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(users, tokens), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// README: Entry point; loads config, wires stores, services and the event bus, serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"vitecab/internal/config"
	httptransport "vitecab/internal/http"
	"vitecab/internal/infra"
	"vitecab/internal/logger"
	"vitecab/internal/modules/booking"
	"vitecab/internal/modules/driver"
	"vitecab/internal/modules/pricing"
	"vitecab/internal/modules/realtime"
	"vitecab/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("vitecab-api stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.ConnectRetries, log)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if cfg.DB.Migrate {
		dir := cfg.DB.MigrationsDir
		if dir == "" {
			if dir, err = infra.MigrationsDir(); err != nil {
				return fmt.Errorf("locate migrations: %w", err)
			}
		}
		if err := infra.Migrate(ctx, dbPool, dir); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.WithField("dir", dir).Info("migrations applied")
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	registry := realtime.NewRegistry(cfg.Realtime.Buffer, log.WithField("component", "realtime"))
	var opts []realtime.BusOption
	if cfg.Realtime.Relay {
		opts = append(opts, realtime.WithRelay(realtime.NewRedisRelay(redisClient, cfg.Realtime.RelayChannel), 256))
	}
	forwarder, err := newForwarder(cfg.Events)
	if err != nil {
		return err
	}
	if forwarder != nil {
		opts = append(opts, realtime.WithForwarder(forwarder, 1024))
	}
	bus := realtime.NewBus(registry, log.WithField("component", "bus"), opts...)
	go bus.Run(ctx)

	pricingStore := pricing.NewStore(dbPool)
	rateCache := pricing.NewCache(pricingStore, redisClient, cfg.Redis.RateTTL, log.WithField("component", "rate_cache"))
	pricingSvc := pricing.NewService(pricingStore, rateCache, bus, log.WithField("component", "pricing"))

	rideSvc := ride.NewService(ride.NewStore(dbPool), bus, log.WithField("component", "ride"))
	driverSvc := driver.NewService(driver.NewStore(dbPool), bus, log.WithField("component", "driver"))
	bookingSvc := booking.NewService(pricingSvc, rideSvc, log.WithField("component", "booking"))

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Pricing:        pricingSvc,
		Rides:          rideSvc,
		Drivers:        driverSvc,
		Booking:        bookingSvc,
		Registry:       registry,
		WS:             realtime.NewWSServer(cfg.HTTP.AllowedOrigins),
		Verifier:       infra.NewJWTVerifier(cfg.Auth.JWTSecret),
		Heartbeat:      cfg.Realtime.Heartbeat,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Log:            log.WithField("component", "http"),
	})

	// No WriteTimeout: event streams stay open for the life of the client.
	// Request contexts end with ctx so streams close on shutdown.
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newForwarder(cfg config.EventsConfig) (realtime.Forwarder, error) {
	switch cfg.Forwarder {
	case "rabbitmq":
		f, err := realtime.NewRabbitForwarder(cfg.AMQPURL, cfg.Exchange)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq forwarder: %w", err)
		}
		return f, nil
	case "kafka":
		return realtime.NewKafkaForwarder(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return nil, nil
	}
}

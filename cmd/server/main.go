package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/worldpeaceenginelabs/cloudatlas.go/db"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/logging"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/transport"
	"github.com/worldpeaceenginelabs/cloudatlas.go/relaypool"
)

// @title        cloudatlas.go
// @version      0.1.0
// @description  Decentralized peer matching and listings over nostr relays for map-centric gig verticals.

// @BasePath  /
// @schemes   https http
func main() {

	c := &service.Config{}

	// Load configuration from environment variables
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("Failed to load .env file")
	}
	err = envconfig.Process("", c)
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configured log file
	logger := logging.Logger(c.LogFilePath)

	// Setup exception tracking with Sentry if configured
	// sentry init needs to happen before the echo middlewares are added
	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:          c.SentryDSN,
			IgnoreErrors: []string{"401"},
		}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
	}

	// Open the embedded store holding the identity and the listing cache
	store, err := db.Open(c.DataDir, logger)
	if err != nil {
		logger.Fatalf("Error opening data dir %s: %v", c.DataDir, err)
	}
	defer store.Close()

	secretKey, err := service.ResolveSecretKey(c, store)
	if err != nil {
		logger.Fatalf("Error resolving identity: %v", err)
	}

	backGroundCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pool, err := relaypool.Dial(backGroundCtx, c.RelayUris, secretKey, relaypool.WithLogger(logger))
	if err != nil {
		logger.Fatalf("Error setting up the relay pool: %v", err)
	}
	defer pool.Close()
	logger.Infof("Relay pool dialing %d relays as %s", len(c.RelayUris), pool.PublicKey())

	svc := service.NewService(c, logger, pool, store)

	//init echo server
	e := transport.InitEcho(c, logger)

	logMw := transport.CreateLoggingMiddleware(logger)
	// strict rate limit for endpoints that publish to the relays
	strictRateLimitMiddleware := transport.CreateRateLimitMiddleware(c.DefaultRateLimit, c.BurstRateLimit)

	transport.RegisterV2Endpoints(svc, e, strictRateLimitMiddleware, logMw)

	var backgroundWg sync.WaitGroup
	// Resume an interrupted session from the relays in the background
	backgroundWg.Add(1)
	go func() {
		defer backgroundWg.Done()
		if err := svc.RecoverSession(backGroundCtx); err != nil {
			sentry.CaptureException(err)
			svc.Logger.Errorf("Session recovery failed: %v", err)
		}
	}()

	if c.EnablePrometheus {
		go transport.StartPrometheusEcho(logging.Logger(c.LogFilePath), c, e)
	}

	// Start server
	go func() {
		if err := e.Start(fmt.Sprintf(":%v", c.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-backGroundCtx.Done()
	// reap the session without taking its relay record down, so a
	// restart can recover it
	svc.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal(err)
	}
	backgroundWg.Wait()
}

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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"coinflip-relay/internal/config"
	"coinflip-relay/internal/contract"
	"coinflip-relay/internal/handlers"
	"coinflip-relay/internal/services"
	"coinflip-relay/internal/sui"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	closeLog := configureLogging(cfg)
	defer closeLog()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Printf("Config: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("Relay stopped: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// A bad key is reported on every settle request; it never blocks startup.
	signer, keyErr := services.LoadEscrowSigner(cfg.EscrowKey)
	switch {
	case keyErr != nil:
		log.Printf("Escrow key unusable, settle requests will fail: %v", keyErr)
	case signer == nil:
		log.Println("ESCROW_PRIVATE_KEY not set, returning unsigned transactions")
	default:
		log.Printf("Escrow signer: %s", signer.Address())
	}

	client, err := sui.Dial(ctx, cfg.SuiRPCURL, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	c := contract.New(cfg.PackageID, cfg.Module)
	metrics := services.NewMetrics()
	hub := handlers.NewWebSocketHub(metrics)

	var (
		settlements services.SettlementStore
		index       services.MatchIndex
		limiter     services.RateLimiter
	)
	if cfg.RedisURL != "" {
		redisService, err := services.NewRedisService(cfg)
		if err != nil {
			return err
		}
		defer redisService.Close()
		settlements, index, limiter = redisService, redisService, redisService
	} else {
		boltStore, err := services.NewBoltStore(cfg.IndexPath)
		if err != nil {
			return err
		}
		defer boltStore.Close()
		settlements, index = boltStore, boltStore
	}

	escrow := services.NewEscrowService(client, c, services.EscrowConfig{
		Signer:        signer,
		KeyErr:        keyErr,
		SenderAddress: cfg.EscrowAddress,
		GasBudget:     cfg.GasBudget,
		SubmitTimeout: cfg.SubmitTimeout,
	})
	escrow.SetStore(settlements)
	escrow.SetMetrics(metrics)
	escrow.SetBroadcaster(hub)

	matches := services.NewMatchService(client, c)
	matches.SetIndex(index)
	matches.SetBroadcaster(hub)

	indexer := services.NewIndexService(client, matches, index)
	indexer.SetBroadcaster(hub)
	indexer.SetMetrics(metrics)

	if cfg.FlipSeed == "" {
		log.Println("FLIP_SEED not set, using a random seed for this process")
	}
	flipper, err := services.NewCoinFlipper(cfg.FlipSeed)
	if err != nil {
		return err
	}
	log.Printf("Flip seed commitment: %s", flipper.ServerHash())

	router := handlers.NewRouter(handlers.RouterConfig{
		Relay:     handlers.NewRelayHandler(escrow, flipper, metrics),
		Matches:   handlers.NewMatchHandler(matches, flipper),
		WebSocket: handlers.NewWebSocketHandler(hub),
		JWT:       services.NewJWTService(cfg),
		Limiter:   limiter,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.WithCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	if cfg.IndexInterval > 0 {
		g.Go(func() error {
			return indexer.Run(gctx, cfg.IndexInterval)
		})
	}

	g.Go(func() error {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Println("Shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

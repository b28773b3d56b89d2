package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-mystery-message/internal/config"
	"github.com/go-mystery-message/internal/infrastructure/dynamo"
	"github.com/go-mystery-message/internal/infrastructure/gemini"
	jwtinfra "github.com/go-mystery-message/internal/infrastructure/jwt"
	"github.com/go-mystery-message/internal/infrastructure/memory"
	mongoinfra "github.com/go-mystery-message/internal/infrastructure/mongo"
	"github.com/go-mystery-message/internal/infrastructure/smtp"
	transporthttp "github.com/go-mystery-message/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	// Every authenticated route depends on the JWT keys.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider: %v", err)
	}

	// Text generation is optional; suggestions answer 500 without it.
	var generator transporthttp.TextGenerator
	if g, err := gemini.NewGenerator(ctx, cfg); err == nil {
		generator = g
	} else {
		log.Printf("WARN: text generator not available: %v", err)
	}

	deps := &transporthttp.Deps{
		AccountRepo: repo,
		Mailer:      smtp.NewMailer(cfg),
		JWTProvider: jwtProvider,
		Generator:   generator,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, store=%s)", cfg.AppPort, cfg.AppEnv, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
		return
	}
	log.Println("Server stopped")
}

// openStore builds the account store selected by STORE_DRIVER. The returned
// func releases its connections.
func openStore(ctx context.Context, cfg *config.Config) (transporthttp.AccountRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongoinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		repo, err := mongoinfra.NewAccountRepo(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return repo, closeFn, nil
	case config.StoreMemory:
		log.Println("WARN: using in-memory store, data is lost on restart")
		return memory.NewAccountRepo(), func() {}, nil
	default:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		// Bootstrap DynamoDB tables (creates them if they don't exist).
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewAccountRepo(client, cfg.DynamoTables.Accounts), func() {}, nil
	}
}

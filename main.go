package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/todo-auth-be/internal/api"
	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/cache"
	"github.com/isdelr/todo-auth-be/internal/config"
	"github.com/isdelr/todo-auth-be/internal/database"
	"github.com/isdelr/todo-auth-be/internal/logger"
	"github.com/isdelr/todo-auth-be/internal/mailer"
	"github.com/isdelr/todo-auth-be/internal/services"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.LogLevel, cfg.IsProduction())

	// Set up database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up the todo cache; without Redis every read goes to the database.
	var todoCache cache.TodoCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(context.Background(), cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize todo cache")
		}
		defer redisCache.Close()
		todoCache = redisCache
	}

	codec, err := auth.NewCodec(cfg.SecretKey, cfg.Algorithm)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token codec")
	}
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	// Set up services
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db, hasher, eventService)
	todoService := services.NewTodoService(db, todoCache, eventService)
	authService := services.NewAuthService(userService, codec, hasher, eventService, cfg.AccessTokenExpire, cfg.ConfirmationTokenExpire)

	// Set up and run the background mail queue
	var sender mailer.Sender = mailer.LogSender{}
	if cfg.MailgunAPIKey != "" && cfg.MailgunDomain != "" {
		sender = mailer.NewMailgunSender(cfg.MailgunBaseURL, cfg.MailgunDomain, cfg.MailgunAPIKey)
	} else {
		log.Warn().Msg("Mailgun is not configured, confirmation mails will only be logged")
	}
	mailQueue := mailer.NewQueue(sender, 100, mailer.WithFailureHook(func(msg mailer.Message, err error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		user, lookupErr := userService.GetUserByEmail(ctx, msg.To)
		if lookupErr != nil {
			return
		}
		message := fmt.Sprintf("Mail '%s' could not be delivered.", msg.Subject)
		if eventErr := eventService.CreateEvent(ctx, "mail.failed", services.LevelError, message, &user.ID); eventErr != nil {
			log.Warn().Err(eventErr).Msg("Failed to record mail failure")
		}
	}))
	mailQueue.Run()

	// Set up router
	router := api.NewRouter(api.Services{
		Auth:   authService,
		Users:  userService,
		Todos:  todoService,
		Events: eventService,
		Mail:   mailQueue,
	}, cfg.AllowedOrigins, cfg.PublicBaseURL)

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	mailQueue.Stop() // Deliver what is still queued

	log.Info().Msg("Server exiting")
}

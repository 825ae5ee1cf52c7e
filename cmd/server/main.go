package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mezaapp/meza/internal/config"
	"github.com/mezaapp/meza/internal/database"
	"github.com/mezaapp/meza/internal/handlers"
	"github.com/mezaapp/meza/internal/jobs"
	"github.com/mezaapp/meza/internal/metrics"
	"github.com/mezaapp/meza/internal/repository"
	"github.com/mezaapp/meza/internal/scheduler"
	"github.com/mezaapp/meza/internal/services"
	"github.com/mezaapp/meza/pkg/logger"
	"github.com/mezaapp/meza/pkg/middleware"
	"github.com/mezaapp/meza/pkg/timeutil"
	"github.com/rs/cors"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger()
	logger.Log.Info("Logger initialized")

	// Connect to MongoDB
	db, err := database.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}

	// --- Repositories ---
	userRepo := repository.NewUserRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	pushRepo := repository.NewPushRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	for _, ensure := range []func(context.Context) error{
		userRepo.EnsureIndexes,
		challengeRepo.EnsureIndexes,
		pushRepo.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			log.Fatalf("Index creation error: %v", err)
		}
	}
	cancel()

	clock := timeutil.RealClock{}

	// --- Services ---
	userService := services.NewUserService(userRepo)
	settingsService := services.NewSettingsService(settingsRepo)
	pushService := services.NewPushService(pushRepo, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	notificationService := services.NewNotificationService(notificationRepo, settingsRepo, userRepo, pushService)
	paymentService := services.NewPaymentService(cfg.StripeSecretKey, userRepo, cfg.Currency)
	challengeService := services.NewChallengeService(challengeRepo, paymentService, notificationService, clock, cfg.ArrivalRadiusMeters)

	// --- Handlers ---
	userHandler := handlers.NewUserHandler(userService, cfg)
	challengeHandler := handlers.NewChallengeHandler(challengeService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	pushHandler := handlers.NewPushHandler(pushService)
	settingsHandler := handlers.NewSettingsHandler(settingsService)

	streamHandler := handlers.NewNotificationStreamHandler(cfg.JWTSecret)
	notificationService.SetStreamer(streamHandler)

	// Periodic jobs: expiry sweep, reminders, notification cleanup
	sweeper := jobs.NewExpirySweeper(challengeService, settingsService, notificationService, clock)
	cronRunner := scheduler.Start(sweeper, notificationService, cfg.SweepInterval)
	defer cronRunner.Stop()

	// Initialize Gorilla Mux router
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Auth routes, rate limited when Redis is available
	var registerHandler http.Handler = http.HandlerFunc(userHandler.RegisterUserHandler)
	var loginHandler http.Handler = http.HandlerFunc(userHandler.LoginUserHandler)
	if rdb, err := database.ConnectRedis(cfg); err != nil {
		logger.Log.WithError(err).Warn("Redis unavailable, auth rate limiting disabled")
	} else {
		limiter := middleware.NewRateLimiter(rdb, 10, time.Minute)
		registerHandler = limiter.Middleware(registerHandler)
		loginHandler = limiter.Middleware(loginHandler)
	}
	router.Handle("/users/register", registerHandler).Methods("POST")
	router.Handle("/users/login", loginHandler).Methods("POST")

	// Protected user routes
	protectedUserRoutes := router.PathPrefix("/users").Subrouter()
	protectedUserRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedUserRoutes.HandleFunc("/me", userHandler.GetProfileHandler).Methods("GET")
	protectedUserRoutes.HandleFunc("/me", userHandler.UpdateProfileHandler).Methods("PATCH")

	// Challenge routes
	protectedRoutes := router.PathPrefix("/challenges").Subrouter()
	protectedRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedRoutes.HandleFunc("", challengeHandler.CreateChallengeHandler).Methods("POST")
	protectedRoutes.HandleFunc("", challengeHandler.GetChallengesHandler).Methods("GET")
	protectedRoutes.HandleFunc("/active", challengeHandler.GetActiveChallengeHandler).Methods("GET")
	protectedRoutes.HandleFunc("/{id}", challengeHandler.GetChallengeHandler).Methods("GET")
	protectedRoutes.HandleFunc("/{id}", challengeHandler.UpdateChallengeHandler).Methods("PATCH")
	protectedRoutes.HandleFunc("/{id}", challengeHandler.DeleteChallengeHandler).Methods("DELETE")
	protectedRoutes.HandleFunc("/{id}/start", challengeHandler.StartChallengeHandler).Methods("POST")
	protectedRoutes.HandleFunc("/{id}/complete", challengeHandler.CompleteChallengeHandler).Methods("POST")
	protectedRoutes.HandleFunc("/{id}/give-up", challengeHandler.GiveUpChallengeHandler).Methods("POST")

	// Notification routes
	protectedNotifRoutes := router.PathPrefix("/notifications").Subrouter()
	protectedNotifRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedNotifRoutes.HandleFunc("", notificationHandler.GetUserNotificationsHandler).Methods("GET")
	protectedNotifRoutes.HandleFunc("/{id}/read", notificationHandler.MarkAsReadHandler).Methods("POST")
	protectedNotifRoutes.HandleFunc("/{id}", notificationHandler.DeleteNotificationHandler).Methods("DELETE")

	// Push subscription routes
	protectedPushRoutes := router.PathPrefix("/push").Subrouter()
	protectedPushRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedPushRoutes.HandleFunc("/public-key", pushHandler.PublicKeyHandler).Methods("GET")
	protectedPushRoutes.HandleFunc("/subscribe", pushHandler.SubscribeHandler).Methods("POST")
	protectedPushRoutes.HandleFunc("/unsubscribe", pushHandler.UnsubscribeHandler).Methods("POST")

	// Settings routes
	protectedSettingsRoutes := router.PathPrefix("/settings").Subrouter()
	protectedSettingsRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedSettingsRoutes.HandleFunc("", settingsHandler.GetSettingsHandler).Methods("GET")
	protectedSettingsRoutes.HandleFunc("", settingsHandler.UpdateSettingsHandler).Methods("PUT")

	// Live notification stream (token in query, see handler)
	router.HandleFunc("/ws/notifications", streamHandler.StreamHandler)

	// Apply middleware for logging and metrics
	router.Use(middleware.LoggingMiddleware)
	router.Use(metrics.Middleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	handler := c.Handler(router)

	fmt.Printf("Server running on port %s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}

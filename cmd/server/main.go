// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/rumblerush/server/internal/cache"
	"github.com/rumblerush/server/internal/config"
	"github.com/rumblerush/server/internal/database"
	"github.com/rumblerush/server/internal/game"
	"github.com/rumblerush/server/internal/handlers"
	"github.com/rumblerush/server/internal/middleware"
	"github.com/rumblerush/server/internal/resume"
)

func main() {
	logger := logrus.New()
	if config.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	database.ConnectDB()
	if err := database.RunMigrations(context.Background(), database.DB); err != nil {
		logger.Fatalf("migrations failed: %v", err)
	}

	if redisURL := config.RedisURL(); redisURL != "" {
		if err := cache.ConnectRedis(redisURL); err != nil {
			logger.WithError(err).Warn("redis unavailable, session cache disabled")
		}
	}

	matches := game.NewManager(logger, game.DefaultConfig())
	resumeSvc := resume.NewService()
	gateway := handlers.NewGateway(logger, matches, resumeSvc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway.StartSweeps(ctx)
	go sessionCleanup(ctx, logger)

	mux := http.NewServeMux()

	// The WS route is mounted bare: middleware that wraps the response
	// writer would hide http.Hijacker from the upgrade.
	mux.HandleFunc("/ws", handlers.WSHandler(logger, gateway))

	api := func(h http.Handler) http.Handler {
		return middleware.Log(logger)(middleware.Recover(logger)(h))
	}
	route := func(path string, h http.HandlerFunc) {
		mux.Handle(path, api(h))
	}

	route("/healthz", handlers.HealthzHandler)
	route("/auth/telegram", handlers.AuthTelegramHandler(logger))

	route("/me", handlers.MeHandler)
	route("/me/nickname", handlers.SetNicknameHandler)
	route("/wallet", handlers.WalletHandler)

	route("/rooms/create", handlers.CreateRoomHandler)
	route("/rooms/join", handlers.JoinRoomHandler)
	route("/rooms/ready", handlers.ReadyRoomHandler)
	route("/rooms/start", handlers.StartRoomHandler)
	route("/rooms/leave", handlers.LeaveRoomHandler)
	route("/rooms/list", handlers.ListRoomsHandler)
	route("/rooms/info", handlers.RoomInfoHandler)

	route("/friends/add", handlers.AddFriendHandler)
	route("/friends/respond", handlers.RespondFriendHandler)
	route("/friends/list", handlers.ListFriendsHandler)
	route("/friends/requests", handlers.ListFriendRequestsHandler)

	route("/resume/eligibility", handlers.ResumeEligibilityHandler(gateway))
	route("/resume/consume", handlers.ResumeConsumeHandler(gateway))

	route("/internal/rooms/finalize", handlers.InternalFinalizeRoomHandler(gateway))

	srv := &http.Server{
		Addr:              ":" + config.Port(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown incomplete")
	}
	database.DB.Close()
}

// sessionCleanup purges expired session rows hourly.
func sessionCleanup(ctx context.Context, logger *logrus.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := database.DeleteExpiredSessions(ctx); err != nil {
				logger.WithError(err).Warn("session cleanup failed")
			}
		}
	}
}

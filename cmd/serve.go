package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"qteams/config"
	"qteams/logging"
	"qteams/middleware"
	"qteams/routes"
	"qteams/services"
	"qteams/store"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the database and run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides server.port)")
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	if cfg.UsesDefaultSecret() {
		log.Warn("JWT secret is the built-in default; set JWT_SECRET in production")
	}

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	st := store.New(db)

	notifier := services.NewMultiNotifier()
	teamService := services.NewTeamService(st, notifier, log)
	hub := services.NewHub(teamService, log)
	notifier.Add(hub)

	redisClient, err := config.InitRedis(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()

		cache := services.NewTeamCache(redisClient, cfg.Redis.StateTTL, log)
		teamService.SetCache(cache)
		notifier.Add(cache)

		// Events from other instances reach only the local hub; they
		// already refreshed the cache themselves.
		relay := services.NewTeamRelay(redisClient, log)
		if err := relay.Start(ctx, hub); err != nil {
			return err
		}
		notifier.Add(relay)
		log.Info("redis enabled", "instance", relay.ID())
	}

	if cfg.Discord.Enabled() {
		session, err := services.NewDiscordSession(cfg.Discord.Token)
		if err != nil {
			return err
		}
		discord := services.NewDiscordNotifier(session, cfg.Discord.ChannelID, log)
		go discord.Run(ctx)
		notifier.Add(discord)
		log.Info("discord notifications enabled", "channel_id", cfg.Discord.ChannelID)
	}

	go hub.Run(ctx)

	if logging.ParseLevel(cfg.Log.Level) > logging.ParseLevel(logging.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(log), middleware.CORS(cfg.Server.AllowedOrigins))

	routes.SetupRoutes(router, routes.Dependencies{
		AuthService:    services.NewAuthService(st, cfg.JWT.Secret, cfg.JWT.TTL),
		TopicService:   services.NewTopicService(st),
		TeamService:    teamService,
		Hub:            hub,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

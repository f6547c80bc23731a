package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ecoaction/internal/cache"
	"ecoaction/internal/config"
	"ecoaction/internal/database"
	"ecoaction/internal/handler"
	"ecoaction/internal/mail"
	"ecoaction/internal/queue"
	appredis "ecoaction/internal/redis"
	"ecoaction/internal/repository"
	"ecoaction/internal/service"
	"ecoaction/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// 3. Optional Redis: leaderboard cache, OTP throttle and activity stream
	var (
		leaderboard cache.LeaderboardCache
		throttle    cache.RequestThrottle
		publisher   queue.Publisher
		consumer    queue.Consumer
	)
	if cfg.RedisURL != "" {
		rc, err := appredis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()

		leaderboard = cache.NewLeaderboardCache(rc.Client, logger)
		throttle = cache.NewRequestThrottle(rc.Client, cfg.OTPMaxRequests, cfg.OTPRequestWindow)
		publisher = queue.NewPublisher(rc.Client, logger)
		consumer = queue.NewConsumer(rc.Client, logger)
		logger.Info("redis connected")
	} else {
		logger.Warn("REDIS_URL not set; leaderboard cache, OTP throttle and background workers disabled")
	}

	mailer, err := mail.NewMailer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to configure mailer: %w", err)
	}

	var store service.ObjectStore
	r2, err := service.NewR2Client(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to configure R2: %w", err)
	}
	if r2 != nil {
		store = r2
	} else {
		logger.Warn("R2 not configured; avatar uploads disabled")
	}

	// 4. Wire services
	svc := newServices(db, cfg, logger, mailer, store, leaderboard, throttle, publisher)

	// 5. Background workers
	if consumer != nil {
		var notifier worker.FriendNotifier
		if cfg.ExpoPushEnabled {
			push := service.NewExpoPushClient(service.ExpoPushURL, logger)
			notifier = service.NewNotificationService(svc.devices, svc.users, push, logger)
		}

		managerCfg := worker.DefaultManagerConfig()
		managerCfg.WorkerCount = cfg.WorkerCount
		manager := worker.NewManager(consumer, worker.NewHandler(leaderboard, svc.users, notifier, logger), managerCfg, logger)
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		defer manager.Stop()
	}

	// 6. HTTP server
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := NewRouter(RouterConfig{
		AuthHandler:       handler.NewAuthHandler(svc.auth, svc.user, cookiesSecure(cfg)),
		UserHandler:       handler.NewUserHandler(svc.user, svc.media),
		FriendshipHandler: handler.NewFriendshipHandler(svc.friendship),
		ActionHandler:     handler.NewActionHandler(svc.ledger),
		ImageHandler:      handler.NewImageHandler(svc.image, svc.ledger),
		Tokens:            svc.auth,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		Logger:            logger,
		Registry:          registry,
	})

	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

type services struct {
	users   repository.UserRepository
	devices repository.DeviceTokenRepository

	auth       *service.AuthService
	user       *service.UserService
	friendship *service.FriendshipService
	ledger     *service.LedgerService
	image      *service.ImageService
	media      *service.MediaService
}

func newServices(
	db *sqlx.DB,
	cfg *config.Config,
	logger *slog.Logger,
	mailer mail.Mailer,
	store service.ObjectStore,
	leaderboard cache.LeaderboardCache,
	throttle cache.RequestThrottle,
	publisher queue.Publisher,
	authOpts ...service.AuthOption,
) *services {
	users := repository.NewUserRepository(db)
	devices := repository.NewDeviceTokenRepository(db)
	friendships := repository.NewFriendshipRepository(db)
	actions := repository.NewActionRepository(db)
	images := service.NewImageService(repository.NewImageRepository(db), db, logger)
	authOpts = append([]service.AuthOption{service.WithPublisher(publisher)}, authOpts...)

	return &services{
		users:      users,
		devices:    devices,
		auth:       service.NewAuthService(users, mailer, throttle, cfg, logger, authOpts...),
		user:       service.NewUserService(users, devices, leaderboard, publisher, logger),
		friendship: service.NewFriendshipService(friendships, users, db, publisher, logger),
		ledger:     service.NewLedgerService(actions, images, users, db, publisher, logger),
		image:      images,
		media:      service.NewMediaService(store, cfg, users, logger),
	}
}

// cookiesSecure reports whether the session cookie should be HTTPS only.
// Local SQLite runs are assumed to be plain HTTP development servers.
func cookiesSecure(cfg *config.Config) bool {
	return cfg.DBDriver != config.DriverSQLite
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

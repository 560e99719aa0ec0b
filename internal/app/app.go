package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/syncroom/server/internal/controller"
	connInmemory "github.com/syncroom/server/internal/repository/connection/inmemory"
	roomInmemory "github.com/syncroom/server/internal/repository/room/inmemory"
	"github.com/syncroom/server/internal/repository/session"
	sessionInmemory "github.com/syncroom/server/internal/repository/session/inmemory"
	sessionRedis "github.com/syncroom/server/internal/repository/session/redis"
	"github.com/syncroom/server/internal/service/room"
	"github.com/syncroom/server/pkg/ctxlogger"
	"github.com/syncroom/server/pkg/redisclient"
)

const sessionExpiration = 24 * time.Hour

type AppConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	LogLevel            string `json:"log_level"`
	BroadcastIntervalMs int    `json:"broadcast_interval_ms"`
	// RedisHost selects the session store: when set, sessions survive server
	// restarts in redis; when empty, they live in process memory.
	RedisHost     string `json:"redis_host"`
	RedisPort     int    `json:"redis_port"`
	RedisPassword string `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be in range 1-65535")
	}
	if cfg.BroadcastIntervalMs < 1 {
		return fmt.Errorf("broadcast interval must be greater than 0")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	var sessionRepo interface {
		SetSession(ctx context.Context, params *session.SetSessionParams) error
		GetSession(ctx context.Context, token string) (session.Session, error)
	}
	if cfg.RedisHost != "" {
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer rc.Close()

		sessionRepo = sessionRedis.NewRepo(rc, sessionExpiration)
	} else {
		sessionRepo = sessionInmemory.NewRepo()
	}

	roomRepo := roomInmemory.NewRepo()
	connectionRepo := connInmemory.NewRepo()
	roomService := room.NewService(roomRepo, sessionRepo, clockwork.NewRealClock(), logger, &room.Config{
		BroadcastInterval: time.Duration(cfg.BroadcastIntervalMs) * time.Millisecond,
	})
	controller := controller.NewController(roomService, connectionRepo, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/broadcast"
	"taskboard/domain"
	"taskboard/storage"
)

func main() {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		logger.SetLevel(log.DebugLevel)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	var (
		store      domain.Store
		activities domain.ActivityLog
	)
	switch backend := envOr("STORAGE_BACKEND", "sqlite"); backend {
	case "sqlite":
		db, err := storage.OpenSQLite(envOr("SQLITE_PATH", "taskboard.db"))
		if err != nil {
			logger.Fatalf("sqlite: %v", err)
		}
		defer db.Close()
		store, activities = db, db
	case "tables":
		if connStr == "" {
			logger.Fatal("missing STORAGE_CONNECTION_STRING")
		}
		t, err := storage.NewTables(connStr, tableNames())
		if err != nil {
			logger.Fatalf("tables: %v", err)
		}
		store, activities = t, t
	default:
		logger.Fatalf("invalid STORAGE_BACKEND %q", backend)
	}

	if queue := os.Getenv("AUDIT_QUEUE"); queue != "" {
		if connStr == "" {
			logger.Fatal("AUDIT_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		aq, err := storage.NewAuditQueue(activities, connStr, queue, logger)
		if err != nil {
			logger.Fatalf("audit queue: %v", err)
		}
		activities = aq
	}

	hub := broadcast.NewHub(logger)
	defer hub.Close()
	var fanout domain.Publisher = hub
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(redisOptions(redisConn))
		defer rc.Close()
		store = storage.NewCache(store, rc, envDuration(logger, "BOARD_CACHE_TTL", 5*time.Minute))
		relay := broadcast.NewRedisRelay(rc, envOr("BOARD_EVENTS_CHANNEL", "board-events"), hub, logger)
		hub.Route(relay)
		go relay.Run(ctx)
		fanout = relay
	}
	dispatcher := broadcast.NewDispatcher(fanout, broadcast.DispatchConfig{
		Workers:        envInt(logger, "BROADCAST_WORKERS", 8),
		Buffer:         envInt(logger, "BROADCAST_BUFFER", 1024),
		HandoffTimeout: envDuration(logger, "BROADCAST_HANDOFF_TIMEOUT", 15*time.Millisecond),
	}, logger)
	defer dispatcher.Close()

	svc := domain.NewService(store, activities, dispatcher, logger)
	auth := newAuth(logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.SessionHeader},
	}))
	ws := broadcast.Handler(hub, auth, svc, broadcast.SessionConfig{
		SendBuffer: envInt(logger, "SESSION_SEND_BUFFER", 64),
	}, logger)
	api.Register(e, svc, auth, ws, logger)

	listenAddr := ":4000"
	if v, ok := os.LookupEnv("LISTEN_ADDR"); ok {
		listenAddr = v
	} else if v, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + v
	}

	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()
	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
}

func newAuth(logger *log.Logger) *api.Auth {
	if os.Getenv("LOCAL_AUTH_MODE") != "" || os.Getenv("AUTH0_TEST_MODE") == "1" {
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH0_AUDIENCE")
	domainName := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || domainName == "" {
		logger.Fatal("missing Auth0 config")
	}
	jwks, err := keyfunc.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", domainName), keyfunc.Options{
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(err error) {
			logger.WithError(err).Warn("jwks refresh failed")
		},
	})
	if err != nil {
		logger.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domainName+"/")
}

func tableNames() storage.TableNames {
	return storage.TableNames{
		Boards:     envOr("BOARDS_TABLE", "boards"),
		Lists:      envOr("LISTS_TABLE", "lists"),
		Cards:      envOr("CARDS_TABLE", "cards"),
		Comments:   envOr("COMMENTS_TABLE", "comments"),
		Activities: envOr("ACTIVITIES_TABLE", "activities"),
	}
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "password":
			opts.Password = v
		case "ssl":
			if strings.EqualFold(v, "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(logger *log.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Fatalf("invalid %s: must be a positive integer", key)
	}
	return n
}

func envDuration(logger *log.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Fatalf("invalid %s: %v", key, v)
	}
	return d
}

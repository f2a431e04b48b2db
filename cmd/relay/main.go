package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"golang.org/x/sync/errgroup"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"ha-floorplan/internal/common/config"
	"ha-floorplan/internal/common/logging"
	"ha-floorplan/internal/common/middleware"
	"ha-floorplan/internal/relay/cache"
	"ha-floorplan/internal/relay/handlers"
	"ha-floorplan/internal/relay/proxy"
	"ha-floorplan/internal/relay/repository"
	"ha-floorplan/internal/relay/service"
)

// ============================================================
// Floorplan Relay
// ============================================================

const (
	maxUploadSize   = 20 << 20
	shutdownTimeout = 10 * time.Second
	proxyTimeout    = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal("relay stopped", "err", err)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ============================================================
	// Storage
	// ============================================================

	db, err := repository.OpenSQLite(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	repo := repository.New(db)
	if err := repo.Init(ctx); err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	if cfg.Storage.LegacyConfig != "" {
		importLegacy(ctx, repo, cfg.Storage.LegacyConfig, logger)
	}

	storage := service.NewFileStorage(cfg.Storage.UploadDir)
	if err := storage.EnsureDir(); err != nil {
		return err
	}

	hubCache, err := cache.Open(ctx, cfg.Cache.RedisURL, cfg.CacheTTL())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer hubCache.Close()

	// ============================================================
	// Hub
	// ============================================================

	wsURL, err := cfg.Hub.WebsocketURL()
	if err != nil {
		return fmt.Errorf("hub url: %w", err)
	}
	hubClient := service.NewHubClient(service.HubConfig{
		URL:       wsURL,
		Token:     cfg.Hub.APIKey,
		VerifySSL: cfg.Hub.VerifySSL,
		Reconnect: cfg.Hub.Reconnect(),
		Logger:    logger,
	})
	notifier := service.NewNotifier(logger)

	dumpDir := ""
	if cfg.Debug.WriteCollections {
		dumpDir = cfg.Debug.CollectionsDir
	}
	hubData := service.NewHubData(hubClient, hubCache, notifier, service.HubDataConfig{
		TTL:     cfg.CacheTTL(),
		DumpDir: dumpDir,
		Logger:  logger,
	})
	if err := hubData.Start(ctx); err != nil {
		return err
	}

	relay := handlers.NewRelayHandler(repo, hubData, notifier, storage, logger)
	health := handlers.NewHealthHandler(repo, hubClient)

	hubClient.OnConnect(func(ctx context.Context) {
		hubData.InvalidateTree(ctx)
		if err := hubData.ReloadStates(ctx); err != nil {
			logger.Warn("reload states after connect", "err", err)
		}
		relay.RefreshAll(ctx)
	})

	proxyClient := &http.Client{
		Timeout: proxyTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.Hub.VerifySSL}, //nolint:gosec // самоподписанные сертификаты хаба в локальной сети
		},
	}
	hubProxy := proxy.NewHubProxy(cfg.Hub.RESTURL(), cfg.Hub.APIKey, proxyClient, logger)

	// ============================================================
	// HTTP
	// ============================================================

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
		BodyLimit:    maxUploadSize,
		AppName:      "Floorplan Relay",
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))
	app.Use(middleware.Logger(os.Stdout, "/health/live", "/health/ready", "/health/startup"))
	app.Use(middleware.CORS(cfg.CORSOrigins))

	handlers.Routes{
		Relay:     relay,
		Health:    health,
		HubProxy:  hubProxy.Handler(),
		UploadDir: storage.Root(),
		ClientDir: existingDir(cfg.Storage.ClientDir),
	}.Mount(app)

	// ============================================================
	// Server Start
	// ============================================================

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := hubClient.Run(gctx)
		if errors.Is(err, service.ErrAuthInvalid) {
			return fmt.Errorf("hub rejected HA_API_KEY %s: %w", config.Redacted(cfg.Hub.APIKey), err)
		}
		return err
	})
	g.Go(func() error {
		logger.Info("starting relay",
			"addr", cfg.Addr(),
			"env", cfg.Environment,
			"hub", cfg.Hub.URL,
			"token", config.Redacted(cfg.Hub.APIKey),
		)
		health.MarkStarted()
		return app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	return g.Wait()
}

// importLegacy переносит позиции из файла старого формата. Ошибки
// отдельных планов не мешают старту.
func importLegacy(ctx context.Context, repo *repository.Repository, path string, logger *log.Logger) {
	file, err := repository.LoadLegacyFile(path)
	if err != nil {
		logger.Warn("legacy config not imported", "path", path, "err", err)
		return
	}
	n, err := repo.ImportLegacy(ctx, file)
	if err != nil {
		logger.Warn("legacy config partially imported", "path", path, "err", err)
	}
	logger.Info("legacy config imported", "path", path, "plans", n)
}

// existingDir возвращает dir, если каталог существует, иначе "".
func existingDir(dir string) string {
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		return dir
	}
	return ""
}

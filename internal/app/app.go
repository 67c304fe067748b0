package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"reader/internal/bot"
	"reader/internal/cache"
	"reader/internal/config"
	"reader/internal/openlibrary"
	"reader/internal/repository"
	"reader/internal/storage"
	"reader/internal/storage/ch"
	"reader/internal/storage/file"
	"reader/internal/storage/prefs"
	"reader/internal/storage/sqlite"
	"reader/internal/storage/stubs"
	"reader/migrations"
)

var _ repository.Remote = (*openlibrary.Client)(nil)
var _ bot.Library = (*repository.Repository)(nil)

// App represents the application
type App struct {
	config *config.Config
	logger *zap.Logger
	blobs  storage.BlobStore
	prefs  storage.Preferences
	repo   *repository.Repository
	bot    *bot.Bot
	server *http.Server
}

// New builds storage, the Open Library client and the repository
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger}

	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}

	client := openlibrary.NewClient(openlibrary.Config{
		BaseURL:           cfg.OpenLibraryBaseURL,
		Username:          cfg.Username,
		Session:           cfg.Session,
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
		Timeout:           cfg.HTTPTimeout,
	}, logger.Named("openlibrary"))

	a.repo = repository.New(
		client,
		cache.NewShelfStore(a.blobs, logger.Named("cache")),
		cache.NewListStore(a.blobs, logger.Named("cache")),
		a.prefs,
		logger.Named("repository"),
		repository.Options{
			ShelfStaleAfter: cfg.ShelfStaleAfter,
			ListStaleAfter:  cfg.ListStaleAfter,
			LoanTTL:         cfg.LoanTTL,
		},
	)
	return a, nil
}

// Repository returns the shelf repository front-ends drive
func (a *App) Repository() *repository.Repository {
	return a.repo
}

// initStorage opens the configured backend for cache documents and preferences
func (a *App) initStorage(ctx context.Context) error {
	cfg := a.config
	a.logger.Info("Opening storage", zap.String("backend", cfg.StorageBackend))

	switch cfg.StorageBackend {
	case config.BackendMemory:
		a.blobs = stubs.NewMockBlobStore()
		a.prefs = stubs.NewMockPreferences()

	case config.BackendFile:
		blobs, err := file.NewBlobStore(filepath.Join(cfg.DataDir, "cache"))
		if err != nil {
			return fmt.Errorf("failed to open cache directory: %w", err)
		}
		settings, err := prefs.Open(filepath.Join(cfg.DataDir, "settings.json"))
		if err != nil {
			return fmt.Errorf("failed to open settings: %w", err)
		}
		a.blobs, a.prefs = blobs, settings

	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLiteDSN)
		if err != nil {
			return err
		}
		a.blobs, a.prefs = store, storage.NewTypedPreferences(store)

	case config.BackendClickHouse:
		tlsStatus := "without TLS"
		if cfg.ClickHouseUseTLS {
			tlsStatus = "with TLS"
		}
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", cfg.ClickHouseHost),
			zap.Int("port", cfg.ClickHousePort),
			zap.String("database", cfg.ClickHouseDatabase),
			zap.String("user", cfg.ClickHouseUser),
			zap.String("tls", tlsStatus),
		)
		if err := a.migrateClickHouse(); err != nil {
			return err
		}
		db, err := ch.NewClickHouseDB(cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDatabase,
			cfg.ClickHouseUser, cfg.ClickHousePassword, cfg.ClickHouseUseTLS)
		if err != nil {
			return err
		}
		a.blobs, a.prefs = db, storage.NewTypedPreferences(db)

	default:
		return fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	return nil
}

func (a *App) migrateClickHouse() error {
	cfg := a.config
	db, err := ch.OpenSQL(cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDatabase,
		cfg.ClickHouseUser, cfg.ClickHousePassword, cfg.ClickHouseUseTLS)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		return err
	}
	a.logger.Info("Database schema is up to date")
	return nil
}

// initBot initializes the Telegram bot
func (a *App) initBot() error {
	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.repo, a.config.AllowedUserIDs, a.logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created", zap.Int64s("allowed_users", a.config.AllowedUserIDs))

	a.bot = telegramBot
	return nil
}

// routes builds the health, webhook and Mini App endpoints
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		mode := "polling"
		if a.config.WebhookMode {
			mode = "webhook"
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Open Library Reader is running (mode: %s)", mode)
	})

	if a.bot == nil {
		return mux
	}

	if a.config.WebhookMode {
		mux.HandleFunc(bot.WebhookPath, a.bot.WebhookHandler(a.config.WebhookSecret))
	}

	bot.NewHTTPServer(a.bot).RegisterRoutes(mux)
	return mux
}

// RunBot starts the Telegram front-end and the HTTP server and blocks until
// ctx is cancelled
func (a *App) RunBot(ctx context.Context) error {
	if err := a.config.ValidateBot(); err != nil {
		return err
	}
	if err := a.initBot(); err != nil {
		return err
	}

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL, a.config.WebhookSecret); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
	} else {
		go func() {
			if err := a.bot.Start(); err != nil {
				errCh <- fmt.Errorf("bot: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
	case err := <-errCh:
		a.logger.Error("Front-end stopped", zap.Error(err))
		a.shutdownServer()
		return err
	}

	a.shutdownServer()
	return nil
}

func (a *App) shutdownServer() {
	if a.bot != nil {
		a.bot.Stop()
	}
	if a.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
}

// Close releases storage handles
func (a *App) Close() error {
	var errs []error
	if a.prefs != nil {
		errs = append(errs, a.prefs.Close())
	}
	if a.blobs != nil {
		errs = append(errs, a.blobs.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("Error closing storage", zap.Error(err))
		return err
	}
	a.logger.Info("Shutdown complete")
	return nil
}

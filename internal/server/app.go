// Package server wires the application together: configuration, database,
// object store, mailer, services and the HTTP edge, plus graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/logging"
	"github.com/yerakh/cloudvault/internal/server/auth"
	"github.com/yerakh/cloudvault/internal/server/config"
	"github.com/yerakh/cloudvault/internal/server/httpapi"
	"github.com/yerakh/cloudvault/internal/server/mailer"
	"github.com/yerakh/cloudvault/internal/server/objectstore"
	"github.com/yerakh/cloudvault/internal/server/repositories/repomanager"
	"github.com/yerakh/cloudvault/internal/server/services"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	identity *services.Identity
	storage  *services.Storage
	sweeper  *services.Sweeper
	edge     *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := objectstore.NewS3Client(ctx, objectstore.Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		SignedURLTTL: cfg.SignedURLTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	mail := mailer.NewSMTPSender(mailer.Config{
		Server:   cfg.SMTPServer,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		AppURL:   cfg.AppURL,
	})

	secret := []byte(cfg.SecretKey)
	google := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL, nil)

	ledger := services.NewLedger(db, repos, secret,
		cfg.AccessTokenValidity, cfg.RefreshTokenValidity, mail, logger)
	identity := services.NewIdentity(db, repos, ledger, mail, google, secret, logger)
	storage := services.NewStorage(db, repos, store, common.StorageQuotaBytes, logger)
	sweeper := services.NewSweeper(storage, cfg.SweepInterval, cfg.StaleUploadMaxAge, logger)

	edge := httpapi.NewServer(identity, storage, secret, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		identity: identity,
		storage:  storage,
		sweeper:  sweeper,
		edge:     edge,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.edge.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "error", err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server error", "error", err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}

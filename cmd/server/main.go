package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"

	"tunefetch/internal/app"
	"tunefetch/internal/config"
	"tunefetch/internal/downloader"
	apphttp "tunefetch/internal/http"
	"tunefetch/internal/library"
	"tunefetch/internal/matching"
	"tunefetch/internal/repository/sqlite"
	"tunefetch/internal/service"
	"tunefetch/internal/tagging"
)

const tagTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := app.Logger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Download.DataDir, 0o755); err != nil {
		logger.Fatalf("create data dir: %v", err)
	}
	lock := flock.New(filepath.Join(cfg.Download.DataDir, "tunefetch.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		logger.Fatalf("acquire data dir lock: %v", err)
	}
	if !locked {
		logger.Fatalf("another server is already using %s", cfg.Download.DataDir)
	}
	defer lock.Unlock()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	jobRepo := sqlite.NewJobRepository(db)
	if err := jobRepo.Init(ctx); err != nil {
		logger.Fatalf("init job repository: %v", err)
	}
	jobService := service.NewJobService(jobRepo)

	candidateCache := app.Cache(ctx, cfg, logger)
	defer candidateCache.Close()

	media, err := app.MediaSource(cfg, candidateCache, logger)
	if err != nil {
		logger.Fatalf("setup media source: %v", err)
	}

	deps := downloader.Deps{
		Jobs:   jobService,
		Media:  media,
		Tagger: tagging.NewID3Tagger(tagTimeout),
		Engine: matching.NewEngine(app.MatchingConfig(cfg)),
	}

	// Unset collaborators must stay untyped nil behind their interfaces.
	var catalog apphttp.Catalog
	spotify, err := app.Catalog(cfg)
	if err != nil {
		logger.Warnf("catalog disabled: %v", err)
	} else {
		deps.Catalog = spotify
		catalog = spotify
	}

	if cfg.Library.MusicPath != "" {
		deps.Publisher = library.NewNavidrome(library.Config{
			MusicPath: cfg.Library.MusicPath,
			APIURL:    cfg.Library.APIURL,
			Username:  cfg.Library.Username,
			Password:  cfg.Library.Password,
		})
	}

	if cfg.Storage.Bucket != "" {
		storageSvc, err := app.Storage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
		deps.Store = storageSvc
	}

	manager := downloader.NewManager(downloader.Config{
		DataDir:             cfg.Download.DataDir,
		MaxConcurrent:       cfg.Download.MaxConcurrent,
		AudioFormat:         cfg.Download.OutputFormat,
		RequireConfirmation: !cfg.Matching.AutoAccept,
		PresignTTL:          cfg.Storage.PresignTTL,
		Logger:              logger,
	}, deps)

	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start manager: %v", err)
	}
	if n, err := manager.Recover(ctx); err != nil {
		logger.Warnf("recover jobs: %v", err)
	} else if n > 0 {
		logger.Infof("marked %d interrupted jobs as failed", n)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(jobService, manager, catalog, media, apphttp.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		JWTSecret:   cfg.Auth.JWTSecret,
		LibraryPath: cfg.Library.MusicPath,
		Logger:      logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	manager.Shutdown()

	logger.Info("bye")
}

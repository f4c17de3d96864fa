package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bryanwahyu/invoice-audit/internal/application"
	appai "github.com/bryanwahyu/invoice-audit/internal/application/ai"
	appaudit "github.com/bryanwahyu/invoice-audit/internal/application/audit"
	appcomments "github.com/bryanwahyu/invoice-audit/internal/application/comments"
	appdatasets "github.com/bryanwahyu/invoice-audit/internal/application/datasets"
	"github.com/bryanwahyu/invoice-audit/internal/application/importer"
	"github.com/bryanwahyu/invoice-audit/internal/config"
	"github.com/bryanwahyu/invoice-audit/internal/domain/ai"
	"github.com/bryanwahyu/invoice-audit/internal/domain/comments"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	aiclient "github.com/bryanwahyu/invoice-audit/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/invoice-audit/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/invoice-audit/internal/infra/db/postgres"
	sqlitep "github.com/bryanwahyu/invoice-audit/internal/infra/db/sqlite"
	"github.com/bryanwahyu/invoice-audit/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/invoice-audit/internal/infra/storage"
	"github.com/bryanwahyu/invoice-audit/internal/logger"
	"github.com/bryanwahyu/invoice-audit/internal/middleware"
)

type repositories struct {
	db       *sql.DB
	datasets datasets.Repository
	comments comments.Repository
}

// openRepositories connects the configured driver and makes sure the schema exists
func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := pgp.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		if err := pgp.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &repositories{db: db, datasets: pgp.NewDatasetRepository(db), comments: pgp.NewCommentRepository(db)}, nil
	case config.DriverSQLite:
		db, err := sqlitep.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		return &repositories{db: db, datasets: sqlitep.NewDatasetRepository(db), comments: sqlitep.NewCommentRepository(db)}, nil
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		if err := mysqlp.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &repositories{db: db, datasets: mysqlp.NewDatasetRepository(db), comments: mysqlp.NewCommentRepository(db)}, nil
	default:
		return nil, errors.Newf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// countingUploader feeds the imported-datasets counter
type countingUploader struct {
	importer.Uploader
}

func (u countingUploader) Upload(ctx context.Context, cmd appdatasets.UploadCommand) (*datasets.Dataset, error) {
	ds, err := u.Uploader.Upload(ctx, cmd)
	if err == nil {
		middleware.AddDatasetsImported(1)
	}
	return ds, err
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer lg.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		lg.Fatalw("database connect error", "driver", cfg.Database.Driver, "error", err)
	}
	defer repos.db.Close()

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		lg.Fatalw("minio init error", "endpoint", cfg.Minio.Endpoint, "error", err)
	}

	// init services
	clock := application.SystemClock{}
	dsSvc := &appdatasets.Service{
		Repo:  repos.datasets,
		Store: store,
		Clock: clock,
	}
	auditSvc := appaudit.NewService(dsSvc, time.Duration(cfg.Cache.TTLMinutes)*time.Minute, lg.With("component", "audit"))
	dsSvc.Invalidator = auditSvc

	var reviewer ai.Client
	if cfg.AIEnabled() {
		reviewer = aiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
		lg.Infow("ai seller review enabled", "model", cfg.OpenAI.Model)
	}

	if cfg.ImportEnabled() {
		sched, err := importer.ParseSchedule(cfg.Import.Schedule)
		if err != nil {
			lg.Fatalw("import schedule error", "schedule", cfg.Import.Schedule, "error", err)
		}
		im := &importer.Importer{
			Dir:      cfg.Import.Dir,
			Tenant:   cfg.Import.Tenant,
			Uploader: countingUploader{dsSvc},
			Log:      lg.With("component", "importer"),
		}
		go im.Run(ctx, sched)
		lg.Infow("import inbox watching", "dir", cfg.Import.Dir, "schedule", cfg.Import.Schedule, "tenant", cfg.Import.Tenant)
	}

	// init router
	handler := httpserver.NewRouter(httpserver.Services{
		Datasets: dsSvc,
		Audit:    auditSvc,
		Comments: appcomments.NewService(repos.comments, clock),
		AI:       appai.NewService(reviewer, auditSvc),
	}, httpserver.Options{
		APIKeys:        cfg.Server.APIKeys,
		RateLimit:      cfg.Server.RateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		HealthCheckers: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: repos.db},
			"storage":  &middleware.StorageHealthChecker{Store: store},
		},
		Log:  lg.With("component", "http"),
		Stop: ctx.Done(),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		lg.Infow("server listening", "addr", addr, "driver", cfg.Database.Driver, "auth", len(cfg.Server.APIKeys) > 0)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Errorw("server error", "error", err)
			cancel()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	lg.Infow("shutting down server...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		lg.Errorw("shutdown error", "error", err)
	}
}

// Package server initializes and runs the diary server. It opens the
// database and envelope stores, builds the session registry and services,
// and serves them over gRPC until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/logging"
	"github.com/dmitrijs2005/diarykeeper/internal/server/config"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/diarykeeper/internal/server/services"
	"github.com/dmitrijs2005/diarykeeper/internal/server/session"
	"github.com/dmitrijs2005/diarykeeper/internal/server/store"
	"github.com/dmitrijs2005/diarykeeper/internal/timex"

	gs "github.com/dmitrijs2005/diarykeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	closers  []io.Closer
	sessions *session.Registry

	userService     *services.UserService
	diaryService    *services.DiaryService
	recoveryService *services.RecoveryService
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	warnings, err := c.Validate()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for _, w := range warnings {
		logger.Warn(ctx, w)
	}

	conn, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	db := dbx.NewSQLDB(conn)

	st, closers, err := openStore(ctx, c, db)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sessions := session.NewRegistry(rm.KeyMaterial(db), session.Options{
		Timeout:    c.SessionTimeout,
		Iterations: c.KDFIterations,
		Logger:     logger,
	})

	return &App{
		config:          c,
		logger:          logger,
		db:              conn,
		closers:         closers,
		sessions:        sessions,
		userService:     services.NewUserService(db, rm, c, logger),
		diaryService:    services.NewDiaryService(db, rm, st, sessions, c, logger),
		recoveryService: services.NewRecoveryService(db, rm, timex.SystemClock{}, logger),
	}, nil
}

// openStore builds the envelope store selected by c. Media envelopes go to
// S3 when configured; everything else uses the main backend.
func openStore(ctx context.Context, c *config.Config, db dbx.DBTX) (store.EnvelopeStore, []io.Closer, error) {
	var (
		st      store.EnvelopeStore
		closers []io.Closer
	)

	switch c.StoreBackend {
	case config.StoreMemory:
		st = store.NewMemoryStore()
	case config.StoreBadger:
		b, err := store.OpenBadger(c.BadgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		st = b
		closers = append(closers, b)
	case config.StorePostgres:
		st = store.NewPostgresStore(db)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.MediaBackend != config.MediaS3 {
		return st, closers, nil
	}

	media, err := store.NewS3Store(ctx, store.S3Config{
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
	})
	if err != nil {
		for _, cl := range closers {
			cl.Close()
		}
		return nil, nil, fmt.Errorf("open s3: %w", err)
	}
	return &store.Router{Default: st, Prefix: models.MediaStorePrefix, Prefixed: media}, closers, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger,
		app.userService, app.diaryService, app.recoveryService,
		app.config.SecretKey, app.config.MaxMediaSize)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a signal arrives. Every diary is
// locked and every store closed before it returns.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sessions.RunSweeper(ctx, app.config.SweepInterval)
	}()

	wg.Wait()

	app.logger.Info(context.WithoutCancel(ctx), "Stopping app...")
	return app.close(context.WithoutCancel(ctx))
}

// close locks every diary, then releases the stores and the database.
func (app *App) close(ctx context.Context) error {
	app.sessions.LockAll(ctx)

	var errs []error
	for _, c := range app.closers {
		errs = append(errs, c.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}

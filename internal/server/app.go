// Package server wires the profile API: Postgres for users, Redis or memory
// for revoked credentials, AMQP for profile events and S3 for avatars. It
// serves the REST API and the gRPC health service until a signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/greenmission/internal/logging"
	"github.com/dmitrijs2005/greenmission/internal/server/auth"
	"github.com/dmitrijs2005/greenmission/internal/server/config"
	"github.com/dmitrijs2005/greenmission/internal/server/events"
	"github.com/dmitrijs2005/greenmission/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/greenmission/internal/server/repositories/revocations"
	"github.com/dmitrijs2005/greenmission/internal/server/services"
	"github.com/dmitrijs2005/greenmission/internal/server/storage"

	gs "github.com/dmitrijs2005/greenmission/internal/server/grpc"
	hs "github.com/dmitrijs2005/greenmission/internal/server/http"
)

const healthCheckInterval = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *redis.Client
	profile *services.ProfileService
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	var rev revocations.Repository = revocations.NewMemoryRepository()
	if c.RedisAddr != "" {
		rc, err := revocations.NewRedisClient(ctx, c.RedisAddr, c.RedisPassword)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.redis = rc
		rev = revocations.NewRedisRepository(rc)
	} else {
		logger.Warn(ctx, "REDIS_ADDR not set, revoked tokens are kept in memory")
	}

	var pub events.Publisher = events.Nop{}
	if c.AMQPURL != "" {
		pub = events.NewAMQPPublisher(c.AMQPURL, logger)
	}

	verifier, err := newVerifier(ctx, c)
	if err != nil {
		app.close()
		return nil, err
	}

	presigner := storage.NewS3Presigner(storage.Settings{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
		Expires:      c.AvatarUploadValidity,
	})

	app.profile = services.NewProfileService(db, rm, verifier, rev, pub, presigner, c, logger)
	return app, nil
}

// newVerifier accepts Firebase ID tokens when Firebase is configured and
// plain OIDC ID tokens when a client id is set. At least one is required.
func newVerifier(ctx context.Context, c *config.Config) (auth.TokenVerifier, error) {
	var vs auth.MultiVerifier

	if c.FirebaseCredentialsFile != "" || c.FirebaseProjectID != "" {
		fv, err := auth.NewFirebaseVerifier(ctx, c.FirebaseCredentialsFile, c.FirebaseProjectID)
		if err != nil {
			return nil, fmt.Errorf("firebase: %w", err)
		}
		vs = append(vs, fv)
	}
	if c.OIDCClientID != "" {
		ov, err := auth.NewOIDCVerifier(ctx, c.OIDCIssuer, c.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("oidc: %w", err)
		}
		vs = append(vs, ov)
	}

	if len(vs) == 0 {
		return nil, errors.New("no identity provider configured: set FIREBASE_PROJECT_ID or OIDC_CLIENT_ID")
	}
	return vs, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := hs.NewRouter(app.profile, hs.RouterConfig{
		CORSOrigins:    app.config.CORSOrigins,
		LoginRateLimit: app.config.LoginRateLimit,
		LoginBurst:     app.config.LoginBurst,
	}, app.logger)

	s := hs.NewHTTPServer(app.config.HTTPAddr, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.db.PingContext, healthCheckInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	if app.config.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(context.Background(), "redis close", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(context.Background(), "db close", "error", err)
	}
}

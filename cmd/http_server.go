package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	activityPostgres "github.com/frahmantamala/clinic-management/internal/activity/postgres"
	"github.com/frahmantamala/clinic-management/internal/appointment"
	appointmentPostgres "github.com/frahmantamala/clinic-management/internal/appointment/postgres"
	"github.com/frahmantamala/clinic-management/internal/auth"
	authPostgres "github.com/frahmantamala/clinic-management/internal/auth/postgres"
	"github.com/frahmantamala/clinic-management/internal/cache"
	"github.com/frahmantamala/clinic-management/internal/dashboard"
	dashboardPostgres "github.com/frahmantamala/clinic-management/internal/dashboard/postgres"
	"github.com/frahmantamala/clinic-management/internal/media"
	mediaPostgres "github.com/frahmantamala/clinic-management/internal/media/postgres"
	"github.com/frahmantamala/clinic-management/internal/patient"
	patientPostgres "github.com/frahmantamala/clinic-management/internal/patient/postgres"
	"github.com/frahmantamala/clinic-management/internal/transport"
	"github.com/frahmantamala/clinic-management/internal/transport/middleware"
	"github.com/frahmantamala/clinic-management/internal/transport/rest"
	"github.com/frahmantamala/clinic-management/internal/transport/swagger"
	"github.com/frahmantamala/clinic-management/internal/user"
	userPostgres "github.com/frahmantamala/clinic-management/internal/user/postgres"
	"github.com/frahmantamala/clinic-management/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

// Dependencies holds the shared infrastructure every command builds on.
type Dependencies struct {
	Config  *internal.Config
	DB      *sqlx.DB
	Gorm    *gorm.DB
	Redis   *redis.Client
	MediaFS afero.Fs
	Logger  *slog.Logger
}

// Services are the wired domain services.
type Services struct {
	Auth        *auth.Service
	User        *user.Service
	Patient     *patient.Service
	Appointment *appointment.Service
	Media       *media.Service
	Dashboard   *dashboard.Service
	Recorder    *activity.Recorder
}

func startHTTPServer() {
	deps, err := initializeDependencies(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	services := buildServices(deps)
	router := setupRoutes(deps, services)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies, s *Services) *chi.Mux {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)

	var redisPinger rest.Pinger
	if deps.Redis != nil {
		redisPinger = cache.NewRedis(deps.Redis)
	}

	var spec *swagger.Spec
	if cfg.Server.OpenAPIPath != "" {
		loaded, err := swagger.Load(context.Background(), cfg.Server.OpenAPIPath)
		if err != nil {
			deps.Logger.Warn("OpenAPI document not served", "path", cfg.Server.OpenAPIPath, "error", err)
		} else {
			spec = loaded
		}
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router,
		rest.RouterConfig{
			AllowedOrigins: cfg.Server.Origins(),
			MediaPath:      cfg.Media.BaseURL,
			MediaFS:        afero.NewBasePathFs(deps.MediaFS, cfg.Media.Root),
		},
		rest.Handlers{
			Health:       rest.NewHealthHandler(deps.DB, redisPinger),
			Auth:         auth.NewHandler(base, s.Auth),
			RBAC:         auth.NewRBACAuthorization(nil, deps.Logger),
			LoginLimiter: middleware.NewIPRateLimiter(cfg.Security.LoginRatePerMinute, cfg.Security.LoginBurst, base),
			User:         user.NewHandler(base, s.User),
			Patient:      patient.NewHandler(base, s.Patient),
			Appointment:  appointment.NewHandler(base, s.Appointment),
			Media:        media.NewHandler(base, s.Media),
			Dashboard:    dashboard.NewHandler(base, s.Dashboard),
			OpenAPI:      spec,
		},
		deps.Logger)
	return router
}

func buildServices(deps *Dependencies) *Services {
	cfg := deps.Config
	lg := deps.Logger
	db := deps.Gorm

	var store cache.Store = cache.Nop{}
	if deps.Redis != nil {
		store = cache.NewRedis(deps.Redis)
	}

	recorder := activity.NewRecorder()
	aggregator := activity.NewAggregator(activityPostgres.NewActivityRepository(db))
	activityPostgres.RegisterSchemas(aggregator, db)

	s := &Services{Recorder: recorder}
	s.Dashboard = dashboard.NewService(dashboardPostgres.NewDashboardRepository(deps.DB), store, lg,
		dashboard.WithTTL(cfg.Redis.DashboardTTL))

	// owner checks resolve lazily; both services are assigned below
	s.Media = media.NewService(mediaPostgres.NewMediaRepository(db),
		media.NewStorage(deps.MediaFS, cfg.Media.Root, cfg.Media.BaseURL),
		recorder, lg,
		media.WithMaxSize(cfg.Media.MaxAvatarSize),
		media.WithOwner(activity.KindUser, func(ctx context.Context, id int64) error { return s.User.Exists(ctx, id) }),
		media.WithOwner(activity.KindPatient, func(ctx context.Context, id int64) error { return s.Patient.Exists(ctx, id) }))

	s.User = user.NewService(userPostgres.NewUserRepository(db), recorder, aggregator, lg,
		user.WithAvatars(s.Media),
		user.WithStatsInvalidator(s.Dashboard),
		user.WithBCryptCost(cfg.Security.BCryptCost))

	s.Patient = patient.NewService(patientPostgres.NewPatientRepository(db), recorder, aggregator, lg,
		patient.WithAvatars(s.Media),
		patient.WithStatsInvalidator(s.Dashboard),
		patient.WithBCryptCost(cfg.Security.BCryptCost))

	s.Appointment = appointment.NewService(appointmentPostgres.NewAppointmentRepository(db), recorder, aggregator, lg)

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration)
	s.Auth = auth.NewService(authPostgres.NewRepository(db), tokens, cfg.Security.BCryptCost, lg)

	return s
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db, config.Env)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps := &Dependencies{
		Config:  config,
		DB:      db,
		Gorm:    gdb,
		MediaFS: afero.NewOsFs(),
		Logger:  lg,
	}

	if err := deps.MediaFS.MkdirAll(config.Media.Root, 0o755); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}

	if config.Redis.Enabled() {
		client, err := cache.NewRedisClient(ctx, config.Redis)
		if err != nil {
			lg.Warn("Redis unavailable, dashboard cache disabled", "error", err)
		} else {
			deps.Redis = client
		}
	}

	return deps, nil
}

func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

// initGorm shares the sqlx connection pool with gorm.
func initGorm(db *sqlx.DB, env string) (*gorm.DB, error) {
	level := gormLogger.Warn
	if env != "production" {
		level = gormLogger.Info
	}
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
	})
}

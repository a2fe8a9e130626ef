package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/config"
	"github.com/roudayn-kouka/App4Doctors/internal/domain/account"
	"github.com/roudayn-kouka/App4Doctors/internal/domain/analysis"
	"github.com/roudayn-kouka/App4Doctors/internal/domain/dashboard"
	"github.com/roudayn-kouka/App4Doctors/internal/domain/patient"
	"github.com/roudayn-kouka/App4Doctors/internal/domain/prescription"
	"github.com/roudayn-kouka/App4Doctors/internal/domain/scheduling"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/blobstore"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/docstore"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/events"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/jobqueue"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/logging"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/websocket"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer) {
	return logging.New(logging.Options{Level: cfg.LogLevel, Console: cfg.IsDev(), File: cfg.LogFile})
}

// repositories holds one implementation per domain for the configured
// STORE_DRIVER.
type repositories struct {
	doctors       account.Repository
	patients      patient.Repository
	vitals        patient.VitalRepository
	appointments  scheduling.Repository
	prescriptions prescription.Repository
	analyses      analysis.Repository
	dashboard     dashboard.Repository
	tx            db.TxFunc
	health        echo.HandlerFunc
	close         func()
}

func pgRepositories(pool *pgxpool.Pool) *repositories {
	return &repositories{
		doctors:       account.NewRepoPG(pool),
		patients:      patient.NewRepoPG(pool),
		vitals:        patient.NewVitalRepoPG(pool),
		appointments:  scheduling.NewRepoPG(pool),
		prescriptions: prescription.NewRepoPG(pool),
		analyses:      analysis.NewRepoPG(pool),
		dashboard:     dashboard.NewRepoPG(pool),
		tx:            db.PoolTx(pool),
		health:        db.HealthHandler(pool),
		close:         pool.Close,
	}
}

// mongoRepositories runs without multi-document transactions; the unique
// indexes guard slot and email uniqueness instead.
func mongoRepositories(store *docstore.Store) *repositories {
	return &repositories{
		doctors:       account.NewRepoMongo(store),
		patients:      patient.NewRepoMongo(store),
		vitals:        patient.NewVitalRepoMongo(store),
		appointments:  scheduling.NewRepoMongo(store),
		prescriptions: prescription.NewRepoMongo(store),
		analyses:      analysis.NewRepoMongo(store),
		dashboard:     dashboard.NewRepoMongo(store),
		tx:            db.NoTx,
		health:        db.StoreHealthHandler("mongo", store, nil),
		close: func() {
			_ = store.Close(context.Background())
		},
	}
}

func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	switch cfg.StoreDriver {
	case "mongo":
		store, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		logger.Info().Str("database", cfg.MongoDB).Msg("connected to mongo")
		return mongoRepositories(store), nil
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return pgRepositories(pool), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// buildPublisher fans events out to the WebSocket hub and the optional broker.
func buildPublisher(cfg *config.Config, hub *websocket.Hub, logger zerolog.Logger) (events.Publisher, func(), error) {
	pubs := []events.Publisher{hub}
	closeFn := func() {}

	switch cfg.EventsDriver {
	case "mqtt":
		p, err := events.NewMQTTPublisher(events.MQTTConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, p)
		closeFn = p.Close
	case "kafka":
		p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, p)
		closeFn = p.Close
	}
	return events.NewFanout(pubs...), closeFn, nil
}

func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	key := []byte(cfg.JWTSecret)
	if cfg.IsDev() {
		devID, err := uuid.Parse(cfg.DevDoctorID)
		if err != nil {
			return nil, fmt.Errorf("DEV_DOCTOR_ID: %w", err)
		}
		return auth.DevAuthMiddleware(devID, key), nil
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
		Skipper:    auth.AuthSkipper,
	}), nil
}

type services struct {
	accounts      *account.Service
	patients      *patient.Service
	appointments  *scheduling.Service
	prescriptions *prescription.Service
	analyses      *analysis.Service
	dashboard     *dashboard.Service
}

func newServices(cfg *config.Config, repos *repositories, blobs blobstore.Store, queue jobqueue.Queue,
	publisher events.Publisher, logger zerolog.Logger) (*services, error) {
	policy, err := scheduling.ParseStatusPolicy(cfg.AppointmentStatusPolicy)
	if err != nil {
		return nil, err
	}

	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.AuthIssuer, cfg.JWTTTL)
	accounts := account.NewService(repos.doctors, issuer, 0, logger)
	patients := patient.NewService(repos.patients, repos.vitals, repos.tx, publisher, logger)

	return &services{
		accounts:      accounts,
		patients:      patients,
		appointments:  scheduling.NewService(repos.appointments, patients, repos.tx, policy, publisher, logger),
		prescriptions: prescription.NewService(repos.prescriptions, patients, accounts, publisher, logger),
		analyses: analysis.NewService(repos.analyses, blobs, patients, accounts, queue, publisher, logger, analysis.Config{
			ProcessingDelay: cfg.ProcessingDelay,
			MaxAttempts:     cfg.ProcessingMaxAttempts,
			MaxUploadBytes:  cfg.MaxUploadBytes,
		}),
		dashboard: dashboard.NewService(repos.dashboard, logger),
	}, nil
}

func (s *services) registerRoutes(api *echo.Group) {
	account.NewHandler(s.accounts).RegisterRoutes(api)
	patient.NewHandler(s.patients).RegisterRoutes(api)
	scheduling.NewHandler(s.appointments).RegisterRoutes(api)
	prescription.NewHandler(s.prescriptions).RegisterRoutes(api)
	analysis.NewHandler(s.analyses).RegisterRoutes(api)
	dashboard.NewHandler(s.dashboard).RegisterRoutes(api)
}

// backend bundles everything the serve and reconcile commands share.
type backend struct {
	repos      *repositories
	queue      *jobqueue.SQLiteQueue
	hub        *websocket.Hub
	svc        *services
	worker     *jobqueue.Worker
	reconciler *analysis.Reconciler
	closers    []func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (rt *backend, err error) {
	rt = &backend{}
	defer func() {
		if err != nil {
			rt.close()
			rt = nil
		}
	}()

	rt.repos, err = openRepositories(ctx, cfg, logger)
	if err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, rt.repos.close)

	blobs, err := blobstore.NewDiskStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return rt, err
	}

	rt.queue, err = jobqueue.NewSQLiteQueue(cfg.JobQueuePath)
	if err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, func() { _ = rt.queue.Close() })

	rt.hub = websocket.NewHub(logger)
	publisher, closePublisher, err := buildPublisher(cfg, rt.hub, logger)
	if err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, closePublisher)

	rt.svc, err = newServices(cfg, rt.repos, blobs, rt.queue, publisher, logger)
	if err != nil {
		return rt, err
	}

	rt.worker = jobqueue.NewWorker(rt.queue, jobqueue.WorkerConfig{Concurrency: cfg.ProcessingWorkers}, logger)
	analysis.NewProcessor(rt.svc.analyses, logger).Register(rt.worker)
	rt.reconciler = analysis.NewReconciler(rt.svc.analyses, cfg.ReconcileInterval, cfg.ReconcileStaleAfter, logger)
	return rt, nil
}

// close releases resources in reverse order of acquisition.
func (rt *backend) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/config"
	"github.com/eduaventuras/apiserver/internal/auth"
	"github.com/eduaventuras/apiserver/internal/db"
	"github.com/eduaventuras/apiserver/internal/handlers"
	"github.com/eduaventuras/apiserver/internal/i18n"
	"github.com/eduaventuras/apiserver/internal/logging"
	"github.com/eduaventuras/apiserver/internal/mailer"
	"github.com/eduaventuras/apiserver/internal/metrics"
	"github.com/eduaventuras/apiserver/internal/mq"
	"github.com/eduaventuras/apiserver/internal/recovery"
	"github.com/eduaventuras/apiserver/internal/services"
	"github.com/eduaventuras/apiserver/internal/storage"
	"github.com/eduaventuras/apiserver/internal/store"
	"github.com/eduaventuras/apiserver/internal/store/memory"
)

const (
	requestTimeout      = 60 * time.Second
	recoverySweepEvery  = 5 * time.Minute
	defaultPort         = 8080
	shutdownGracePeriod = 15 * time.Second
)

// Repositories groups the persistence layer the services run on.
type Repositories struct {
	Users     services.UserRepository
	Subjects  services.SubjectRepository
	Resources services.ResourceRepository
	Downloads services.DownloadRepository
}

// Deps are the collaborators a Server is assembled from. New builds them from
// configuration; tests pass in-memory ones to Build.
type Deps struct {
	Config        config.Config
	Logger        *logrus.Logger
	Metrics       *metrics.Metrics
	Repos         Repositories
	Objects       storage.ObjectStorage
	Queue         *mq.MQ
	RecoveryStore recovery.Store
	Bundle        *i18n.Bundle
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *logrus.Logger
	closers    []func() error
}

// New connects every backend selected in cfg and assembles the server.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log)
	var closers []func() error
	fail := func(err error) (*Server, error) {
		runClosers(logger, closers)
		return nil, err
	}

	repos, closeRepos, err := OpenRepositories(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("open datastore: %w", err))
	}
	closers = append(closers, closeRepos)

	objects, closeObjects, err := openObjectStorage(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("open object storage: %w", err))
	}
	closers = append(closers, closeObjects)
	if err := objects.EnsureBucket(ctx); err != nil {
		return fail(fmt.Errorf("prepare object storage: %w", err))
	}

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("open message queue: %w", err))
	}
	closers = append(closers, queue.Close)
	if cfg.MQ.Backend == "memory" {
		// Nothing outside this process can read an in-memory queue.
		closers = append(closers, startMailer(cfg, queue, logger))
	}

	recoveryStore, closeRecovery, err := openRecoveryStore(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("open recovery store: %w", err))
	}
	closers = append(closers, closeRecovery)

	bundle, err := i18n.Load()
	if err != nil {
		return fail(err)
	}

	srv, err := Build(Deps{
		Config:        cfg,
		Logger:        logger,
		Metrics:       metrics.New(prometheus.NewRegistry()),
		Repos:         repos,
		Objects:       objects,
		Queue:         queue,
		RecoveryStore: recoveryStore,
		Bundle:        bundle,
	})
	if err != nil {
		return fail(err)
	}
	srv.closers = append(closers, srv.closers...)
	return srv, nil
}

// Build wires services, handlers and middleware on top of deps.
func Build(deps Deps) (*Server, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if deps.Bundle == nil {
		bundle, err := i18n.Load()
		if err != nil {
			return nil, err
		}
		deps.Bundle = bundle
	}

	if deps.Queue == nil {
		deps.Queue = mq.New(mq.NewMemoryBackend(64), cfg.MQ.RecoveryChannel)
	}

	var closers []func() error
	recoveryStore := deps.RecoveryStore
	if recoveryStore == nil {
		recoveryStore = recovery.NewMemoryStore()
	}
	if memStore, ok := recoveryStore.(*recovery.MemoryStore); ok {
		sweepCtx, cancel := context.WithCancel(context.Background())
		go memStore.Run(sweepCtx, recoverySweepEvery)
		closers = append(closers, func() error { cancel(); return nil })
	}

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	documents := storage.NewDocumentStore(deps.Objects, cfg.Storage)
	registry := recovery.NewRegistry(recoveryStore, deps.Repos.Users, cfg.Recovery.TokenTTL, recovery.WithRecorder(m))

	userService := services.NewUserService(deps.Repos.Users, deps.Repos.Subjects, hasher, issuer, documents, logger.WithField("component", "users"))
	subjectService := services.NewSubjectService(deps.Repos.Subjects)
	resourceService := services.NewResourceService(deps.Repos.Resources, deps.Repos.Subjects, deps.Repos.Downloads, documents, m, logger.WithField("component", "resources"))
	passwordService := services.NewPasswordService(userService, registry, deps.Queue, cfg.Recovery.ResetURL, logger.WithField("component", "recovery"))
	statsService := services.NewStatsService(deps.Repos.Users, deps.Repos.Subjects, deps.Repos.Resources, deps.Repos.Downloads)
	reportService := services.NewReportService(statsService, subjectService, deps.Repos.Resources, deps.Bundle)

	gate := auth.NewGate(auth.DefaultClassifier(), issuer, deps.Repos.Users, logger.WithField("component", "gate"), m)
	handlerLog := logger.WithField("component", "http")

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		m.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(requestTimeout),
		gate.Middleware,
	)

	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", m.Handler())
	router.Route("/api-docs", func(r chi.Router) {
		handlers.DocsRouter(r, gate.Classifier())
	})

	statsHandler := handlers.NewStatsHandler(statsService, userService, reportService, deps.Bundle, handlerLog)
	router.Route("/api", func(r chi.Router) {
		r.Route("/usuarios", func(r chi.Router) {
			handlers.UserRouter(r, userService, handlerLog)
		})
		r.Route("/materias", func(r chi.Router) {
			handlers.SubjectRouter(r, subjectService, handlerLog)
		})
		r.Route("/recursos", func(r chi.Router) {
			handlers.ResourceRouter(r, resourceService, documents.MaxDocumentBytes(), handlerLog)
		})
		r.Route("/perfil", func(r chi.Router) {
			handlers.ProfileRouter(r, userService, resourceService, documents.MaxImageBytes(), handlerLog)
		})
		r.Route("/password", func(r chi.Router) {
			handlers.PasswordRouter(r, passwordService, deps.Bundle, handlerLog)
		})
		r.Route("/estadisticas", func(r chi.Router) {
			handlers.StatsRouter(r, statsHandler)
		})
		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, statsHandler)
		})
		r.Route("/idioma", func(r chi.Router) {
			handlers.I18nRouter(r, deps.Bundle)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = defaultPort
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		logger:     logger,
		closers:    closers,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	runClosers(s.logger, s.closers)
	return err
}

func startMailer(cfg config.Config, queue *mq.MQ, logger *logrus.Logger) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		bundle, err := i18n.Load()
		if err != nil {
			logger.WithError(err).Error("mailer disabled")
			return
		}
		sender := mailer.New(cfg.SMTP, bundle, logger.WithField("component", "mailer"))
		if err := queue.SubscribeRecovery(ctx, sender.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("recovery mail consumer stopped")
		}
	}()
	return func() error {
		cancel()
		<-done
		return nil
	}
}

func runClosers(logger logrus.FieldLogger, closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.WithError(err).Warn("failed to release backend")
		}
	}
}

// OpenRepositories connects the datastore selected by cfg.Database.Driver.
func OpenRepositories(ctx context.Context, cfg config.Config) (Repositories, func() error, error) {
	if cfg.Database.Driver == "memory" {
		mem := memory.New()
		return Repositories{
			Users:     mem.Users(),
			Subjects:  mem.Subjects(),
			Resources: mem.Resources(),
			Downloads: mem.Downloads(),
		}, func() error { return nil }, nil
	}
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return Repositories{}, nil, err
	}
	return Repositories{
		Users:     store.NewUserRepository(conn),
		Subjects:  store.NewSubjectRepository(conn),
		Resources: store.NewResourceRepository(conn),
		Downloads: store.NewDownloadRepository(conn),
	}, conn.Close, nil
}

func openObjectStorage(ctx context.Context, cfg config.Config) (storage.ObjectStorage, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, nil, err
		}
		return client, noop, nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		local, err := storage.NewLocalStorage(cfg.Storage.LocalRoot)
		if err != nil {
			return nil, nil, err
		}
		return local, noop, nil
	}
}

func openRecoveryStore(ctx context.Context, cfg config.Config) (recovery.Store, func() error, error) {
	if cfg.Recovery.Backend != "redis" {
		return recovery.NewMemoryStore(), func() error { return nil }, nil
	}
	client, err := recovery.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	return recovery.NewRedisStore(client), client.Close, nil
}

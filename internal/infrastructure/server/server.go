package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/courier/internal/api/http"
	"github.com/GriffinCanCode/courier/internal/api/middleware"
	"github.com/GriffinCanCode/courier/internal/correlation"
	"github.com/GriffinCanCode/courier/internal/directory"
	"github.com/GriffinCanCode/courier/internal/infrastructure/config"
	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/courier/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/courier/internal/notify"
	"github.com/GriffinCanCode/courier/internal/proxy"
	"github.com/GriffinCanCode/courier/internal/relay"
	"github.com/GriffinCanCode/courier/internal/storage/badgerstore"
	"github.com/GriffinCanCode/courier/internal/storage/sqlitestore"
	"github.com/GriffinCanCode/courier/internal/tagging"
)

const shutdownTimeout = 5 * time.Second

// Server owns every courier component and their lifecycles.
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	store      correlation.CounterStore
	closeStore func() error
	allocator  *correlation.Allocator
	relay      *relay.Manager
	directory  directory.Source
	dirFile    *directory.File
	webhook    *notify.Webhook
	pipeline   *tagging.Pipeline

	api   *http.Server
	proxy *http.Server

	mu        sync.Mutex
	apiAddr   string
	proxyAddr string
}

// NewServer builds all components from cfg. Nothing is started until Run.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing courier",
		zap.String("relay_url", cfg.Relay.URL),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("directory", cfg.Directory.Source),
		zap.String("api_addr", cfg.APIAddr()),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("courier", logger.Component("tracing"))

	store, closeStore, err := OpenCounterStore(cfg.Storage, logger.Component("storage"))
	if err != nil {
		tracer.Close()
		return nil, err
	}

	source, dirFile, err := openDirectory(cfg.Directory, cfg.Correlation.LookupTimeout, logger.Component("directory"))
	if err != nil {
		tracer.Close()
		_ = closeStore()
		return nil, err
	}

	allocator := correlation.NewAllocator(store, cfg.Correlation.CounterKey,
		correlation.WithLogger(logger.Component("correlation")),
		correlation.WithMetrics(metrics),
		correlation.WithReconciler(correlation.SkipAhead(cfg.Correlation.RestartGap)),
	)

	manager := relay.NewManager(relay.Config{
		URL:              cfg.Relay.URL,
		BackoffFloor:     cfg.Relay.BackoffFloor,
		BackoffCeiling:   cfg.Relay.BackoffCeiling,
		HandshakeTimeout: cfg.Relay.HandshakeTimeout,
		WriteTimeout:     cfg.Relay.WriteTimeout,
	},
		relay.WithLogger(logger.Component("relay")),
		relay.WithMetrics(metrics),
	)

	notifiers := notify.Multi{notify.NewLog(logger.Component("notify"), metrics)}
	var webhook *notify.Webhook
	if cfg.Notify.WebhookURL != "" {
		webhook = notify.NewWebhook(cfg.Notify.WebhookURL, 0, logger.Component("notify"))
		notifiers = append(notifiers, webhook)
	}
	notifier := notify.NewThrottle(notifiers, cfg.Notify.MinInterval, logger.Component("notify"))

	pipeline := tagging.New(tagging.Config{
		HeaderName:    cfg.Correlation.HeaderName,
		Icon:          cfg.Notify.Icon,
		ReadyTimeout:  cfg.Correlation.ReadyTimeout,
		LookupTimeout: cfg.Correlation.LookupTimeout,
	}, allocator, manager, source, source, notifier,
		tagging.WithLogger(logger.Component("tagging")),
		tagging.WithMetrics(metrics),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := apihttp.NewHandlers(pipeline, manager, allocator, metrics, logger.Component("api"))
	router := apihttp.NewRouter(handlers, apihttp.RouterConfig{
		CORS:      middleware.DefaultCORSConfig(),
		RateLimit: middleware.DefaultRateLimitConfig(),
		Metrics:   metrics,
		Tracer:    tracer,
		Logger:    logger.Component("http"),
	})

	s := &Server{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		store:      store,
		closeStore: closeStore,
		allocator:  allocator,
		relay:      manager,
		directory:  source,
		dirFile:    dirFile,
		webhook:    webhook,
		pipeline:   pipeline,
		api: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	if cfg.Proxy.Enabled {
		s.proxy = &http.Server{
			Handler: proxy.New(proxy.Config{
				ContainerHeader: cfg.Proxy.ContainerHeader,
				Logger:          logger.Component("proxy"),
			}, pipeline),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// OpenCounterStore opens the configured durable counter store. The returned
// close function releases it.
func OpenCounterStore(cfg config.StorageConfig, logger *zap.Logger) (correlation.CounterStore, func() error, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		bcfg := badgerstore.DefaultConfig(cfg.Path)
		bcfg.Logger = logger
		store, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open counter store: %w", err)
		}
		return store, store.Close, nil
	case config.DriverSQLite:
		store, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open counter store: %w", err)
		}
		return store, store.Close, nil
	case config.DriverMemory:
		return correlation.NewMemoryStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openDirectory(cfg config.DirectoryConfig, timeout time.Duration, logger *zap.Logger) (directory.Source, *directory.File, error) {
	switch cfg.Source {
	case config.SourceFile:
		f, err := directory.OpenFile(cfg.Path, directory.WithFileLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("open container directory: %w", err)
		}
		return f, f, nil
	case config.SourceHTTP:
		h, err := directory.NewHTTP(directory.HTTPConfig{
			BaseURL:    cfg.URL,
			Timeout:    timeout,
			RPS:        cfg.RequestsPerSecond,
			MaxRetries: 1,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return h, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown directory source %q", cfg.Source)
	}
}

// Run starts every component and serves until ctx is canceled or a listener
// fails.
func (s *Server) Run(ctx context.Context) error {
	apiLn, err := net.Listen("tcp", s.config.APIAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.APIAddr(), err)
	}
	var proxyLn net.Listener
	if s.proxy != nil {
		proxyLn, err = net.Listen("tcp", s.config.Proxy.Addr)
		if err != nil {
			apiLn.Close()
			return fmt.Errorf("listen on %s: %w", s.config.Proxy.Addr, err)
		}
	}

	s.mu.Lock()
	s.apiAddr = apiLn.Addr().String()
	if proxyLn != nil {
		s.proxyAddr = proxyLn.Addr().String()
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	s.allocator.Initialize(ctx)
	s.relay.Start(ctx)
	if s.dirFile != nil && s.config.Directory.Watch {
		if err := s.dirFile.Watch(ctx); err != nil {
			s.logger.Warn("container directory will not reload on change", zap.Error(err))
		}
	}

	g.Go(func() error {
		s.logger.Info("Starting hook API", zap.String("addr", apiLn.Addr().String()))
		return serve(s.api, apiLn)
	})
	if proxyLn != nil {
		g.Go(func() error {
			s.logger.Info("Starting forward proxy", zap.String("addr", proxyLn.Addr().String()))
			return serve(s.proxy, proxyLn)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.api.Shutdown(shutdownCtx)
		if s.proxy != nil {
			err = errors.Join(err, s.proxy.Shutdown(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// APIAddr returns the hook API address once Run is listening.
func (s *Server) APIAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiAddr
}

// ProxyAddr returns the proxy address once Run is listening, if enabled.
func (s *Server) ProxyAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxyAddr
}

// Close releases every component. Call after Run returns.
func (s *Server) Close() error {
	s.logger.Info("Shutting down courier...")

	var errs []error
	if err := s.relay.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.allocator.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush counter: %w", err))
	}

	if s.dirFile != nil {
		if err := s.dirFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close directory watcher: %w", err))
		}
	}
	if s.webhook != nil {
		s.webhook.Wait()
	}
	s.tracer.Close()

	if err := s.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("close counter store: %w", err))
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}

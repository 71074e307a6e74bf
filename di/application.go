package di

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/do/v2"
	"github.com/stokry/vectra/client"
	"github.com/stokry/vectra/config"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// AppState application lifecycle state
type AppState int

const (
	StateInit AppState = iota
	StateSetup
	StateRunning
	StateStopping
	StateStopped
)

func (s AppState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSetup:
		return "Setup"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// DoApplication runs vectra components out of a samber/do injector.
// The injector shuts services down in reverse dependency order.
type DoApplication struct {
	injector *do.RootScope
	options  ConfigOptions

	configLoader *config.Loader
	config       client.Config
	logger       *logger.CtxZapLogger

	ctx    context.Context
	cancel context.CancelFunc
	state  AppState
	mu     sync.RWMutex

	name    string
	version string

	onSetup    func(*DoApplication) error
	onReady    func(*DoApplication) error
	onShutdown func(context.Context) error
}

// DoAppOption configures the application
type DoAppOption func(*DoApplication)

// WithConfigOptions sets the config loader options
func WithConfigOptions(opts ConfigOptions) DoAppOption {
	return func(app *DoApplication) {
		app.options = opts
	}
}

// WithName sets the application name
func WithName(name string) DoAppOption {
	return func(app *DoApplication) {
		app.name = name
	}
}

// WithVersion sets the application version
func WithVersion(version string) DoAppOption {
	return func(app *DoApplication) {
		app.version = version
	}
}

// WithOnSetup runs fn at the end of Setup
func WithOnSetup(fn func(*DoApplication) error) DoAppOption {
	return func(app *DoApplication) {
		app.onSetup = fn
	}
}

// WithOnReady runs fn once the client is resolved
func WithOnReady(fn func(*DoApplication) error) DoAppOption {
	return func(app *DoApplication) {
		app.onReady = fn
	}
}

// WithOnShutdown runs fn before the injector shuts down
func WithOnShutdown(fn func(context.Context) error) DoAppOption {
	return func(app *DoApplication) {
		app.onShutdown = fn
	}
}

// NewDoApplication creates the application and registers the core providers
func NewDoApplication(opts ...DoAppOption) *DoApplication {
	ctx, cancel := context.WithCancel(context.Background())

	app := &DoApplication{
		injector: do.New(),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateInit,
		name:     "vectra",
		version:  "0.0.1",
	}
	for _, opt := range opts {
		opt(app)
	}

	RegisterCoreProviders(app.injector, app.options)
	return app
}

// Injector returns the root scope
func (app *DoApplication) Injector() *do.RootScope {
	return app.injector
}

// Logger returns the application logger (nil before Setup)
func (app *DoApplication) Logger() *logger.CtxZapLogger {
	return app.logger
}

// ConfigLoader returns the loader (nil before Setup)
func (app *DoApplication) ConfigLoader() *config.Loader {
	return app.configLoader
}

// Config returns the decoded configuration (zero before Setup)
func (app *DoApplication) Config() client.Config {
	return app.config
}

// Context is cancelled on Shutdown
func (app *DoApplication) Context() context.Context {
	return app.ctx
}

// State returns the lifecycle state
func (app *DoApplication) State() AppState {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.state
}

func (app *DoApplication) setState(state AppState) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.state = state
}

// Setup loads the configuration and the logger
func (app *DoApplication) Setup() error {
	app.setState(StateSetup)

	loader, err := do.Invoke[*config.Loader](app.injector)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.configLoader = loader

	cfg, err := do.Invoke[client.Config](app.injector)
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	app.config = cfg

	appLogger, err := do.Invoke[*logger.CtxZapLogger](app.injector)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	app.logger = appLogger

	app.logger.Info("🔧 Application setting up",
		zap.String("name", app.name),
		zap.String("version", app.version),
		zap.String("backend", cfg.Backend.Type),
		zap.Strings("config_files", loader.GetLoadedFiles()))

	if app.onSetup != nil {
		if err := app.onSetup(app); err != nil {
			return fmt.Errorf("setup callback: %w", err)
		}
	}
	return nil
}

// Start resolves the client and runs the ready callback
func (app *DoApplication) Start() error {
	if err := StartCoreComponents(app.ctx, app.injector, app.logger); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	app.setState(StateRunning)

	app.logger.Info("✅ Application started",
		zap.String("name", app.name),
		zap.String("version", app.version),
		zap.String("state", app.State().String()))

	if app.onReady != nil {
		if err := app.onReady(app); err != nil {
			return fmt.Errorf("ready callback: %w", err)
		}
	}
	return nil
}

// Run sets up, starts and blocks until SIGINT or SIGTERM
func (app *DoApplication) Run() error {
	if err := app.Setup(); err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}
	app.waitForSignal()
	return nil
}

func (app *DoApplication) waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("📥 Signal received", zap.String("signal", sig.String()))
	case <-app.ctx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		app.logger.Error("Shutdown failed", zap.Error(err))
	}
}

// Shutdown runs the shutdown callback then shuts the injector down
func (app *DoApplication) Shutdown(ctx context.Context) error {
	if app.State() == StateStopped {
		return nil
	}
	app.setState(StateStopping)
	log := app.logger
	if log == nil {
		log = logger.GetLogger("vectra")
	}
	log.Info("🔄 Shutting down...")

	if app.onShutdown != nil {
		if err := app.onShutdown(ctx); err != nil {
			log.Warn("shutdown callback failed", zap.Error(err))
		}
	}

	app.cancel()

	if err := app.injector.Shutdown(); err != nil {
		log.Warn("injector shutdown failed", zap.Error(err))
	}

	app.setState(StateStopped)
	log.Info("✅ Application stopped")
	return nil
}

// HealthCheck runs the do health checks of resolved services
func (app *DoApplication) HealthCheck() map[string]error {
	return app.injector.HealthCheck()
}

// IsHealthy reports whether every do health check passed
func (app *DoApplication) IsHealthy() bool {
	for _, err := range app.HealthCheck() {
		if err != nil {
			return false
		}
	}
	return true
}

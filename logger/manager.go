package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager builds and caches one CtxZapLogger per module
type Manager struct {
	baseConfig ManagerConfig
	loggers    map[string]*CtxZapLogger
	zapLoggers map[string]*zap.Logger
	writers    map[string][]*lumberjack.Logger
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	managerOnce   sync.Once
	globalMu      sync.Mutex
)

// NewManager creates an independent manager; zero-valued fields get defaults
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		baseConfig: cfg,
		loggers:    make(map[string]*CtxZapLogger),
		zapLoggers: make(map[string]*zap.Logger),
		writers:    make(map[string][]*lumberjack.Logger),
	}
}

// InitManager initializes the process-wide manager once
func InitManager(cfg ManagerConfig) {
	managerOnce.Do(func() {
		globalMu.Lock()
		defer globalMu.Unlock()
		globalManager = NewManager(cfg)
	})
}

// Config returns the manager configuration
func (m *Manager) Config() ManagerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseConfig
}

// GetLogger returns the module logger, creating it on first use.
// The returned logger already carries the module field.
func (m *Manager) GetLogger(moduleName string) *CtxZapLogger {
	m.mu.RLock()
	if l, exists := m.loggers[moduleName]; exists {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, exists := m.loggers[moduleName]; exists {
		return l
	}

	zapLogger := m.createLogger(m.buildModuleConfig(moduleName))
	withModule := zapLogger.With(zap.String("module", moduleName))

	ctxLogger := &CtxZapLogger{
		// skip the CtxZapLogger wrapper frame
		base:   withModule.WithOptions(zap.AddCallerSkip(1)),
		module: moduleName,
		config: &m.baseConfig,
	}

	m.loggers[moduleName] = ctxLogger
	m.zapLoggers[moduleName] = withModule
	return ctxLogger
}

func (m *Manager) buildModuleConfig(moduleName string) moduleConfig {
	return moduleConfig{
		Level:                 m.baseConfig.Level,
		Encoding:              m.baseConfig.Encoding,
		ConsoleEncoding:       m.baseConfig.ConsoleEncoding,
		moduleName:            moduleName,
		logDir:                m.baseConfig.BaseLogDir,
		EnableFile:            m.baseConfig.EnableFile,
		EnableConsole:         m.baseConfig.EnableConsole,
		EnableLevelInFilename: m.baseConfig.EnableLevelInFilename,
		EnableDateInFilename:  m.baseConfig.EnableDateInFilename,
		DateFormat:            m.baseConfig.DateFormat,
		MaxSize:               m.baseConfig.MaxSize,
		MaxBackups:            m.baseConfig.MaxBackups,
		MaxAge:                m.baseConfig.MaxAge,
		Compress:              m.baseConfig.Compress,
		EnableCaller:          m.baseConfig.EnableCaller,
	}
}

func (m *Manager) createLogger(cfg moduleConfig) *zap.Logger {
	encoder := createEncoder(cfg.Encoding)
	configuredLevel := ParseLevel(cfg.Level)
	var cores []zapcore.Core
	var writers []*lumberjack.Logger

	if cfg.EnableConsole {
		consoleEncoder := encoder
		if cfg.ConsoleEncoding != "" && cfg.ConsoleEncoding != cfg.Encoding {
			consoleEncoder = createEncoder(cfg.ConsoleEncoding)
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), configuredLevel))
	}

	if cfg.EnableFile {
		if cfg.EnableLevelInFilename {
			// info file gets [configured, error), error file gets error and above
			infoWriter, infoLumber := createFileWriter(cfg.buildFilePath("info"), cfg)
			errorWriter, errorLumber := createFileWriter(cfg.buildFilePath("error"), cfg)
			writers = append(writers, infoLumber, errorLumber)

			cores = append(cores,
				zapcore.NewCore(encoder, infoWriter, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lvl >= configuredLevel && lvl < zapcore.ErrorLevel
				})),
				zapcore.NewCore(encoder, errorWriter, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lvl >= zapcore.ErrorLevel
				})),
			)
		} else {
			writer, lumber := createFileWriter(cfg.buildFilePath(""), cfg)
			writers = append(writers, lumber)
			cores = append(cores, zapcore.NewCore(encoder, writer, configuredLevel))
		}
	}

	if len(writers) > 0 {
		m.writers[cfg.moduleName] = writers
	}

	opts := []zap.Option{}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	// stacks are added by CtxZapLogger.ErrorCtx with a bounded depth, not zap.AddStacktrace

	return zap.New(zapcore.NewTee(cores...), opts...)
}

// CloseAll flushes buffers and closes file handles
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	for _, l := range m.zapLoggers {
		_ = l.Sync()
	}
	for _, writers := range m.writers {
		for _, w := range writers {
			_ = w.Close()
		}
	}
	m.loggers = make(map[string]*CtxZapLogger)
	m.zapLoggers = make(map[string]*zap.Logger)
	m.writers = make(map[string][]*lumberjack.Logger)
}

// ReloadConfig rebuilds every module logger with newCfg
func (m *Manager) ReloadConfig(newCfg ManagerConfig) error {
	newCfg.ApplyDefaults()
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("invalid logger config: %w", err)
	}

	m.mu.Lock()
	oldLevel := m.baseConfig.Level
	m.closeLocked()
	m.baseConfig = newCfg
	m.mu.Unlock()

	if oldLevel != newCfg.Level {
		m.GetLogger(newCfg.LoggerName).Debug("log level updated",
			zap.String("old_level", oldLevel),
			zap.String("new_level", newCfg.Level))
	}
	return nil
}

// Shutdown lets samber/do close the manager
func (m *Manager) Shutdown() error {
	m.CloseAll()
	return nil
}

func createEncoder(encoding string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if encoding == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// createFileWriter returns a rotating writer and its handle for closing
func createFileWriter(filename string, cfg moduleConfig) (zapcore.WriteSyncer, *lumberjack.Logger) {
	_ = os.MkdirAll(filepath.Dir(filename), 0o755)

	lumberLogger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
	return zapcore.AddSync(lumberLogger), lumberLogger
}

func defaultManager() *Manager {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m != nil {
		return m
	}
	InitManager(DefaultManagerConfig())
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager
}

// GetLogger returns a module logger from the process-wide manager
func GetLogger(moduleName string) *CtxZapLogger {
	return defaultManager().GetLogger(moduleName)
}

// CloseAll closes the process-wide manager
func CloseAll() {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m != nil {
		m.CloseAll()
	}
}

// InfoCtx logs through the process-wide manager
func InfoCtx(ctx context.Context, module string, msg string, fields ...zap.Field) {
	GetLogger(module).InfoCtx(ctx, msg, fields...)
}

// WarnCtx logs through the process-wide manager
func WarnCtx(ctx context.Context, module string, msg string, fields ...zap.Field) {
	GetLogger(module).WarnCtx(ctx, msg, fields...)
}

// ErrorCtx logs through the process-wide manager
func ErrorCtx(ctx context.Context, module string, msg string, fields ...zap.Field) {
	GetLogger(module).ErrorCtx(ctx, msg, fields...)
}

// DebugCtx logs through the process-wide manager
func DebugCtx(ctx context.Context, module string, msg string, fields ...zap.Field) {
	GetLogger(module).DebugCtx(ctx, msg, fields...)
}

// resetGlobal is used by tests
func resetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalManager != nil {
		globalManager.CloseAll()
	}
	globalManager = nil
	managerOnce = sync.Once{}
}

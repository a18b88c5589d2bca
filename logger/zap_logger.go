package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/dbus-service/types"
)

// NewLogger builds the process logger from config. Console format is meant for
// local runs, json for everything shipped to a collector.
func NewLogger(config *types.LoggerConfig) (types.Logger, error) {
	if config == nil {
		config = &types.LoggerConfig{Level: "info", Format: "console", Output: "stdout"}
	}

	logger, err := buildZapLogger(config)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	l := NewZapWrapper(logger)

	l.Debug("Logger initialized",
		zap.String("level", config.Level),
		zap.String("format", config.Format),
		zap.String("output", config.Output),
	)

	return l, nil
}

func NewNop() types.Logger {
	return NewZapWrapper(zap.NewNop())
}

func buildZapLogger(config *types.LoggerConfig) (*zap.Logger, error) {
	level := parseLogLevel(config.Level)

	var zapConfig zap.Config
	if config.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.EncoderConfig.EncodeCaller = ideCallerEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig.DisableStacktrace = true
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch config.Output {
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	case "file":
		if err := ensureLogDir(config.File); err != nil {
			return nil, err
		}
		zapConfig.OutputPaths = []string{config.File}
		zapConfig.ErrorOutputPaths = []string{config.File}
	default:
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	return zapConfig.Build(zap.AddCaller())
}

func ideCallerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("%s:%d", caller.File, caller.Line))
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func ensureLogDir(logFile string) error {
	if logFile == "" {
		return types.ErrLogFileIsEmpty
	}

	dir := filepath.Dir(logFile)
	if dir == "." && !strings.ContainsRune(logFile, filepath.Separator) {
		return types.ErrLogFileWrongFormat
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.WrapError(err, "failed to create log directory")
	}

	return nil
}

type ZapWrapper struct {
	Logger *zap.Logger
}

func NewZapWrapper(logger *zap.Logger) *ZapWrapper {
	return &ZapWrapper{Logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (z *ZapWrapper) Error(msg string, fields ...zap.Field) {
	z.Logger.Error(msg, fields...)
}

func (z *ZapWrapper) Warn(msg string, fields ...zap.Field) {
	z.Logger.Warn(msg, fields...)
}

func (z *ZapWrapper) Info(msg string, fields ...zap.Field) {
	z.Logger.Info(msg, fields...)
}

func (z *ZapWrapper) Debug(msg string, fields ...zap.Field) {
	z.Logger.Debug(msg, fields...)
}

func (z *ZapWrapper) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {
	z.Logger.Log(lvl, msg, fields...)
}

func (z *ZapWrapper) With(fields ...zap.Field) types.Logger {
	return &ZapWrapper{Logger: z.Logger.With(fields...)}
}

func (z *ZapWrapper) Sync() error {
	return z.Logger.Sync()
}

// ErrorWithErrStack logs the root cause and, for errors created by pkg/errors, its stack.
func (z *ZapWrapper) ErrorWithErrStack(msg string, err error, fields ...zap.Field) {
	if err == nil {
		z.Logger.Error(msg, fields...)
		return
	}

	allFields := make([]zap.Field, 0, len(fields)+2)
	allFields = append(allFields, zap.String("error", errors.Cause(err).Error()))
	allFields = append(allFields, fields...)

	if stack := extractStackFromError(err); stack != "" {
		allFields = append(allFields, zap.String("stack", stack))
	}

	z.Logger.Error(msg, allFields...)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func extractStackFromError(err error) string {
	if st, ok := err.(stackTracer); ok {
		return fmt.Sprintf("%+v", st.StackTrace())
	}

	if st, ok := errors.Cause(err).(stackTracer); ok {
		return fmt.Sprintf("%+v", st.StackTrace())
	}

	return ""
}

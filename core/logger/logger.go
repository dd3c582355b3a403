package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the application-wide logger.
var Logger *zap.Logger

// componentNameKey is a context key for storing the component name.
type componentNameKeyType string

const componentNameKey componentNameKeyType = "componentName"

func init() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	var err error
	Logger, err = config.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(Logger)
}

// getComponentNameFromContext extracts the component name from the context.
func getComponentNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(componentNameKey).(string); ok {
		return name
	}
	return "unknown"
}

// WithComponentName creates a new context with the component name set.
// Components identify themselves with it so every log line carries its origin.
func WithComponentName(ctx context.Context, componentName string) context.Context {
	return context.WithValue(ctx, componentNameKey, componentName)
}

// Info logs at info level with the component name from the context.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Info(msg, withComponent(ctx, fields)...)
}

// Warn logs at warn level with the component name from the context.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Warn(msg, withComponent(ctx, fields)...)
}

// Error logs at error level with the component name from the context.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Error(msg, withComponent(ctx, fields)...)
}

// Fatal logs at fatal level and exits.
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Fatal(msg, withComponent(ctx, fields)...)
}

// Debug logs at debug level with the component name from the context.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Debug(msg, withComponent(ctx, fields)...)
}

func withComponent(ctx context.Context, fields []zap.Field) []zap.Field {
	return append([]zap.Field{zap.String("component", getComponentNameFromContext(ctx))}, fields...)
}

// SetLogger allows external packages to set the internal zap.Logger instance.
// This is primarily for testing purposes or advanced logger re-configuration.
func SetLogger(l *zap.Logger) {
	Logger = l
}

package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"brewmate-engine/internal/config"
)

type Fields = logrus.Fields

// Logger wraps logrus with the key-value call style the services use and a
// few structured helpers for service/step/workflow events.
type Logger struct {
	entry *logrus.Entry
}

func New(cfg config.LogConfig) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	base.SetLevel(level)

	switch cfg.Format {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	base.SetOutput(resolveOutput(cfg))

	return &Logger{entry: logrus.NewEntry(base)}, nil
}

func resolveOutput(cfg config.LogConfig) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	default:
		return os.Stdout
	}
}

func (log *Logger) Debug(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(pairsToFields(keysAndValues)).Debug(msg)
}

func (log *Logger) Info(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(pairsToFields(keysAndValues)).Info(msg)
}

func (log *Logger) Warn(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(pairsToFields(keysAndValues)).Warn(msg)
}

func (log *Logger) Error(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(pairsToFields(keysAndValues)).Error(msg)
}

func (log *Logger) WithError(err error) *Logger {
	return &Logger{entry: log.entry.WithError(err)}
}

func (log *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: log.entry.WithFields(fields)}
}

// LogService records one external-service operation with its duration and
// outcome under a consistent field set.
func (log *Logger) LogService(service, operation string, duration time.Duration, data map[string]interface{}, err error) {
	entry := log.entry.WithFields(Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if len(data) > 0 {
		entry = entry.WithFields(Fields(data))
	}

	if err != nil {
		entry.WithError(err).Error("service operation failed")
		return
	}
	entry.Debug("service operation completed")
}

// LogStep records a workflow node execution.
func (log *Logger) LogStep(runID, step, operation string, duration time.Duration, data map[string]interface{}, err error) {
	entry := log.entry.WithFields(Fields{
		"run_id":      runID,
		"step":        step,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if len(data) > 0 {
		entry = entry.WithFields(Fields(data))
	}

	if err != nil {
		entry.WithError(err).Error("workflow step failed")
		return
	}
	entry.Info("workflow step completed")
}

// LogWorkflow records run-level lifecycle events.
func (log *Logger) LogWorkflow(runID, event string, duration time.Duration, err error) {
	entry := log.entry.WithFields(Fields{
		"run_id":      runID,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("workflow event")
		return
	}
	entry.Info("workflow event")
}

func pairsToFields(keysAndValues []interface{}) Fields {
	fields := make(Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// Package logging configures the process logger and the HTTP access log.
package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/eduaventuras/apiserver/config"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// New builds a logger from config. Unknown levels fall back to info.
func New(cfg config.LogConfig) *logrus.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(cfg config.LogConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	return logger
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// RequestLogger is a chi access-log middleware writing to logger.
func RequestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&formatter{logger: logger})
}

type formatter struct {
	logger logrus.FieldLogger
}

func (f *formatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	fields := logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"remote_addr": r.RemoteAddr,
	}
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		fields["request_id"] = requestID
	}
	return &entry{logger: f.logger.WithFields(fields)}
}

type entry struct {
	logger logrus.FieldLogger
}

func (e *entry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	fields := e.logger.WithFields(logrus.Fields{
		"status":      status,
		"bytes":       bytes,
		"duration_ms": float64(elapsed.Microseconds()) / 1000,
	})
	switch {
	case status >= http.StatusInternalServerError:
		fields.Error("request completed")
	case status >= http.StatusBadRequest:
		fields.Warn("request completed")
	default:
		fields.Info("request completed")
	}
}

func (e *entry) Panic(v any, stack []byte) {
	e.logger.WithFields(logrus.Fields{
		"panic": v,
		"stack": string(stack),
	}).Error("request panicked")
}

// Package logging provides structured logging for the EBICS sandbox, wrapping
// logrus with context-aware trace propagation and domain-specific helpers.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type used for values this package stores in a context.Context.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	HostIDKey  ContextKey = "host_id"
	WopidKey   ContextKey = "wopid"
)

// Logger wraps a logrus.Logger with a service name carried on every entry.
type Logger struct {
	base    *logrus.Logger
	service string
}

// New builds a Logger with the given service name, level, and format ("json" or "text").
func New(service, level, format string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{base: base, service: service}
}

// NewFromEnv reads SANDBOX_LOG_LEVEL/SANDBOX_LOG_FORMAT from the environment.
func NewFromEnv(service string) *Logger {
	level := os.Getenv("SANDBOX_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	format := os.Getenv("SANDBOX_LOG_FORMAT")
	if format == "" {
		format = "text"
	}
	return New(service, level, format)
}

// SetOutput redirects where log entries are written.
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// WithContext pulls trace/host/wopid values out of ctx and attaches them as fields.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.base.WithField("service", l.service)
	if v, ok := ctx.Value(TraceIDKey).(string); ok && v != "" {
		entry = entry.WithField("trace_id", v)
	}
	if v, ok := ctx.Value(HostIDKey).(string); ok && v != "" {
		entry = entry.WithField("host_id", v)
	}
	if v, ok := ctx.Value(WopidKey).(string); ok && v != "" {
		entry = entry.WithField("wopid", v)
	}
	return entry
}

// WithFields attaches arbitrary structured fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.base.WithField("service", l.service).WithFields(fields)
}

// WithError attaches an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.base.WithField("service", l.service).WithError(err)
}

func (l *Logger) Debug(args ...interface{}) { l.base.WithField("service", l.service).Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.base.WithField("service", l.service).Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.base.WithField("service", l.service).Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.base.WithField("service", l.service).Error(args...) }
func (l *Logger) Fatal(args ...interface{}) { l.base.WithField("service", l.service).Fatal(args...) }

// NewTraceID generates a fresh trace identifier and attaches it to ctx.
func NewTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, uuid.NewString())
}

// WithHostID attaches an EBICS host ID to ctx for log correlation.
func WithHostID(ctx context.Context, hostID string) context.Context {
	return context.WithValue(ctx, HostIDKey, hostID)
}

// WithWopid attaches a withdrawal operation ID to ctx for log correlation.
func WithWopid(ctx context.Context, wopid string) context.Context {
	return context.WithValue(ctx, WopidKey, wopid)
}

// LogEbicsRequest logs a completed ebicsRequest order dispatch.
func (l *Logger) LogEbicsRequest(ctx context.Context, orderType, phase, returnCode string, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"order_type":  orderType,
		"phase":       phase,
		"return_code": returnCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("ebics request handled")
}

// LogBooking logs the outcome of a pain.001 booking attempt.
func (l *Logger) LogBooking(ctx context.Context, pmtInfID, outcome string, amount float64, currency string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"pmt_inf_id": pmtInfID,
		"outcome":    outcome,
		"amount":     amount,
		"currency":   currency,
	}).Info("payment booking")
}

// LogStatementTick logs the outcome of a statement-tick run.
func (l *Logger) LogStatementTick(ctx context.Context, accountsClosed int, err error) {
	entry := l.WithContext(ctx).WithField("accounts_closed", accountsClosed)
	if err != nil {
		entry.WithError(err).Error("statement tick failed")
		return
	}
	entry.Info("statement tick completed")
}

// LogWithdrawal logs a withdrawal FSM transition.
func (l *Logger) LogWithdrawal(ctx context.Context, wopid, state string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"wopid": wopid,
		"state": state,
	}).Info("withdrawal transition")
}

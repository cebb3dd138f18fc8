package observability

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

type loggerKey struct{}

// NewLogger builds the console logger. The serve command logs JSON to
// stdout; the one-shot commands may ask for the console encoder.
//
// Levels:
//   - error: backend 5xx, transport failures, panics
//   - warn:  backend 4xx, failed token refresh, bad filter configuration
//   - info:  page open, bulk results, imports, exports, definition reloads
//   - debug: cancelled fetches, debounce scheduling, backend requests
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	encoding := "json"
	if cfg.LogFormat == "console" {
		encoding = "console"
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger tagged with whatever the
// model.RequestContext knows: correlation id, subject, page, scope, trace.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rc := model.RequestContextFrom(ctx)
	if rc == nil {
		return logger
	}

	fields := make([]zap.Field, 0, 5)
	for _, f := range [...]struct{ key, val string }{
		{"correlation_id", rc.CorrelationID},
		{"subject_id", rc.SubjectID},
		{"page_id", rc.PageID},
		{"scope", rc.Scope},
		{"trace_id", rc.TraceID},
	} {
		if f.val != "" {
			fields = append(fields, zap.String(f.key, f.val))
		}
	}
	return logger.With(fields...)
}

const redacted = "[REDACTED]"

// Field names, lower-cased, whose values never reach the logs.
var sensitiveFields = map[string]struct{}{
	"password":        {},
	"currentpassword": {},
	"newpassword":     {},
	"token":           {},
	"accesstoken":     {},
	"access_token":    {},
	"refreshtoken":    {},
	"refresh_token":   {},
	"authorization":   {},
	"phone":           {},
	"parentphone":     {},
}

// Redact returns a copy of v with sensitive object members masked, walking
// nested objects and arrays. Keys in extra are masked as well.
func Redact(v any, extra ...string) any {
	set := sensitiveFields
	if len(extra) > 0 {
		set = make(map[string]struct{}, len(sensitiveFields)+len(extra))
		for k := range sensitiveFields {
			set[k] = struct{}{}
		}
		for _, k := range extra {
			set[strings.ToLower(k)] = struct{}{}
		}
	}
	return redact(v, set)
}

func redact(v any, set map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if _, ok := set[strings.ToLower(k)]; ok {
				out[k] = redacted
				continue
			}
			out[k] = redact(val, set)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redact(val, set)
		}
		return out
	}
	return v
}

// RedactJSON decodes a request or response body for debug logging and masks
// it. Bodies that are not JSON are summarised by size.
func RedactJSON(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "<" + strconv.Itoa(len(body)) + " bytes>"
	}
	return Redact(v)
}

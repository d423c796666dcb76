//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/panyam/secrets/internal/logutil"
)

// zlogger routes gorm's query log through the zerolog logger in the context.
// Failed and slow queries are logged from Warn up; every statement is logged
// at trace level only in Info mode, matching gorm's own logger.
type zlogger struct {
	slow  time.Duration
	level gormlogger.LogLevel
}

func NewLogger(slow time.Duration) gormlogger.Interface {
	return &zlogger{slow: slow, level: gormlogger.Warn}
}

func (l *zlogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	out := *l
	out.level = level
	return &out
}

func (l *zlogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		log := logutil.GetOrDefault(ctx)
		log.Info().Msgf(msg, args...)
	}
}

func (l *zlogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		log := logutil.GetOrDefault(ctx)
		log.Warn().Msgf(msg, args...)
	}
}

func (l *zlogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		log := logutil.GetOrDefault(ctx)
		log.Error().Msgf(msg, args...)
	}
}

func (l *zlogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	log := logutil.GetOrDefault(ctx)

	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, gorm.ErrDuplicatedKey):
		ev = log.Error().Err(err)
	case l.slow > 0 && elapsed > l.slow:
		ev = log.Warn().Bool("slow", true)
	case l.level >= gormlogger.Info:
		ev = log.Trace()
	default:
		return
	}
	sql, rows := fc()
	ev.Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm query")
}

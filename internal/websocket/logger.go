package websocket

import (
	"salon-chat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger provides structured logging for connection events.
type Logger struct {
	logger *zap.Logger
}

func NewLogger(base *logger.Logger) *Logger {
	if base == nil {
		base = logger.NewNop()
	}
	return &Logger{logger: base.Named("websocket").Logger}
}

func (l *Logger) Info(event string, staffID uuid.UUID, connID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.fields(event, staffID, connID, fields)...)
}

func (l *Logger) Warn(event string, staffID uuid.UUID, connID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.fields(event, staffID, connID, fields)...)
}

func (l *Logger) Error(event string, staffID uuid.UUID, connID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.fields(event, staffID, connID, append(fields, zap.Error(err)))...)
}

func (l *Logger) fields(event string, staffID uuid.UUID, connID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("staff_id", staffID.String()),
		zap.String("conn_id", connID),
	}, extra...)
}

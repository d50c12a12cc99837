package events

import (
	"context"
	"log/slog"
	"sort"
)

// LogEmitter writes every host log record as a structured log line.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (e LogEmitter) Emit(evt Event) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log, ok := evt.(Log)
	if !ok {
		logger.Info("event", "type", evt.EventType())
		return
	}
	keys := make([]string, 0, len(log.Record.Attributes))
	for key := range log.Record.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, slog.String(key, log.Record.Attributes[key]))
	}
	level := slog.LevelInfo
	switch log.Attr("state") {
	case StateRejected, StateRolledBack:
		level = slog.LevelWarn
	}
	if log.Record.Type == TypeReceiptFailed {
		level = slog.LevelWarn
	}
	logger.LogAttrs(context.Background(), level, log.Record.Type,
		slog.String("tx", log.TxID),
		slog.String("receipt", log.ReceiptID),
		slog.String("contract", log.Contract),
		slog.Any("attributes", slog.GroupValue(attrs...)),
	)
}

// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// cycleIDKey is the context key for polling-cycle correlation IDs.
	cycleIDKey contextKey = "cycle_id"
)

// NewCycleID creates a short unique ID correlating all log lines of one
// polling cycle. Eight UUID characters keep log output readable.
func NewCycleID() string {
	return uuid.New().String()[:8]
}

// ContextWithCycleID returns a new context carrying the given cycle ID.
func ContextWithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// ContextWithNewCycleID returns a context with a freshly generated cycle ID.
func ContextWithNewCycleID(ctx context.Context) context.Context {
	return ContextWithCycleID(ctx, NewCycleID())
}

// CycleIDFromContext retrieves the cycle ID from context, or "" if absent.
func CycleIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger enriched with correlation fields from the context.
// The pointer return lets level methods chain directly:
//
//	logging.Ctx(ctx).Info().Str("beacon", id).Msg("classified")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if id := CycleIDFromContext(ctx); id != "" {
		logger = logger.With().Str("cycle_id", id).Logger()
	}
	return &logger
}

// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import "go.uber.org/zap"

// noLog is a Logger that discards every call. Used by tests and by callers
// that construct components without wiring a real sink.
type noLog struct{}

// NewNoOp returns a logger that doesn't log anything.
func NewNoOp() Logger { return noLog{} }

func (noLog) With(fields ...zap.Field) Logger       { return noLog{} }
func (noLog) Debug(msg string, fields ...zap.Field) {}
func (noLog) Info(msg string, fields ...zap.Field)  {}
func (noLog) Warn(msg string, fields ...zap.Field)  {}
func (noLog) Error(msg string, fields ...zap.Field) {}

// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package obslog carries a go-logr/logr.Logger through context.Context,
// the way the teacher's sigs.k8s.io/controller-runtime/pkg/log package
// does, minus the dependency on a controller-runtime manager.
package obslog

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

type ctxKey struct{}

// Log is the process-wide base logger, set once by SetBase.
var Log = logr.Discard()

// SetBase installs a zap-backed logger as the process-wide base.
func SetBase(zl *zap.Logger) {
	Log = zapr.NewLogger(zl)
}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l logr.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, augmented with
// keysAndValues, falling back to the process-wide base logger.
func FromContext(ctx context.Context, keysAndValues ...any) logr.Logger {
	l := Log
	if v, ok := ctx.Value(ctxKey{}).(logr.Logger); ok {
		l = v
	}
	if len(keysAndValues) > 0 {
		l = l.WithValues(keysAndValues...)
	}
	return l
}

// Package logging writes diagnostics for events published on the bus.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"

	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	events "github.com/keywordwei/graphql-loader/internal/events"
	reqid "github.com/keywordwei/graphql-loader/internal/reqid"
	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w. format is "text" or "json".
func New(w io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// Subscribe logs events of the global bus to logger. The returned function
// removes the subscriptions.
func Subscribe(logger *logrus.Logger) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.ImportSkipped) {
			entry(ctx, logger).WithFields(logrus.Fields{
				"path": e.Path,
				"from": e.From,
			}).Warn("duplicate fragment import skipped")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SchemaBuildFinish) {
			l := entry(ctx, logger).WithFields(logrus.Fields{
				"document":    e.Document,
				"files":       e.Files,
				"fragments":   e.Fragments,
				"duration_ms": e.Duration.Milliseconds(),
			})
			if e.Err != nil {
				l.WithError(e.Err).Error("schema build failed")
				return
			}
			l.Info("schema built")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SpecializeFinish) {
			l := entry(ctx, logger).WithFields(logrus.Fields{
				"document":    e.Document,
				"fields":      len(e.Fields),
				"cached":      e.Cached,
				"duration_ms": e.Duration.Milliseconds(),
			})
			if e.Err != nil {
				l.WithError(e.Err).Error("specialization failed")
				return
			}
			l.Debug("specialized")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			entry(ctx, logger).WithFields(logrus.Fields{
				"method":      e.Request.Method,
				"route":       e.Route,
				"status":      e.Status,
				"duration_ms": e.Duration.Milliseconds(),
			}).Debug("request served")
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func entry(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	e := logrus.NewEntry(logger)
	if rid, ok := reqid.FromContext(ctx); ok {
		e = e.WithField("request_id", reqid.String(rid))
	}
	return e
}

// Package tripstore provides the main API for running an in-memory
// trip telemetry server: a single-threaded, epoll-driven ingester for
// binary trip frames on one port and a line-oriented SQL/report query
// interface on another. Everything lives in an embedded in-memory
// sqlite database and vanishes with the process.
package tripstore

import (
	"context"

	"github.com/thepaulm/tripstore/internal/interfaces"
	"github.com/thepaulm/tripstore/internal/server"
	"github.com/thepaulm/tripstore/internal/store"
)

// Config contains parameters for creating a tripstore server
type Config struct {
	// Port is the trip generator port. 0 binds an ephemeral port;
	// use DefaultIngestPort for the conventional one.
	Port int

	// QueryPort is the text query port. 0 binds an ephemeral port;
	// use DefaultQueryPort for the conventional one.
	QueryPort int

	// Logger for debug/info messages (if nil, no logging)
	Logger Logger

	// Observer for metrics collection (if nil, the server's own
	// Metrics instance collects)
	Observer Observer
}

// Server is a running (or runnable) tripstore instance
type Server struct {
	loop    *server.Loop
	store   *store.Store
	metrics *Metrics
}

// NewServer opens the in-memory database, prepares all statements,
// binds both listening sockets, and sets up the event loop. Nothing
// past this point is fatal; everything in here is.
func NewServer(cfg Config) (*Server, error) {
	metrics := NewMetrics()

	var observer Observer = NewMetricsObserver(metrics)
	if cfg.Observer != nil {
		observer = cfg.Observer
	}

	st, err := store.Open()
	if err != nil {
		return nil, WrapError("OPEN_DB", ErrCodeStoreOpen, err)
	}

	loop, err := server.New(server.Config{
		Port:      cfg.Port,
		QueryPort: cfg.QueryPort,
		Store:     st,
		Logger:    asInternalLogger(cfg.Logger),
		Observer:  observer,
	})
	if err != nil {
		st.Close()
		return nil, WrapError("LISTEN", ErrCodeListen, err)
	}

	return &Server{
		loop:    loop,
		store:   st,
		metrics: metrics,
	}, nil
}

// asInternalLogger converts the public Logger to the internal
// interface without forcing a nil interface through
func asInternalLogger(l Logger) interfaces.Logger {
	if l == nil {
		return nil
	}
	return l
}

// Serve runs the event loop until ctx is cancelled. It blocks; run it
// on its own goroutine if the caller has other work. All ingestion,
// storage, and query evaluation happens on the calling goroutine,
// pinned to one OS thread.
func (s *Server) Serve(ctx context.Context) error {
	return s.loop.Run(ctx)
}

// Port reports the bound trip generator port
func (s *Server) Port() int {
	return s.loop.IngestPort()
}

// QueryPort reports the bound query port
func (s *Server) QueryPort() int {
	return s.loop.QueryPort()
}

// Metrics returns the server's metrics instance
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of server metrics
func (s *Server) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.Snapshot()
}

// Close tears down every session, both listeners, and the database.
// Call after Serve has returned.
func (s *Server) Close() error {
	s.metrics.Stop()
	s.loop.Close()
	return s.store.Close()
}

package tripstore

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for a tripstore server.
// All counters are safe to read from any goroutine while the event
// loop runs.
type Metrics struct {
	// Ingested event counters
	BeginEvents   atomic.Uint64 // BEGIN rows accepted by the store
	TransitEvents atomic.Uint64 // TRANSIT rows accepted by the store
	EndEvents     atomic.Uint64 // END rows accepted by the store

	// Error counters
	MalformedFrames atomic.Uint64 // Undecodable frames dropped
	StoreErrors     atomic.Uint64 // Events the store rejected

	// Query counters
	Queries     atomic.Uint64 // Query lines dispatched
	QueryErrors atomic.Uint64 // Queries that produced an error line

	// Session counters
	IngestSessions atomic.Uint64 // Accepted generator connections
	QuerySessions  atomic.Uint64 // Accepted query connections
	SessionsClosed atomic.Uint64 // Sessions torn down

	// Server lifecycle
	StartTime atomic.Int64 // Server start timestamp (UnixNano)
	StopTime  atomic.Int64 // Server stop timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordEvent records one ingested trip event by store kind
func (m *Metrics) RecordEvent(kind uint32, success bool) {
	if !success {
		m.StoreErrors.Add(1)
		return
	}
	switch kind {
	case 0:
		m.BeginEvents.Add(1)
	case 1:
		m.TransitEvents.Add(1)
	case 2:
		m.EndEvents.Add(1)
	}
}

// RecordMalformedFrame records a dropped frame
func (m *Metrics) RecordMalformedFrame() {
	m.MalformedFrames.Add(1)
}

// RecordQuery records one dispatched query line
func (m *Metrics) RecordQuery(success bool) {
	m.Queries.Add(1)
	if !success {
		m.QueryErrors.Add(1)
	}
}

// RecordAccept records an accepted connection
func (m *Metrics) RecordAccept(ingest bool) {
	if ingest {
		m.IngestSessions.Add(1)
	} else {
		m.QuerySessions.Add(1)
	}
}

// RecordSessionClose records a torn-down session
func (m *Metrics) RecordSessionClose() {
	m.SessionsClosed.Add(1)
}

// Stop marks the server as stopped
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of all counters
type MetricsSnapshot struct {
	BeginEvents     uint64 `json:"begin_events"`
	TransitEvents   uint64 `json:"transit_events"`
	EndEvents       uint64 `json:"end_events"`
	MalformedFrames uint64 `json:"malformed_frames"`
	StoreErrors     uint64 `json:"store_errors"`
	Queries         uint64 `json:"queries"`
	QueryErrors     uint64 `json:"query_errors"`
	IngestSessions  uint64 `json:"ingest_sessions"`
	QuerySessions   uint64 `json:"query_sessions"`
	SessionsClosed  uint64 `json:"sessions_closed"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// Snapshot returns a point-in-time snapshot of the counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	stop := m.StopTime.Load()
	if stop == 0 {
		stop = time.Now().UnixNano()
	}
	return MetricsSnapshot{
		BeginEvents:     m.BeginEvents.Load(),
		TransitEvents:   m.TransitEvents.Load(),
		EndEvents:       m.EndEvents.Load(),
		MalformedFrames: m.MalformedFrames.Load(),
		StoreErrors:     m.StoreErrors.Load(),
		Queries:         m.Queries.Load(),
		QueryErrors:     m.QueryErrors.Load(),
		IngestSessions:  m.IngestSessions.Load(),
		QuerySessions:   m.QuerySessions.Load(),
		SessionsClosed:  m.SessionsClosed.Load(),
		UptimeSeconds:   float64(stop-m.StartTime.Load()) / 1e9,
	}
}

// MetricsObserver adapts a Metrics instance to the Observer interface
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into metrics
func NewMetricsObserver(metrics *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: metrics}
}

func (o *MetricsObserver) ObserveEvent(kind uint32, success bool) {
	o.metrics.RecordEvent(kind, success)
}

func (o *MetricsObserver) ObserveMalformedFrame() {
	o.metrics.RecordMalformedFrame()
}

func (o *MetricsObserver) ObserveQuery(success bool) {
	o.metrics.RecordQuery(success)
}

func (o *MetricsObserver) ObserveAccept(ingest bool) {
	o.metrics.RecordAccept(ingest)
}

func (o *MetricsObserver) ObserveSessionClose() {
	o.metrics.RecordSessionClose()
}

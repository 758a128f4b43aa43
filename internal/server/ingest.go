package server

import (
	"bytes"

	"github.com/thepaulm/tripstore/internal/logging"
	"github.com/thepaulm/tripstore/internal/store"
	"github.com/thepaulm/tripstore/internal/wire"
)

// allocateTripID hands out the next trip id. All allocations happen on
// the event-loop thread, so a plain increment is enough.
func (l *Loop) allocateTripID() int32 {
	id := l.nextTripID
	l.nextTripID++
	return id
}

// handleFrame processes one reassembled frame from an ingest session.
// A BEGIN allocates a trip id and replies with it before the row goes
// in; the generator blocks on that reply, so it cannot send an UPDATE
// for an id it has not yet seen. Returning false tears the session
// down.
func (l *Loop) handleFrame(s *session, raw []byte) bool {
	f, err := wire.Decode(raw)
	if err != nil {
		// Resync at the next declared boundary; the drain already
		// advances past this frame's size word.
		logging.Warn("dropping malformed frame", "error", err, "bytes", len(raw))
		l.observer.ObserveMalformedFrame()
		return true
	}

	switch f.Kind {
	case wire.KindBegin:
		id := l.allocateTripID()
		if err := writeFull(s.fd, wire.EncodeID(id)); err != nil {
			logging.Error("failed to send trip id", "id", id, "error", err)
			return false
		}
		l.addTripData(id, f, store.EventBegin, 0)

	case wire.KindUpdate:
		l.addTripData(f.ID, f, store.EventTransit, 0)

	case wire.KindEnd:
		l.addTripData(f.ID, f, store.EventEnd, f.Cents)

	default:
		// ID frames only ever travel server to client
		logging.Warn("discarding unexpected frame", "kind", f.Kind)
		l.observer.ObserveMalformedFrame()
	}
	return true
}

// addTripData writes one event through the store. Store failures never
// reach the generator; they are logged and the connection stays open.
func (l *Loop) addTripData(id int32, f wire.Frame, kind store.EventKind, cents int32) {
	if err := l.store.AddTripData(id, f.Lng, f.Lat, kind, cents); err != nil {
		logging.Error("Failed to update tripdata", "id", id, "error", err)
		l.observer.ObserveEvent(uint32(kind), false)
		return
	}
	l.observer.ObserveEvent(uint32(kind), true)
}

// handleLine dispatches one reassembled query line. Rows and errors
// stream straight back on the session's socket.
func (l *Loop) handleLine(s *session, line []byte) bool {
	if len(bytes.TrimSpace(line)) == 0 {
		return true
	}
	err := l.store.ExecQueryTo(fdWriter{fd: s.fd}, string(line))
	l.observer.ObserveQuery(err == nil)
	return true
}

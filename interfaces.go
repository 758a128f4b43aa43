package tripstore

// Logger is the optional logging hook threaded through the server.
// A nil Logger disables per-connection logging.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer receives one callback per observable event on the loop
// thread. Implementations must return quickly; the loop does nothing
// else while an observer runs.
type Observer interface {
	// ObserveEvent reports one ingested trip event by kind
	// (0=begin, 1=transit, 2=end) and whether the store accepted it
	ObserveEvent(kind uint32, success bool)
	// ObserveMalformedFrame reports a dropped undecodable frame
	ObserveMalformedFrame()
	// ObserveQuery reports one dispatched query line
	ObserveQuery(success bool)
	// ObserveAccept reports an accepted connection by role
	ObserveAccept(ingest bool)
	// ObserveSessionClose reports a torn-down session
	ObserveSessionClose()
}

// NoOpObserver discards all observations
type NoOpObserver struct{}

func (NoOpObserver) ObserveEvent(kind uint32, success bool) {}
func (NoOpObserver) ObserveMalformedFrame()                 {}
func (NoOpObserver) ObserveQuery(success bool)              {}
func (NoOpObserver) ObserveAccept(ingest bool)              {}
func (NoOpObserver) ObserveSessionClose()                   {}

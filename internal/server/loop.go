// Package server runs the tripstore event loop: a single-threaded,
// readiness-driven dispatcher across the two listening ports and every
// accepted connection. All mutable state — the session table, the trip
// id counter, the store and its prepared statements — is touched only
// from the loop thread, so nothing here needs a lock.
package server

import (
	"context"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/thepaulm/tripstore/internal/constants"
	"github.com/thepaulm/tripstore/internal/interfaces"
	"github.com/thepaulm/tripstore/internal/logging"
	"github.com/thepaulm/tripstore/internal/poll"
	"github.com/thepaulm/tripstore/internal/store"
)

// Config carries everything the loop needs at construction
type Config struct {
	// Port is the trip generator port; 0 binds an ephemeral port
	Port int
	// QueryPort is the text query port; 0 binds an ephemeral port
	QueryPort int
	// Store receives every decoded event and answers every query
	Store *store.Store
	// Logger for debug/info messages (if nil, no logging)
	Logger interfaces.Logger
	// Observer for metrics collection (if nil, a no-op observer)
	Observer interfaces.Observer
}

// Loop owns both listeners, the epoll instance, and all sessions.
// Create with New, drive with Run, release with Close after Run
// has returned.
type Loop struct {
	store    *store.Store
	logger   interfaces.Logger
	observer interfaces.Observer

	poller     *poll.Poller
	ingestFd   int
	queryFd    int
	ingestPort int
	queryPort  int

	// wake pipe: written on context cancellation to pull the loop
	// out of its epoll_wait
	wakeR int
	wakeW int

	sessions map[int32]*session

	// next trip id to hand out; only the loop thread touches it
	nextTripID int32

	done chan struct{}
}

// nopObserver is the default when no observer is injected
type nopObserver struct{}

func (nopObserver) ObserveEvent(kind uint32, success bool) {}
func (nopObserver) ObserveMalformedFrame()                 {}
func (nopObserver) ObserveQuery(success bool)              {}
func (nopObserver) ObserveAccept(ingest bool)              {}
func (nopObserver) ObserveSessionClose()                   {}

// New binds both listening sockets, creates the epoll instance, and
// registers the listeners and the wake pipe.
func New(cfg Config) (*Loop, error) {
	l := &Loop{
		store:      cfg.Store,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		ingestFd:   -1,
		queryFd:    -1,
		wakeR:      -1,
		wakeW:      -1,
		sessions:   make(map[int32]*session),
		nextTripID: 1,
		done:       make(chan struct{}),
	}
	if l.observer == nil {
		l.observer = nopObserver{}
	}

	var err error
	if l.poller, err = poll.New(); err != nil {
		return nil, err
	}

	if l.ingestFd, l.ingestPort, err = poll.Listen(cfg.Port); err != nil {
		l.Close()
		return nil, err
	}
	if l.queryFd, l.queryPort, err = poll.Listen(cfg.QueryPort); err != nil {
		l.Close()
		return nil, err
	}

	var pipe [2]int
	if err = unix.Pipe2(pipe[:], unix.O_CLOEXEC); err != nil {
		l.Close()
		return nil, err
	}
	l.wakeR, l.wakeW = pipe[0], pipe[1]

	for _, fd := range []int{l.ingestFd, l.queryFd, l.wakeR} {
		if err = l.poller.Add(fd); err != nil {
			l.Close()
			return nil, err
		}
	}

	return l, nil
}

// IngestPort reports the bound trip generator port
func (l *Loop) IngestPort() int {
	return l.ingestPort
}

// QueryPort reports the bound query port
func (l *Loop) QueryPort() int {
	return l.queryPort
}

// Run drives the event loop until ctx is cancelled. The loop pins
// itself to an OS thread and runs every handler to completion before
// dequeuing the next readiness event.
func (l *Loop) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	go func() {
		select {
		case <-ctx.Done():
			unix.Write(l.wakeW, []byte{0})
		case <-l.done:
		}
	}()

	if l.logger != nil {
		l.logger.Printf("event loop running, ingest port %d, query port %d",
			l.ingestPort, l.queryPort)
	}

	for {
		events, err := l.poller.Wait()
		if err != nil {
			return err
		}
		for _, ev := range events {
			switch int(ev.Fd) {
			case l.wakeR:
				return nil
			case l.ingestFd:
				l.accept(l.ingestFd, roleIngest)
			case l.queryFd:
				l.accept(l.queryFd, roleQuery)
			default:
				if s, ok := l.sessions[ev.Fd]; ok {
					l.handleRead(s)
				}
			}
		}
	}
}

// accept takes one connection off a ready listener and registers it
// with the read handler for its role. Accept failures are logged and
// the listener stays registered.
func (l *Loop) accept(lfd int, r role) {
	fd, _, err := unix.Accept4(lfd, unix.SOCK_CLOEXEC)
	if err != nil {
		logging.Error("accept failed", "listener", r.String(), "error", err)
		return
	}

	var s *session
	if r == roleIngest {
		s = newIngestSession(fd)
	} else {
		s = newQuerySession(fd)
	}

	if err := l.poller.Add(fd); err != nil {
		logging.Error("acceptor could not register reads", "error", err)
		unix.Close(fd)
		return
	}
	l.sessions[int32(fd)] = s
	l.observer.ObserveAccept(r == roleIngest)

	if l.logger != nil {
		l.logger.Debugf("accepted %s connection fd=%d", r, fd)
	}
}

// handleRead pulls whatever the socket has into the session
// accumulator and drains complete units. A read of zero or an error
// tears the session down; a partial unit just waits for the next
// readiness wakeup.
func (l *Loop) handleRead(s *session) {
	if s.buf == nil {
		s.buf = make([]byte, constants.QueryBufSize)
	}

	n, err := unix.Read(s.fd, s.buf[s.n:])
	if err == unix.EINTR || err == unix.EAGAIN {
		return
	}
	if err != nil || n <= 0 {
		l.closeSession(s)
		return
	}
	s.n += n

	var ok bool
	if s.role == roleIngest {
		ok = s.drainFrames(func(frame []byte) bool {
			return l.handleFrame(s, frame)
		})
	} else {
		ok = s.drainLines(func(line []byte) bool {
			return l.handleLine(s, line)
		})
	}
	if !ok {
		l.closeSession(s)
	}
}

func (l *Loop) closeSession(s *session) {
	l.poller.Remove(s.fd)
	unix.Close(s.fd)
	delete(l.sessions, int32(s.fd))
	s.buf = nil
	l.observer.ObserveSessionClose()

	if l.logger != nil {
		l.logger.Debugf("closed %s session fd=%d", s.role, s.fd)
	}
}

// Close releases every session, both listeners, the wake pipe, and
// the epoll instance. Call only after Run has returned.
func (l *Loop) Close() error {
	for _, s := range l.sessions {
		l.poller.Remove(s.fd)
		unix.Close(s.fd)
	}
	l.sessions = make(map[int32]*session)

	for _, fd := range []int{l.ingestFd, l.queryFd, l.wakeR, l.wakeW} {
		if fd >= 0 {
			unix.Close(fd)
		}
	}
	l.ingestFd, l.queryFd, l.wakeR, l.wakeW = -1, -1, -1, -1

	if l.poller != nil {
		l.poller.Close()
		l.poller = nil
	}
	return nil
}

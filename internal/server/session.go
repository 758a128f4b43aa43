package server

import (
	"bytes"

	"github.com/thepaulm/tripstore/internal/constants"
	"github.com/thepaulm/tripstore/internal/wire"
)

// role classifies what a connection speaks: binary trip frames or
// newline-terminated query text
type role int

const (
	roleIngest role = iota
	roleQuery
)

func (r role) String() string {
	if r == roleIngest {
		return "ingest"
	}
	return "query"
}

// session is the per-connection state: the socket, its role, and the
// read accumulator the reassembler drains whole units from. Ingest
// sessions carry their small fixed buffer from accept; query sessions
// get theirs lazily on first read.
type session struct {
	fd   int
	role role
	buf  []byte
	n    int
}

func newIngestSession(fd int) *session {
	return &session{
		fd:   fd,
		role: roleIngest,
		buf:  make([]byte, constants.IngestBufSize),
	}
}

func newQuerySession(fd int) *session {
	return &session{fd: fd, role: roleQuery}
}

// drainFrames hands every complete frame in the accumulator to fn and
// compacts the remainder to the front. fn returning false, or a frame
// whose declared size can never fit the buffer, stops the drain and
// reports false, which tears the session down.
func (s *session) drainFrames(fn func(frame []byte) bool) bool {
	for {
		size, ok := wire.DeclaredSize(s.buf[:s.n])
		if !ok {
			return true
		}
		if size < wire.HeaderSize || size > len(s.buf) {
			return false
		}
		if s.n < size {
			return true
		}
		if !fn(s.buf[:size]) {
			return false
		}
		copy(s.buf, s.buf[size:s.n])
		s.n -= size
	}
}

// drainLines hands every newline-terminated line (newline stripped) to
// fn and compacts the remainder. A full buffer with no newline can
// never make progress and reports false.
func (s *session) drainLines(fn func(line []byte) bool) bool {
	for {
		i := bytes.IndexByte(s.buf[:s.n], '\n')
		if i < 0 {
			return s.n < len(s.buf)
		}
		if !fn(s.buf[:i]) {
			return false
		}
		copy(s.buf, s.buf[i+1:s.n])
		s.n -= i + 1
	}
}

package server

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/thepaulm/tripstore/internal/store"
	"github.com/thepaulm/tripstore/internal/wire"
)

// socketpair returns a connected pair; reads on peer see writes on fd
func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func testLoop(t *testing.T) *Loop {
	t.Helper()
	st, err := store.Open()
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &Loop{
		store:      st,
		observer:   nopObserver{},
		sessions:   make(map[int32]*session),
		nextTripID: 1,
	}
}

func readFrame(t *testing.T, fd int) wire.Frame {
	t.Helper()
	buf := make([]byte, wire.MaxFrameSize)
	n, err := unix.Read(fd, buf)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	f, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return f
}

func TestHandleFrameBeginAllocatesAndReplies(t *testing.T) {
	l := testLoop(t)
	fd, peer := socketpair(t)
	s := newIngestSession(fd)

	if !l.handleFrame(s, wire.EncodeBegin(-122.27, 37.45)) {
		t.Fatal("BEGIN handling should keep the session alive")
	}

	reply := readFrame(t, peer)
	if reply.Kind != wire.KindID || reply.ID != 1 {
		t.Errorf("reply = %v id=%d, want ID 1", reply.Kind, reply.ID)
	}

	if !l.handleFrame(s, wire.EncodeBegin(-122.26, 37.46)) {
		t.Fatal("second BEGIN should keep the session alive")
	}
	if reply := readFrame(t, peer); reply.ID != 2 {
		t.Errorf("second id = %d, want 2", reply.ID)
	}

	var buf bytes.Buffer
	l.store.ExecQueryTo(&buf, "SELECT COUNT(*) FROM tripsummary")
	if buf.String() != "2\n" {
		t.Errorf("summary rows = %q, want 2", buf.String())
	}
}

func TestHandleFrameFullTrip(t *testing.T) {
	l := testLoop(t)
	fd, peer := socketpair(t)
	s := newIngestSession(fd)

	l.handleFrame(s, wire.EncodeBegin(-122.27, 37.45))
	id := readFrame(t, peer).ID

	l.handleFrame(s, wire.EncodeUpdate(id, -122.26, 37.46))
	l.handleFrame(s, wire.EncodeEnd(id, -122.25, 37.47, 1200))

	var buf bytes.Buffer
	l.store.ExecQueryTo(&buf, "SELECT type, fare_cents FROM triplog ORDER BY type")
	if buf.String() != "0 0\n1 0\n2 1200\n" {
		t.Errorf("triplog = %q, want the three rows of the trip", buf.String())
	}

	buf.Reset()
	l.store.ExecQueryTo(&buf, "SELECT end IS NOT NULL FROM tripsummary")
	if buf.String() != "1\n" {
		t.Errorf("summary end = %q, want set", buf.String())
	}
}

func TestHandleFrameMalformedKeepsSession(t *testing.T) {
	l := testLoop(t)
	fd, _ := socketpair(t)
	s := newIngestSession(fd)

	bad := wire.EncodeID(1)
	bad[4] = 99 // unknown type code
	if !l.handleFrame(s, bad) {
		t.Error("a malformed frame should not kill the session")
	}
}

func TestHandleLineStreamsRows(t *testing.T) {
	l := testLoop(t)
	fd, peer := socketpair(t)
	s := newQuerySession(fd)

	if !l.handleLine(s, []byte("SELECT 1+1;")) {
		t.Fatal("query handling should keep the session alive")
	}

	buf := make([]byte, 64)
	n, err := unix.Read(peer, buf)
	if err != nil {
		t.Fatalf("read query output: %v", err)
	}
	if string(buf[:n]) != "2\n" {
		t.Errorf("query output = %q, want %q", buf[:n], "2\n")
	}
}

func TestHandleLineSurfacesErrors(t *testing.T) {
	l := testLoop(t)
	fd, peer := socketpair(t)
	s := newQuerySession(fd)

	l.handleLine(s, []byte("SELECT foo FROM bar;"))

	buf := make([]byte, 256)
	n, err := unix.Read(peer, buf)
	if err != nil {
		t.Fatalf("read query output: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "error: ") {
		t.Errorf("query output = %q, want error: prefix", buf[:n])
	}
}

func TestFdWriterDelivery(t *testing.T) {
	fd, peer := socketpair(t)

	payload := bytes.Repeat([]byte("tripstore "), 100)
	n, err := fdWriter{fd: fd}.Write(payload)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(payload) {
		t.Errorf("wrote %d bytes, want %d", n, len(payload))
	}

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 512)
	for len(got) < len(payload) {
		r, err := unix.Read(peer, buf)
		if err != nil || r <= 0 {
			t.Fatalf("read back failed after %d bytes: %v", len(got), err)
		}
		got = append(got, buf[:r]...)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload corrupted in transit")
	}
}

func TestFdWriterClosedPeer(t *testing.T) {
	fds, err2 := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err2 != nil {
		t.Fatalf("socketpair: %v", err2)
	}
	fd := fds[0]
	t.Cleanup(func() { unix.Close(fd) })
	unix.Close(fds[1])

	// first write may succeed into the kernel buffer; keep writing
	// until the error surfaces
	var err error
	for i := 0; i < 64 && err == nil; i++ {
		_, err = fdWriter{fd: fd}.Write([]byte("x"))
	}
	if err == nil {
		t.Error("writes to a closed peer should eventually fail")
	}
}

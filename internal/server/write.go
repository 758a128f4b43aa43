package server

import "golang.org/x/sys/unix"

// fdWriter adapts a raw socket to io.Writer. Short writes are retried
// until the whole buffer is on the wire or a write fails terminally.
type fdWriter struct {
	fd int
}

func (w fdWriter) Write(p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		n, err := unix.Write(w.fd, p[sent:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return sent, err
		}
		sent += n
	}
	return sent, nil
}

// writeFull sends the whole buffer on fd
func writeFull(fd int, buf []byte) error {
	_, err := fdWriter{fd: fd}.Write(buf)
	return err
}

// Package poll wraps the readiness multiplexer and the listening
// socket plumbing the event loop runs on. Descriptors are registered
// level-triggered for reads; the fd itself rides in the epoll event so
// the loop can map readiness back to a session.
package poll

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/thepaulm/tripstore/internal/constants"
)

// Poller is an epoll instance plus its reusable event buffer
type Poller struct {
	epfd   int
	events []unix.EpollEvent
}

// New creates the epoll instance
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, constants.EpollBatch),
	}, nil
}

// Add registers fd for read readiness
func (p *Poller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Remove deregisters fd
func (p *Poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks until at least one descriptor is ready and returns the
// ready events. The returned slice is valid until the next Wait.
func (p *Poller) Wait() ([]unix.EpollEvent, error) {
	for {
		n, err := unix.EpollWait(p.epfd, p.events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("epoll_wait: %w", err)
		}
		return p.events[:n], nil
	}
}

// Close shuts down the epoll instance
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

// Package eventloop implements the cooperative, single-threaded reactor
// netio.Manager is embedded in: an epoll wait loop that dispatches
// readiness to registered fds and drains a delayed work queue between
// wait cycles.
package eventloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/udpmgrd/internal/netio"
)

const maxEvents = 128

// Loop is an epoll-backed netio.EventLoop. It is not safe for concurrent
// use from multiple goroutines beyond the Run/Stop contract described on
// those methods; Manager's own mutex is what actually serializes fd
// registration against dispatch.
type Loop struct {
	epfd int
	log  *slog.Logger

	mu        sync.Mutex
	callbacks map[int]func(fd int, mask netio.PollMask)
	delayed   []func()

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates an epoll instance. Callers must call Close when the loop
// is no longer needed (after Run returns).
func New(log *slog.Logger) (*Loop, error) {
	if log == nil {
		log = slog.Default()
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventloop: epoll_create1: %w", err)
	}

	return &Loop{
		epfd:      epfd,
		log:       log,
		callbacks: make(map[int]func(fd int, mask netio.PollMask)),
		stop:      make(chan struct{}),
	}, nil
}

// RegisterFD adds fd to the epoll set with the given interest mask,
// dispatching to onReady on readiness.
func (l *Loop) RegisterFD(fd int, mask netio.PollMask, onReady func(fd int, mask netio.PollMask)) error {
	l.mu.Lock()
	l.callbacks[fd] = onReady
	l.mu.Unlock()

	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		l.mu.Lock()
		delete(l.callbacks, fd)
		l.mu.Unlock()
		return fmt.Errorf("eventloop: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

// ModifyFD updates fd's interest mask.
func (l *Loop) ModifyFD(fd int, mask netio.PollMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("eventloop: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// DeregisterFD removes fd from the epoll set. The caller remains
// responsible for actually closing fd (see netio's delayed-close).
func (l *Loop) DeregisterFD(fd int) error {
	l.mu.Lock()
	delete(l.callbacks, fd)
	l.mu.Unlock()

	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("eventloop: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// AddDelayed enqueues fn to run once, after the current dispatch pass
// returns control to Run's wait loop. Delayed work runs in enqueue order
// relative to other delayed items, single-shot per enqueue.
func (l *Loop) AddDelayed(fn func()) {
	l.mu.Lock()
	l.delayed = append(l.delayed, fn)
	l.mu.Unlock()
}

// Run drains readiness events and the delayed work queue until ctx is
// canceled or Stop is called. It blocks the calling goroutine.
func (l *Loop) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, maxEvents)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		default:
		}

		n, err := unix.EpollWait(l.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("eventloop: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			mask := fromEpollEvents(events[i].Events)

			l.mu.Lock()
			cb := l.callbacks[fd]
			l.mu.Unlock()

			if cb == nil {
				continue
			}
			cb(fd, mask)
		}

		l.runDelayed()
	}
}

func (l *Loop) runDelayed() {
	l.mu.Lock()
	pending := l.delayed
	l.delayed = nil
	l.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Stop signals Run to return after completing its current dispatch pass.
// Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Close releases the epoll fd. Call after Run has returned.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}

func toEpollEvents(mask netio.PollMask) uint32 {
	var ev uint32
	if mask&netio.PollRead != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&netio.PollWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) netio.PollMask {
	var mask netio.PollMask
	if ev&unix.EPOLLIN != 0 {
		mask |= netio.PollRead
	}
	if ev&unix.EPOLLOUT != 0 {
		mask |= netio.PollWrite
	}
	return mask
}

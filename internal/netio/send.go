package netio

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

const sendPollTimeoutMS = 100

// Send transmits payload on a send-role endpoint to its cached
// destination.
func (m *Manager) Send(fd int, payload []byte) error {
	return m.sendTo(fd, netip.AddrPort{}, payload)
}

// SendTo transmits payload on a listen-role endpoint to an explicit
// remote address, for replying to a received datagram.
func (m *Manager) SendTo(fd int, remote netip.AddrPort, payload []byte) error {
	return m.sendTo(fd, remote, payload)
}

func (m *Manager) sendTo(fd int, remote netip.AddrPort, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ep := m.registry.Lookup(fd)
	if ep == nil || ep.closing {
		return ErrNotFound
	}

	dest := ep.DestAddr
	if remote.IsValid() {
		dest = remote
	}
	if !dest.IsValid() {
		return fmt.Errorf("send: no destination address: %w", ErrBadInternal)
	}

	sa, err := toSockaddr(dest)
	if err != nil {
		return err
	}

	return m.sendWithBackpressure(ep, sa, payload)
}

// sendWithBackpressure implements the partial-write, poll-on-backpressure
// loop described in spec.md §4.7 "Send": a non-blocking sendto() loop
// that, on EINTR/EAGAIN/EWOULDBLOCK, blocks the manager (mutex held) in
// poll() on the fd's writability for up to 100ms before retrying. Any
// other errno is fatal: the endpoint is shut down and
// ErrConnectionClosed is returned.
func (m *Manager) sendWithBackpressure(ep *Endpoint, sa unix.Sockaddr, payload []byte) error {
	remaining := payload

	for len(remaining) > 0 {
		err := unix.Sendto(ep.FD, remaining, unix.MSG_NOSIGNAL, sa)
		if err == nil {
			// Sendto on a datagram socket is all-or-nothing; there is no
			// partial-write accounting to do beyond clearing the buffer.
			remaining = nil
			break
		}

		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			if m.metrics != nil {
				m.metrics.IncSendRetry()
			}
			if err := m.pollWritable(ep.FD); err != nil {
				m.failSend(ep, err)
				return ErrConnectionClosed
			}
			continue
		}

		m.failSend(ep, err)
		return ErrConnectionClosed
	}

	if m.metrics != nil {
		m.metrics.IncSent(ep.Role.String(), len(payload))
	}
	return nil
}

func (m *Manager) failSend(ep *Endpoint, cause error) {
	m.log.Warn("sendto failed, closing endpoint", "fd", ep.FD, "error", cause)
	if m.metrics != nil {
		m.metrics.IncFatalError("send")
	}
	m.beginClose(ep)
	m.checkStopped()
}

// pollWritable blocks, with the manager mutex held, until fd becomes
// writable or sendPollTimeoutMS elapses. This is intentional cooperative
// backpressure: the event loop makes no forward progress on other
// endpoints while a send is stalled, matching the original single-
// threaded event loop's behavior.
func (m *Manager) pollWritable(fd int) error {
	if m.metrics != nil {
		m.metrics.IncPollWait()
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, sendPollTimeoutMS)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			// Timed out; caller retries sendto, which will again report
			// EAGAIN if the socket is still unwritable.
			return nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return fmt.Errorf("poll: fd %d in error state", fd)
		}
		return nil
	}
}

package netio

import (
	"errors"

	"golang.org/x/sys/unix"
)

// onReadable is the event loop's readiness callback for a registered fd
// (spec.md §4.5, §4.7 "Receive"). It processes at most one datagram per
// readable event, delivering one ESTABLISHED-with-payload callback with
// the manager mutex released; the event loop re-arms readable
// notifications and will call back again if more datagrams are queued.
// Matches the single recvfrom() call in UDP_connectionSocketCallback
// (eventloop_lwip_udp.c:583-665), which has no surrounding drain loop.
func (m *Manager) onReadable(fd int, _ PollMask) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ep := m.registry.Lookup(fd)
	if ep == nil || ep.closing {
		return
	}

	var n int
	var from unix.Sockaddr
	for {
		var err error
		n, from, err = unix.Recvfrom(fd, m.rxBuf, 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			m.log.Warn("recvfrom failed, closing endpoint", "fd", fd, "error", err)
			if m.metrics != nil {
				m.metrics.IncFatalError("receive")
			}
			m.beginClose(ep)
			m.checkStopped()
			return
		}
		break
	}

	if n == 0 {
		return
	}

	payload := make([]byte, n)
	copy(payload, m.rxBuf[:n])

	meta := map[string]any{}
	if from != nil {
		if ap, err := fromSockaddr(from); err == nil {
			meta["remote-address"] = ap.Addr().String()
			meta["remote-port"] = ap.Port()
		}
	}

	if m.metrics != nil {
		m.metrics.IncReceived(n)
	}

	if ep.callback != nil {
		cb := ep.callback
		app := ep.app
		ctx := ep.ctx

		m.mu.Unlock()
		cb(m, fd, app, &ctx, Established, meta, payload)
		m.mu.Lock()

		ep.ctx = ctx
	}
}

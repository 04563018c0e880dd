package netio

import (
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// SocketConfigurator applies socket options to a freshly created fd in the
// fixed order spec.md §4.2 requires: non-blocking mode and IPV6_V6ONLY are
// fatal (a failure rejects the connection); multicast TTL, multicast
// loopback, SO_REUSE*, and SO_PRIORITY are best-effort and only logged on
// failure.
type SocketConfigurator struct {
	log *slog.Logger
}

// NewSocketConfigurator constructs a SocketConfigurator. A nil logger
// falls back to slog.Default().
func NewSocketConfigurator(log *slog.Logger) *SocketConfigurator {
	if log == nil {
		log = slog.Default()
	}
	return &SocketConfigurator{log: log}
}

// Configure applies the full socket option sequence to fd. isV6 selects
// between IPv4 and IPv6 option numbers for the multicast-related options.
func (c *SocketConfigurator) Configure(fd int, isV6 bool, p OpenParams) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("set nonblocking: %w: %w", err, ErrConnectionRejected)
	}

	// No-SIGPIPE: Linux has no SO_NOSIGPIPE socket option; sendto calls
	// pass MSG_NOSIGNAL instead (see send.go). Nothing to configure here.

	if isV6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return fmt.Errorf("set IPV6_V6ONLY: %w: %w", err, ErrConnectionRejected)
		}
	}

	ttl := int(p.effectiveTTL())
	if isV6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_HOPS, ttl); err != nil {
			c.log.Warn("set IPV6_MULTICAST_HOPS failed", "fd", fd, "ttl", ttl, "error", err)
		}
	} else {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl); err != nil {
			c.log.Warn("set IP_MULTICAST_TTL failed", "fd", fd, "ttl", ttl, "error", err)
		}
	}

	if p.loopbackSet {
		loop := 0
		if p.Loopback {
			loop = 1
		}
		if isV6 {
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_LOOP, loop); err != nil {
				c.log.Warn("set IPV6_MULTICAST_LOOP failed", "fd", fd, "error", err)
			}
		} else {
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, loop); err != nil {
				c.log.Warn("set IP_MULTICAST_LOOP failed", "fd", fd, "error", err)
			}
		}
	}

	if p.reuseSet && p.Reuse {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			c.log.Warn("set SO_REUSEADDR failed", "fd", fd, "error", err)
		}
		if runtime.GOOS == "linux" {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
				c.log.Warn("set SO_REUSEPORT failed", "fd", fd, "error", err)
			}
		}
	}

	if p.sockPrioritySet && runtime.GOOS == "linux" {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, int(p.SockPriority)); err != nil {
			c.log.Warn("set SO_PRIORITY failed", "fd", fd, "priority", p.SockPriority, "error", err)
		}
	}

	return nil
}

package netio

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// toSockaddr converts a netip.AddrPort into the unix.Sockaddr variant
// matching its family.
func toSockaddr(ap netip.AddrPort) (unix.Sockaddr, error) {
	addr := ap.Addr()
	if addr.Is4() || addr.Is4In6() {
		sa := &unix.SockaddrInet4{Port: int(ap.Port())}
		b := addr.As4()
		sa.Addr = b
		return sa, nil
	}
	if addr.Is6() {
		sa := &unix.SockaddrInet6{Port: int(ap.Port())}
		b := addr.As16()
		sa.Addr = b
		return sa, nil
	}
	return nil, fmt.Errorf("toSockaddr: invalid address %s: %w", ap, ErrBadInternal)
}

// fromSockaddr converts a unix.Sockaddr back into a netip.AddrPort.
func fromSockaddr(sa unix.Sockaddr) (netip.AddrPort, error) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(s.Addr), uint16(s.Port)), nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(s.Addr), uint16(s.Port)), nil
	default:
		return netip.AddrPort{}, fmt.Errorf("fromSockaddr: unsupported sockaddr type: %w", ErrBadInternal)
	}
}

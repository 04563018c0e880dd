package netio

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// MulticastBinder resolves the configured interface selector to a local
// netif and applies the resulting membership (listen role) or egress
// interface (send role) to a socket (spec.md §4.3).
//
// Interface resolution tries, in order: an exact netif name match, then a
// textual local IP address match. An empty selector leaves the wildcard
// interface in place. For the IP-address path, IPv4 addresses
// are matched directly; IPv6 addresses are matched only against the first
// IPv6 address configured on each candidate netif, an ambiguity preserved
// from the original LWIP implementation (spec.md §9, Open Question).
type MulticastBinder struct {
	interfaces func() ([]net.Interface, error)
}

// NewMulticastBinder constructs a MulticastBinder using net.Interfaces.
func NewMulticastBinder() *MulticastBinder {
	return &MulticastBinder{interfaces: net.Interfaces}
}

// Resolve turns an interface selector (netif name or IP address text, may
// be empty) and a multicast group address into a MulticastRequest.
func (b *MulticastBinder) Resolve(selector string, group netip.Addr) (MulticastRequest, error) {
	// Prefill the wildcard interface: INADDR_ANY for IPv4, index 0 for IPv6.
	req := MulticastRequest{GroupAddr: group}
	if group.Is4() {
		req.IfaceAddr = netip.IPv4Unspecified()
	}

	if selector == "" {
		// No selector: keep the wildcard and let the OS pick the interface.
		return req, nil
	}

	ifaces, err := b.interfaces()
	if err != nil {
		return req, fmt.Errorf("list interfaces: %w: %w", err, ErrNetifNotFound)
	}

	for _, iface := range ifaces {
		if iface.Name == selector {
			addr, ok := firstAddrForFamily(iface, group.Is4())
			if !ok {
				return req, fmt.Errorf("interface %q has no address for group family: %w", selector, ErrNetifNotFound)
			}
			return fillRequest(req, iface, addr), nil
		}
	}

	for _, iface := range ifaces {
		if addr, ok := matchByAddressText(iface, selector, group.Is4()); ok {
			return fillRequest(req, iface, addr), nil
		}
	}

	return req, fmt.Errorf("interface selector %q: %w", selector, ErrNetifNotFound)
}

func firstMulticastCapable(ifaces []net.Interface, wantV4 bool) (net.Interface, netip.Addr, bool) {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if addr, ok := firstAddrForFamily(iface, wantV4); ok {
			return iface, addr, true
		}
	}
	return net.Interface{}, netip.Addr{}, false
}

func firstAddrForFamily(iface net.Interface, wantV4 bool) (netip.Addr, bool) {
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, false
	}
	for _, a := range addrs {
		addr, ok := addrFromIfaceAddr(a)
		if !ok {
			continue
		}
		if addr.Is4() == wantV4 {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

// matchByAddressText matches selector against each textual address
// configured on iface. For the IPv6 family this only ever considers the
// first IPv6 address found on the netif (see the doc comment above).
func matchByAddressText(iface net.Interface, selector string, wantV4 bool) (netip.Addr, bool) {
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, false
	}

	if wantV4 {
		for _, a := range addrs {
			addr, ok := addrFromIfaceAddr(a)
			if !ok || !addr.Is4() {
				continue
			}
			if addr.String() == selector {
				return addr, true
			}
		}
		return netip.Addr{}, false
	}

	for _, a := range addrs {
		addr, ok := addrFromIfaceAddr(a)
		if !ok || !addr.Is6() || addr.Is4In6() {
			continue
		}
		if addr.String() == selector {
			return addr, true
		}
		return netip.Addr{}, false
	}
	return netip.Addr{}, false
}

func addrFromIfaceAddr(a net.Addr) (netip.Addr, bool) {
	ipNet, ok := a.(*net.IPNet)
	if !ok {
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ipNet.IP)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func fillRequest(req MulticastRequest, iface net.Interface, addr netip.Addr) MulticastRequest {
	req.IfName = iface.Name
	req.IfIndex = iface.Index
	req.IfaceAddr = addr
	return req
}

// Join installs multicast group membership on a listen socket
// (IP_ADD_MEMBERSHIP / IPV6_JOIN_GROUP).
func (b *MulticastBinder) Join(fd int, req MulticastRequest) error {
	if req.GroupAddr.Is4() {
		mreq := &unix.IPMreq{
			Multiaddr: req.GroupAddr.As4(),
			Interface: req.IfaceAddr.As4(),
		}
		if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
			return fmt.Errorf("IP_ADD_MEMBERSHIP: %w: %w", err, ErrMulticastUnsupported)
		}
		return nil
	}

	mreq := &unix.IPv6Mreq{
		Multiaddr: req.GroupAddr.As16(),
		Interface: uint32(req.IfIndex),
	}
	if err := unix.SetsockoptIPv6Mreq(fd, unix.IPPROTO_IPV6, unix.IPV6_JOIN_GROUP, mreq); err != nil {
		return fmt.Errorf("IPV6_JOIN_GROUP: %w: %w", err, ErrMulticastUnsupported)
	}
	return nil
}

// SetEgress configures the multicast egress interface on a send socket
// (IP_MULTICAST_IF / IPV6_MULTICAST_IF).
func (b *MulticastBinder) SetEgress(fd int, req MulticastRequest) error {
	if req.GroupAddr.Is4() {
		addr := req.IfaceAddr.As4()
		if err := unix.SetsockoptInet4Addr(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, addr); err != nil {
			return fmt.Errorf("IP_MULTICAST_IF: %w: %w", err, ErrMulticastUnsupported)
		}
		return nil
	}

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_IF, req.IfIndex); err != nil {
		return fmt.Errorf("IPV6_MULTICAST_IF: %w: %w", err, ErrMulticastUnsupported)
	}
	return nil
}

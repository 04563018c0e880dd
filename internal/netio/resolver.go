package netio

import (
	"fmt"
	"net"
	"net/netip"
)

// AddressResolver turns a (hostname, port) pair into an ordered, finite
// sequence of AddressRecords (spec.md §4.1). A nil/empty host resolves
// to the wildcard address ("" means listen-on-any, handled by the
// caller for the Listen role only).
type AddressResolver struct{}

// NewAddressResolver constructs an AddressResolver. It holds no state;
// the type exists to mirror the component boundary in spec.md §4.1 and
// to leave room for injecting a stub resolver in tests.
func NewAddressResolver() *AddressResolver {
	return &AddressResolver{}
}

// Resolve returns the ordered AddressRecord sequence for host:port.
// host == "" resolves to the IPv4 and IPv6 wildcard addresses (caller
// picks whichever family it needs for a given bind attempt).
func (r *AddressResolver) Resolve(host string, port uint16) ([]AddressRecord, error) {
	if host == "" {
		return []AddressRecord{
			r.record(netip.IPv4Unspecified(), port),
			r.record(netip.IPv6Unspecified(), port),
		}, nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return []AddressRecord{r.record(addr, port)}, nil
	}

	ips, err := net.LookupHost(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w: %w", host, ErrAddrResolveFailed, err)
	}

	records := make([]AddressRecord, 0, len(ips))
	for _, ipStr := range ips {
		addr, err := netip.ParseAddr(ipStr)
		if err != nil {
			continue
		}
		records = append(records, r.record(addr, port))
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("resolve %q: no usable addresses: %w", host, ErrAddrResolveFailed)
	}

	return records, nil
}

func (r *AddressResolver) record(addr netip.Addr, port uint16) AddressRecord {
	return AddressRecord{
		Family:    family(addr),
		Addr:      netip.AddrPortFrom(addr, port),
		Multicast: classifyMulticast(addr),
	}
}

func family(addr netip.Addr) addressFamily {
	if addr.Is4() || addr.Is4In6() {
		return familyV4
	}
	return familyV6
}

// classifyMulticast implements spec.md §4.1's bit-level classification:
// IPv4 multicast iff (first_byte & 0xF0) == 0xE0; IPv6 multicast iff
// first_byte == 0xFF.
func classifyMulticast(addr netip.Addr) multicastKind {
	if addr.Is4() || addr.Is4In6() {
		b := addr.As4()
		if b[0]&0xF0 == 0xE0 {
			return multicastV4
		}
		return multicastNone
	}

	b := addr.As16()
	if b[0] == 0xFF {
		return multicastV6
	}
	return multicastNone
}

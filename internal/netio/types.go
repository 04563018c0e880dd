package netio

import "net/netip"

// Role distinguishes a Listen endpoint (bound, receives datagrams) from
// a Send endpoint (caches a destination, transmits datagrams).
type Role int

const (
	// RoleListen is bound to a local address and receives datagrams.
	RoleListen Role = iota
	// RoleSend caches a destination address and transmits datagrams.
	RoleSend
)

// String implements fmt.Stringer for log output.
func (r Role) String() string {
	if r == RoleListen {
		return "listen"
	}
	return "send"
}

// State is the Manager lifecycle state (spec.md §3, §4.7).
type State int

const (
	StateStopped State = iota
	StateStarting
	StateStarted
	StateStopping
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// CallbackState identifies which lifecycle event an application callback
// invocation represents.
type CallbackState int

const (
	// Established is delivered exactly once on open, and once per
	// received datagram (with a non-empty payload).
	Established CallbackState = iota
	// Closing is delivered exactly once, always last, on teardown.
	Closing
)

// PollMask is a readable/writable event bitmask registered with the
// event loop for a given fd.
type PollMask int

const (
	PollNone  PollMask = 0
	PollRead  PollMask = 1 << 0
	PollWrite PollMask = 1 << 1
)

// Callback is the application's connection callback. It is invoked with
// the manager mutex released (spec.md §5). meta carries "remote-address"
// and "remote-port" on ESTABLISHED-with-payload deliveries (spec.md §6).
type Callback func(m *Manager, fd int, app any, ctx *any, state CallbackState, meta map[string]any, payload []byte)

// addressFamily distinguishes IPv4 from IPv6 for classification and
// socket-option application.
type addressFamily int

const (
	familyV4 addressFamily = iota
	familyV6
)

// multicastKind classifies an address per spec.md §4.1.
type multicastKind int

const (
	multicastNone multicastKind = iota
	multicastV4
	multicastV6
)

// AddressRecord is a transient resolved candidate address (spec.md §3).
type AddressRecord struct {
	Family    addressFamily
	Addr      netip.AddrPort
	Multicast multicastKind
}

// MulticastRequest is the transient, variant membership/egress request
// filled by MulticastBinder (spec.md §3, §4.3).
type MulticastRequest struct {
	// GroupAddr is the multicast group address.
	GroupAddr netip.Addr

	// IfaceAddr is the IPv4 interface address (meaningful only when
	// GroupAddr is IPv4).
	IfaceAddr netip.Addr

	// IfIndex is the IPv6 interface index (meaningful only when
	// GroupAddr is IPv6).
	IfIndex int

	// IfName is the netif name resolved for this request, for logging.
	IfName string
}

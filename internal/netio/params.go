package netio

import "fmt"

// OpenParams is the typed configuration-parameter set for Manager.Open
// (spec.md §3 "Configuration parameters" table). All fields are optional
// except Port.
type OpenParams struct {
	// Port is the UDP port; required.
	Port uint16

	// Address is the hostname/IP. For Listen may hold multiple entries,
	// tried in order together with each entry's resolved records: Open
	// binds one socket, on the first record that succeeds, and does not
	// open the remaining entries; a failing entry is skipped rather than
	// aborting the open. For Send only the first entry is used. Absent
	// (nil/empty) means wildcard for Listen, where the IPv4 wildcard is
	// tried before the IPv6 one.
	Address []string

	// Listen selects Listen vs Send role.
	Listen bool

	// Interface is the netif selector for multicast endpoints: exact
	// netif name or local IP address text (spec.md §4.3).
	Interface string

	// RecvBufSize sizes the shared receive buffer. Only validated at
	// manager start, not at Open (spec.md §6).
	RecvBufSize uint32

	// TTL is the multicast TTL/hop limit (default 1).
	TTL uint32
	ttlSet bool

	// Loopback enables multicast loopback.
	Loopback bool
	loopbackSet bool

	// Reuse enables SO_REUSEADDR/SO_REUSEPORT.
	Reuse bool
	reuseSet bool

	// SockPriority sets SO_PRIORITY (Linux only).
	SockPriority uint32
	sockPrioritySet bool

	// Validate performs a dry run: all checks, no registration.
	Validate bool
}

// WithTTL sets TTL and marks it as explicitly provided, distinguishing
// "not configured" (defaults to 1) from "explicitly set to 0".
func (p OpenParams) WithTTL(ttl uint32) OpenParams {
	p.TTL = ttl
	p.ttlSet = true
	return p
}

// WithLoopback marks Loopback as explicitly provided.
func (p OpenParams) WithLoopback(v bool) OpenParams {
	p.Loopback = v
	p.loopbackSet = true
	return p
}

// WithReuse marks Reuse as explicitly provided.
func (p OpenParams) WithReuse(v bool) OpenParams {
	p.Reuse = v
	p.reuseSet = true
	return p
}

// WithSockPriority marks SockPriority as explicitly provided.
func (p OpenParams) WithSockPriority(v uint32) OpenParams {
	p.SockPriority = v
	p.sockPrioritySet = true
	return p
}

// effectiveTTL returns the configured TTL or the default of 1
// (spec.md §4.2 "set multicast TTL (from ttl or default 1)").
func (p OpenParams) effectiveTTL() uint32 {
	if p.ttlSet {
		return p.TTL
	}
	return 1
}

// validateOpenParams validates all parameters except Listen, a plain bool
// that needs no check and only selects the role dispatch (spec.md §6,
// "Parameter validation": "at openConnection, all parameters except the
// first (recv-bufsize) are validated ... Unknown keys are rejected").
//
// Because OpenParams is a typed Go struct rather than a dynamic map,
// "unknown keys" has no literal analogue; the check instead validates
// that Address entries, when present, are non-empty strings. Port is
// not required to be nonzero: Port 0 means "let the OS assign an
// ephemeral port," read back via getsockname after bind (spec.md §3,
// §4.1, §4.7).
func validateOpenParams(p OpenParams) error {
	for i, a := range p.Address {
		if a == "" {
			return fmt.Errorf("address[%d] empty: %w", i, ErrInvalidParam)
		}
	}

	return nil
}

// validateRecvBufSize is the sole parameter check performed at manager
// start (spec.md §4.7 "Manager start").
func validateRecvBufSize(n uint32) error {
	if n == 0 {
		return fmt.Errorf("recv-bufsize must be > 0: %w", ErrInvalidParam)
	}
	return nil
}

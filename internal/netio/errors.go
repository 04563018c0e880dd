package netio

import "errors"

// Sentinel error kinds surfaced to callers of the Manager API. These map
// 1:1 onto the status codes in the original LWIP UDP event source:
// UA_STATUSCODE_BAD{INTERNAL,CONNECTIONREJECTED,CONNECTIONCLOSED,
// NOTFOUND,OUTOFMEMORY,DISCONNECT}.
var (
	// ErrBadInternal indicates a missing/invalid parameter, unknown
	// protocol family, or a lookup failure path that should not happen.
	ErrBadInternal = errors.New("netio: internal error")

	// ErrConnectionRejected indicates socket create/bind failed, or any
	// configuration step failed during open.
	ErrConnectionRejected = errors.New("netio: connection rejected")

	// ErrConnectionClosed indicates a fatal send error; the endpoint is
	// also shut down as a side effect.
	ErrConnectionClosed = errors.New("netio: connection closed")

	// ErrNotFound indicates an operation against an unknown endpoint id.
	ErrNotFound = errors.New("netio: endpoint not found")

	// ErrOutOfMemory indicates endpoint allocation failed.
	ErrOutOfMemory = errors.New("netio: out of memory")

	// ErrDisconnect indicates socket creation failed during send-open.
	ErrDisconnect = errors.New("netio: disconnected")

	// ErrNetifNotFound indicates MulticastBinder could not resolve the
	// configured interface selector to a local netif.
	ErrNetifNotFound = errors.New("netio: netif not found")

	// ErrMulticastUnsupported indicates the multicast protocol (IGMP or
	// MLD) could not be configured on the socket.
	ErrMulticastUnsupported = errors.New("netio: multicast unsupported")

	// ErrAddrResolveFailed indicates AddressResolver could not resolve
	// the given hostname/port combination.
	ErrAddrResolveFailed = errors.New("netio: address resolution failed")

	// ErrUnknownParam denotes an unrecognized parameter key. OpenParams
	// is a typed struct, so no code path in this package returns it.
	ErrUnknownParam = errors.New("netio: unknown parameter")

	// ErrInvalidParam indicates a known parameter had the wrong type or
	// failed a required-field check.
	ErrInvalidParam = errors.New("netio: invalid parameter")

	// ErrManagerNotStarted indicates Open was called while the manager
	// is not in the Started state.
	ErrManagerNotStarted = errors.New("netio: manager not started")

	// ErrManagerNotStopped indicates Delete was called while the manager
	// has not reached the Stopped state.
	ErrManagerNotStopped = errors.New("netio: manager not stopped")
)

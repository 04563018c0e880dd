package netio

import "net/netip"

// Endpoint is a single open UDP connection: either a bound listen socket
// or a send socket with a cached destination (spec.md §3). All fields are
// owned by Manager and guarded by Manager.mu; nothing here is safe for
// concurrent use on its own.
type Endpoint struct {
	FD   int
	Role Role

	// LocalAddr is the bound address for a listen endpoint.
	LocalAddr netip.AddrPort
	// DestAddr is the cached destination for a send endpoint.
	DestAddr netip.AddrPort

	IsV6       bool
	Multicast  multicastKind
	McastGroup MulticastRequest

	callback Callback
	app      any
	ctx      any

	established bool
	closing     bool

	// delayedClose holds the single-shot delayed work item scheduled on
	// shutdown, or nil if none has been scheduled yet (spec.md §5,
	// "delayed resource release").
	delayedClose *delayedWork
}

type delayedWork struct {
	fn func()
}

// EndpointRegistry tracks the set of open endpoints by fd. It is not
// itself concurrency-safe; all access happens under Manager.mu.
type EndpointRegistry struct {
	byFD map[int]*Endpoint
}

// NewEndpointRegistry constructs an empty registry.
func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{byFD: make(map[int]*Endpoint)}
}

// Insert adds ep to the registry. ep.FD must be unique; Insert panics if
// it collides with an existing entry, since fd reuse within one manager
// would indicate a registry bookkeeping bug, not a runtime condition
// callers can recover from.
func (r *EndpointRegistry) Insert(ep *Endpoint) {
	if _, exists := r.byFD[ep.FD]; exists {
		panic("netio: duplicate fd inserted into endpoint registry")
	}
	r.byFD[ep.FD] = ep
}

// Remove deletes the endpoint for fd, if present.
func (r *EndpointRegistry) Remove(fd int) {
	delete(r.byFD, fd)
}

// Lookup returns the endpoint for fd, or nil if not found.
func (r *EndpointRegistry) Lookup(fd int) *Endpoint {
	return r.byFD[fd]
}

// Len returns the number of registered endpoints.
func (r *EndpointRegistry) Len() int {
	return len(r.byFD)
}

// Each calls fn for every registered endpoint. fn must not mutate the
// registry; callers that need to remove entries while iterating should
// collect fds first.
func (r *EndpointRegistry) Each(fn func(*Endpoint)) {
	for _, ep := range r.byFD {
		fn(ep)
	}
}

// FDs returns a snapshot of all registered fds, safe to iterate while the
// registry is subsequently mutated.
func (r *EndpointRegistry) FDs() []int {
	fds := make([]int, 0, len(r.byFD))
	for fd := range r.byFD {
		fds = append(fds, fd)
	}
	return fds
}

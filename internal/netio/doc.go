// Package netio implements a UDP connection manager embedded in a
// single-threaded cooperative event loop.
//
// The Manager owns a set of UDP endpoints (unicast send, unicast listen,
// IPv4/IPv6 multicast listen, IPv4/IPv6 multicast send) and mediates
// between the non-blocking socket layer and an application that consumes
// datagrams and publishes outbound datagrams via callbacks. A single
// mutex serializes all manager and endpoint mutation; application
// callbacks are invoked with the mutex released so the application may
// re-enter the manager (send, shutdown) from within a callback.
package netio

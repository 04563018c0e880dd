package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"golang.org/x/sys/unix"

	udpmetrics "github.com/dantte-lp/udpmgrd/internal/metrics"
)

// EventLoop is the cooperative reactor a Manager is embedded in (spec.md
// §4.8). Manager never blocks on I/O itself; it registers fds with the
// loop and is called back on readiness.
type EventLoop interface {
	RegisterFD(fd int, mask PollMask, onReady func(fd int, mask PollMask)) error
	DeregisterFD(fd int) error
	ModifyFD(fd int, mask PollMask) error
	AddDelayed(fn func())
	Run(ctx context.Context) error
	Stop()
}

// Manager owns a set of UDP endpoints embedded in a single cooperative
// event loop (spec.md §2, §4.7). A single mutex serializes all manager
// and endpoint mutation; application callbacks are invoked with the
// mutex released so the application may safely re-enter the manager.
type Manager struct {
	mu sync.Mutex

	log     *slog.Logger
	metrics *udpmetrics.Collector

	configurator *SocketConfigurator
	resolver     *AddressResolver
	mcast        *MulticastBinder
	loop         EventLoop

	registry *EndpointRegistry
	state    State
	rxBuf    []byte
}

// NewManager constructs a Manager bound to the given event loop. log and
// metrics may be nil, in which case a default/no-op instance is used.
func NewManager(loop EventLoop, log *slog.Logger, metrics *udpmetrics.Collector) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:          log,
		metrics:      metrics,
		configurator: NewSocketConfigurator(log),
		resolver:     NewAddressResolver(),
		mcast:        NewMulticastBinder(),
		loop:         loop,
		registry:     NewEndpointRegistry(),
		state:        StateStopped,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start transitions Stopped -> Starting -> Started, sizing the shared
// receive buffer (spec.md §4.7 "Manager start"; recv-bufsize is the only
// parameter validated here).
func (m *Manager) Start(recvBufSize uint32) error {
	if err := validateRecvBufSize(recvBufSize); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStopped {
		return fmt.Errorf("start: manager in state %s: %w", m.state, ErrBadInternal)
	}

	m.state = StateStarting
	m.rxBuf = make([]byte, recvBufSize)
	m.state = StateStarted

	m.log.Info("manager started", "recv-bufsize", recvBufSize)
	return nil
}

// Open creates a new endpoint per p (spec.md §4.7 "Open"). When
// p.Validate is set, Open only runs validation and resolution checks and
// returns without creating a socket or registering an endpoint.
func (m *Manager) Open(p OpenParams, cb Callback, app any) (int, error) {
	if err := validateOpenParams(p); err != nil {
		return -1, err
	}

	if p.Listen {
		return m.openListen(p, cb, app)
	}
	return m.openSend(p, cb, app)
}

func (m *Manager) openListen(p OpenParams, cb Callback, app any) (int, error) {
	hosts := p.Address
	if len(hosts) == 0 {
		hosts = []string{""}
	}

	var lastErr error
	for _, host := range hosts {
		records, err := m.resolver.Resolve(host, p.Port)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rec := range records {
			fd, err := m.bindListen(rec, p, cb, app)
			if err != nil {
				lastErr = err
				continue
			}
			return fd, nil
		}
	}

	if lastErr == nil {
		lastErr = ErrConnectionRejected
	}
	return -1, fmt.Errorf("open listen: %w", lastErr)
}

func (m *Manager) bindListen(rec AddressRecord, p OpenParams, cb Callback, app any) (int, error) {
	if p.Validate {
		return -1, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStarted {
		return -1, ErrManagerNotStarted
	}

	isV6 := rec.Family == familyV6
	domain := unix.AF_INET
	if isV6 {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w: %w", err, ErrConnectionRejected)
	}

	if err := m.configurator.Configure(fd, isV6, p); err != nil {
		unix.Close(fd)
		return -1, err
	}

	sa, err := toSockaddr(rec.Addr)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w: %w", rec.Addr, err, ErrConnectionRejected)
	}

	localAddr := rec.Addr
	if rec.Addr.Port() == 0 {
		bound, err := m.boundLocalAddr(fd)
		if err != nil {
			unix.Close(fd)
			return -1, err
		}
		localAddr = bound
	}

	ep := &Endpoint{
		FD:        fd,
		Role:      RoleListen,
		LocalAddr: localAddr,
		IsV6:      isV6,
		Multicast: rec.Multicast,
		callback:  cb,
		app:       app,
	}

	if rec.Multicast != multicastNone {
		req, err := m.mcast.Resolve(p.Interface, rec.Addr.Addr())
		if err != nil {
			unix.Close(fd)
			return -1, err
		}
		if err := m.mcast.Join(fd, req); err != nil {
			unix.Close(fd)
			return -1, err
		}
		ep.McastGroup = req
	}

	if err := m.loop.RegisterFD(fd, PollRead, m.onReadable); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("register fd: %w: %w", err, ErrConnectionRejected)
	}

	m.registry.Insert(ep)
	if m.metrics != nil {
		m.metrics.RegisterEndpoint(ep.Role.String())
	}

	m.invokeEstablished(ep, nil)
	return fd, nil
}

// boundLocalAddr reads back the OS-assigned address via getsockname,
// used when the caller requested an ephemeral port (port 0) for a
// listen endpoint (spec.md §4.1, §4.7).
func (m *Manager) boundLocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w: %w", err, ErrBadInternal)
	}
	return fromSockaddr(sa)
}

func (m *Manager) openSend(p OpenParams, cb Callback, app any) (int, error) {
	if p.Validate {
		if len(p.Address) == 0 {
			return -1, fmt.Errorf("address: %w", ErrInvalidParam)
		}
		if _, err := m.resolver.Resolve(p.Address[0], p.Port); err != nil {
			return -1, err
		}
		return -1, nil
	}

	if len(p.Address) == 0 {
		return -1, fmt.Errorf("address: %w", ErrInvalidParam)
	}

	records, err := m.resolver.Resolve(p.Address[0], p.Port)
	if err != nil {
		return -1, err
	}
	rec := records[0]

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStarted {
		return -1, ErrManagerNotStarted
	}

	isV6 := rec.Family == familyV6
	domain := unix.AF_INET
	if isV6 {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w: %w", err, ErrDisconnect)
	}

	if err := m.configurator.Configure(fd, isV6, p); err != nil {
		unix.Close(fd)
		return -1, err
	}

	ep := &Endpoint{
		FD:       fd,
		Role:     RoleSend,
		DestAddr: rec.Addr,
		IsV6:     isV6,
		callback: cb,
		app:      app,
	}

	if rec.Multicast != multicastNone {
		req, err := m.mcast.Resolve(p.Interface, rec.Addr.Addr())
		if err != nil {
			unix.Close(fd)
			return -1, err
		}
		if err := m.mcast.SetEgress(fd, req); err != nil {
			unix.Close(fd)
			return -1, err
		}
		ep.McastGroup = req
		ep.Multicast = rec.Multicast
	}

	m.registry.Insert(ep)
	if m.metrics != nil {
		m.metrics.RegisterEndpoint(ep.Role.String())
	}

	m.invokeEstablished(ep, nil)
	return fd, nil
}

// invokeEstablished delivers the ESTABLISHED callback exactly once,
// releasing the mutex around the call (spec.md §5) and reacquiring it on
// return, since callers hold m.mu across Open.
func (m *Manager) invokeEstablished(ep *Endpoint, meta map[string]any) {
	ep.established = true
	cb := ep.callback
	app := ep.app
	fd := ep.FD
	ctx := ep.ctx

	if cb == nil {
		return
	}

	m.mu.Unlock()
	cb(m, fd, app, &ctx, Established, meta, nil)
	m.mu.Lock()

	ep.ctx = ctx
}

// Shutdown begins teardown of the endpoint identified by fd (spec.md §4.7
// "Shutdown"). It is idempotent: a second call against an already-closing
// or already-removed endpoint returns ErrNotFound.
func (m *Manager) Shutdown(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdownLocked(fd)
}

func (m *Manager) shutdownLocked(fd int) error {
	ep := m.registry.Lookup(fd)
	if ep == nil || ep.closing {
		return ErrNotFound
	}
	m.beginClose(ep)
	return nil
}

// beginClose marks ep as closing, calls shutdown(fd, RDWR) to unblock any
// event loop wait on it, and enqueues a single delayed work item that
// performs the rest of teardown (spec.md §4.7 "Shutdown": "Calls
// shutdown(fd, RDWR) to unblock any event loop wait, then enqueues a
// delayed close"; matching UDP_shutdown in
// eventloop_lwip_udp.c:890-916). The delayed item itself does the
// deregister/remove/metrics/CLOSING-callback/close/checkStopped sequence
// (spec.md §4.7, §5 "delayed resource release"; matching
// UDP_delayedClose/UDP_close in eventloop_lwip_udp.c:561-579), so none of
// that is visible to callers of beginClose until at least one event loop
// turn has passed.
func (m *Manager) beginClose(ep *Endpoint) {
	if ep.closing {
		return
	}
	ep.closing = true

	_ = unix.Shutdown(ep.FD, unix.SHUT_RDWR)

	if ep.delayedClose == nil {
		ep.delayedClose = &delayedWork{fn: func() { m.finishClose(ep) }}
		m.loop.AddDelayed(ep.delayedClose.fn)
	}
}

// finishClose runs outside the event loop's poll wait, with Manager.mu
// not held on entry (spec.md §4.8, "delayed work runs after the readiness
// dispatch pass"). It deregisters ep from the loop, removes it from the
// registry, updates metrics, delivers the CLOSING callback exactly once,
// closes the fd, and finally asks the manager to check whether it can
// transition Stopping -> Stopped.
func (m *Manager) finishClose(ep *Endpoint) {
	m.mu.Lock()

	_ = m.loop.DeregisterFD(ep.FD)
	m.registry.Remove(ep.FD)
	if m.metrics != nil {
		m.metrics.UnregisterEndpoint(ep.Role.String())
	}

	established := ep.established
	cb := ep.callback
	app := ep.app
	fd := ep.FD
	ctx := ep.ctx

	if established && cb != nil {
		m.mu.Unlock()
		cb(m, fd, app, &ctx, Closing, nil, nil)
		m.mu.Lock()
	}

	unix.Close(fd)
	m.checkStopped()

	m.mu.Unlock()
}

// Stop begins teardown of every open endpoint (spec.md §4.7 "Manager
// stop"): Started -> Stopping, shutdown every endpoint, and once the
// registry is empty, Stopping -> Stopped.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStarted {
		return fmt.Errorf("stop: manager in state %s: %w", m.state, ErrBadInternal)
	}

	m.state = StateStopping
	for _, fd := range m.registry.FDs() {
		m.shutdownLocked(fd)
	}
	m.checkStopped()
	return nil
}

// checkStopped enforces the invariant that registrySize==0 whenever the
// manager is not in Started or Stopping (spec.md §5).
func (m *Manager) checkStopped() {
	if m.state == StateStopping && m.registry.Len() == 0 {
		m.state = StateStopped
		m.log.Info("manager stopped")
	}
}

// EndpointSnapshot is a read-only view of one open endpoint, for
// reporting over the control API.
type EndpointSnapshot struct {
	FD     int
	Role   string
	Local  string
	Remote string
}

// Snapshot returns the current set of open endpoints.
func (m *Manager) Snapshot() []EndpointSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]EndpointSnapshot, 0, m.registry.Len())
	m.registry.Each(func(ep *Endpoint) {
		s := EndpointSnapshot{FD: ep.FD, Role: ep.Role.String()}
		if ep.LocalAddr.IsValid() {
			s.Local = ep.LocalAddr.String()
		}
		if ep.DestAddr.IsValid() {
			s.Remote = ep.DestAddr.String()
		}
		out = append(out, s)
	})
	return out
}

// Delete frees manager resources. The manager must already be Stopped.
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateStopped {
		return ErrManagerNotStopped
	}
	m.rxBuf = nil
	return nil
}

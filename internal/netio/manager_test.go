package netio_test

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/dantte-lp/udpmgrd/internal/eventloop"
	"github.com/dantte-lp/udpmgrd/internal/netio"
)

func newTestManager(t *testing.T) (*netio.Manager, func()) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	loop, err := eventloop.New(logger)
	if err != nil {
		t.Fatalf("new event loop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(done)
	}()

	mgr := netio.NewManager(loop, logger, nil)
	if err := mgr.Start(4096); err != nil {
		t.Fatalf("start manager: %v", err)
	}

	cleanup := func() {
		_ = mgr.Stop()
		cancel()
		<-done
		_ = loop.Close()
	}
	return mgr, cleanup
}

// TestEchoUnicastRoundTrip covers the core scenario from the component
// design: a send endpoint transmits a datagram to a listen endpoint, and
// the listen endpoint's application callback receives the payload along
// with remote-address metadata.
func TestEchoUnicastRoundTrip(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	var (
		mu       sync.Mutex
		received []byte
		gotMeta  map[string]any
		wg       sync.WaitGroup
	)
	wg.Add(1)

	cb := func(_ *netio.Manager, _ int, _ any, _ *any, state netio.CallbackState, meta map[string]any, payload []byte) {
		if state != netio.Established || len(payload) == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if received == nil {
			received = append([]byte(nil), payload...)
			gotMeta = meta
			wg.Done()
		}
	}

	listenFD, err := mgr.Open(netio.OpenParams{
		Port:    0,
		Address: []string{"127.0.0.1"},
		Listen:  true,
	}, cb, nil)
	if err != nil {
		t.Fatalf("open listen endpoint: %v", err)
	}

	snap := mgr.Snapshot()
	var localAddr netip.AddrPort
	for _, s := range snap {
		if s.FD == listenFD {
			localAddr = netip.MustParseAddrPort(s.Local)
		}
	}
	if !localAddr.IsValid() {
		t.Fatal("could not determine bound local address")
	}

	sendFD, err := mgr.Open(netio.OpenParams{
		Port:    localAddr.Port(),
		Address: []string{localAddr.Addr().String()},
		Listen:  false,
	}, nil, nil)
	if err != nil {
		t.Fatalf("open send endpoint: %v", err)
	}

	payload := []byte("hello")
	if err := mgr.Send(sendFD, payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()

	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != "hello" {
		t.Fatalf("received %q, want %q", received, "hello")
	}
	if gotMeta["remote-address"] == nil {
		t.Fatal("expected remote-address in callback metadata")
	}
}

// TestOpenRequiresStartedManager confirms Open is rejected before Start.
func TestOpenRequiresStartedManager(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	loop, err := eventloop.New(logger)
	if err != nil {
		t.Fatalf("new event loop: %v", err)
	}
	defer loop.Close()

	mgr := netio.NewManager(loop, logger, nil)
	_, err = mgr.Open(netio.OpenParams{Port: 9999, Listen: true}, nil, nil)
	if err == nil {
		t.Fatal("expected error opening endpoint before Start")
	}
}

// TestValidateDryRunDoesNotRegister confirms a Validate-only Open leaves
// the registry untouched.
func TestValidateDryRunDoesNotRegister(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	fd, err := mgr.Open(netio.OpenParams{
		Port:     9999,
		Address:  []string{"127.0.0.1"},
		Listen:   true,
		Validate: true,
	}, nil, nil)
	if err != nil {
		t.Fatalf("validate-only open: %v", err)
	}
	if fd != -1 {
		t.Fatalf("expected fd -1 for dry run, got %d", fd)
	}
	if len(mgr.Snapshot()) != 0 {
		t.Fatal("expected no endpoints registered after dry run")
	}
}

// TestShutdownUnknownFDReturnsNotFound confirms Shutdown reports
// ErrNotFound for an fd the manager never registered.
func TestShutdownUnknownFDReturnsNotFound(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	if err := mgr.Shutdown(99999); !errors.Is(err, netio.ErrNotFound) {
		t.Fatalf("expected ErrNotFound shutting down unknown fd, got %v", err)
	}
}

// TestStopRemainsStoppingUntilEventLoopTurn confirms Stop drains
// endpoints asynchronously: the manager stays in Stopping immediately
// after Stop returns (teardown is only completed by a delayed work item
// the event loop runs on its next pass), and reaches Stopped only once
// that turn has happened.
func TestStopRemainsStoppingUntilEventLoopTurn(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	_, err := mgr.Open(netio.OpenParams{
		Port:    0,
		Address: []string{"127.0.0.1"},
		Listen:  true,
	}, nil, nil)
	if err != nil {
		t.Fatalf("open listen endpoint: %v", err)
	}

	if err := mgr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := mgr.State(); got != netio.StateStopping {
		t.Fatalf("state immediately after Stop = %s, want %s", got, netio.StateStopping)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mgr.State() != netio.StateStopped {
		if time.Now().After(deadline) {
			t.Fatalf("manager never reached Stopped, stuck in %s", mgr.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

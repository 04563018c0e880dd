package netio

import (
	"net"
	"net/netip"
	"testing"
)

func fakeInterfaces(ifaces []net.Interface) func() ([]net.Interface, error) {
	return func() ([]net.Interface, error) { return ifaces, nil }
}

func TestMulticastBinderResolveNameNotFound(t *testing.T) {
	b := &MulticastBinder{interfaces: fakeInterfaces([]net.Interface{
		{Index: 2, Name: "eth0", Flags: net.FlagUp | net.FlagMulticast},
	})}

	_, err := b.Resolve("nonexistent0", netip.MustParseAddr("224.0.0.1"))
	if err == nil {
		t.Fatal("expected netif-not-found error for unknown selector")
	}
}

func TestMulticastBinderResolveUnknownSelector(t *testing.T) {
	b := &MulticastBinder{interfaces: fakeInterfaces(nil)}
	_, err := b.Resolve("eth9", netip.MustParseAddr("ff02::1"))
	if err == nil {
		t.Fatal("expected error for selector with no interfaces")
	}
}

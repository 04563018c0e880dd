package netio

import "testing"

func TestEndpointRegistryInsertLookupRemove(t *testing.T) {
	r := NewEndpointRegistry()
	ep := &Endpoint{FD: 7, Role: RoleListen}
	r.Insert(ep)

	if got := r.Lookup(7); got != ep {
		t.Fatalf("lookup returned %+v, want %+v", got, ep)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}

	r.Remove(7)
	if r.Lookup(7) != nil {
		t.Fatal("expected nil after remove")
	}
	if r.Len() != 0 {
		t.Fatalf("len after remove = %d, want 0", r.Len())
	}
}

func TestEndpointRegistryDuplicateFDPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate fd insert")
		}
	}()

	r := NewEndpointRegistry()
	r.Insert(&Endpoint{FD: 1})
	r.Insert(&Endpoint{FD: 1})
}

func TestEndpointRegistryFDsSnapshot(t *testing.T) {
	r := NewEndpointRegistry()
	r.Insert(&Endpoint{FD: 1})
	r.Insert(&Endpoint{FD: 2})

	fds := r.FDs()
	if len(fds) != 2 {
		t.Fatalf("expected 2 fds, got %d", len(fds))
	}
}

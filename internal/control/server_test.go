package control_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dantte-lp/udpmgrd/internal/control"
	"github.com/dantte-lp/udpmgrd/internal/netio"
)

type fakeManager struct {
	snapshot []netio.EndpointSnapshot
	shutdown func(fd int) error
}

func (f *fakeManager) Snapshot() []netio.EndpointSnapshot { return f.snapshot }
func (f *fakeManager) Shutdown(fd int) error              { return f.shutdown(fd) }

func newTestServer(m control.Manager) *httptest.Server {
	return httptest.NewServer(control.NewServer(m, slog.New(slog.DiscardHandler)))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeManager{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestListEndpoints(t *testing.T) {
	m := &fakeManager{snapshot: []netio.EndpointSnapshot{{FD: 5, Role: "listen", Local: "0.0.0.0:9999"}}}
	srv := newTestServer(m)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/endpoints")
	if err != nil {
		t.Fatalf("get endpoints: %v", err)
	}
	defer resp.Body.Close()

	var got []netio.EndpointSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].FD != 5 {
		t.Fatalf("unexpected endpoints: %+v", got)
	}
}

func TestShutdownEndpointNotFound(t *testing.T) {
	m := &fakeManager{shutdown: func(int) error { return netio.ErrNotFound }}
	srv := newTestServer(m)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/endpoints/5/shutdown", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post shutdown: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestShutdownEndpointSuccess(t *testing.T) {
	var gotFD int
	m := &fakeManager{shutdown: func(fd int) error { gotFD = fd; return nil }}
	srv := newTestServer(m)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/endpoints/42/shutdown", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post shutdown: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if gotFD != 42 {
		t.Fatalf("shutdown called with fd %d, want 42", gotFD)
	}
}

func TestShutdownInvalidFD(t *testing.T) {
	m := &fakeManager{shutdown: func(int) error { return errors.New("unreachable") }}
	srv := newTestServer(m)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/endpoints/not-a-number/shutdown", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post shutdown: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

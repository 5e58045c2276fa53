package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/sim"
)

type mapBank map[uint16]uint16

func (b mapBank) Read(addr uint16) uint16  { return b[addr] }
func (b mapBank) Write(addr, value uint16) { b[addr] = value }

func newTestServer(t *testing.T) (*httptest.Server, mapBank, mapBank) {
	gfr, relay := mapBank{}, mapBank{}
	s := sim.New(
		&sim.Device{Name: "gfr", Kind: "gfr", SlaveID: 1, Bank: gfr},
		&sim.Device{Name: "relay", Kind: "relay", SlaveID: 16, Bank: relay},
		10,
	)
	srv := httptest.NewServer(newRestMux(s))
	t.Cleanup(srv.Close)
	return srv, gfr, relay
}

func put(t *testing.T, srv *httptest.Server, path, body string) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, srv.URL+path, strings.NewReader(body))
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", path, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestRestSetRegister(t *testing.T) {
	srv, gfr, _ := newTestServer(t)
	if code := put(t, srv, "/device/gfr/register/2100", `{"value": 4}`); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if gfr[device.RegGas] != 4 {
		t.Fatalf("gas register = %d", gfr[device.RegGas])
	}
	for _, bad := range []string{`{"value": 70000}`, `{"value": 1.5}`, `{}`, `{"other": 1}`} {
		if code := put(t, srv, "/device/gfr/register/2100", bad); code != http.StatusBadRequest {
			t.Fatalf("body %s: status %d", bad, code)
		}
	}
	if code := put(t, srv, "/device/gfr/register/99999", `{"value": 1}`); code != http.StatusBadRequest {
		t.Fatalf("bad address: status %d", code)
	}
}

func TestRestGetDevice(t *testing.T) {
	srv, _, relay := newTestServer(t)
	relay[device.RegRelayOnOff] = 1

	resp, err := srv.Client().Get(srv.URL + "/device/relay")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var view deviceView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.SlaveID != 16 || len(view.Registers) != 1 || view.Registers[0].Address != 512 || view.Registers[0].Value != 1 {
		t.Fatalf("view = %+v", view)
	}

	resp2, err := srv.Client().Get(srv.URL + "/device/pump")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown device status %d", resp2.StatusCode)
	}
}

func TestRestFlowOverride(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if code := put(t, srv, "/flow", `{"value": 12.5}`); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if code := put(t, srv, "/flow", `nope`); code != http.StatusBadRequest {
		t.Fatalf("status %d", code)
	}
}

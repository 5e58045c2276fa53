package main

import (
	"strings"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	c := buildCommand("42", "gfr", "setflow", "30.5")
	if c.ID != "42" || c.Device != "gfr" || c.Action != "setflow" {
		t.Fatalf("unexpected command %+v", c)
	}
	if v, ok := c.Value.(float64); !ok || v != 30.5 {
		t.Fatalf("value = %#v, want float64 30.5", c.Value)
	}

	c = buildCommand("", "gfr", "setgas", "abc")
	if v, ok := c.Value.(string); !ok || v != "abc" {
		t.Fatalf("value = %#v, want string", c.Value)
	}

	c = buildCommand("", "", "resync", "")
	if c.Value != nil {
		t.Fatalf("value = %#v, want nil", c.Value)
	}
}

func TestFormatMessage(t *testing.T) {
	cases := []struct {
		topic, payload string
		want           []string
	}{
		{
			"flowctl/station1/catalog",
			`{"station":"station1","devices":[{"name":"gfr","kind":"gfr","port":"/dev/ttyUSB1","transport":"rtu","slaveId":1,"registers":[{"address":2053}]}]}`,
			[]string{"catalog station=station1", "gfr[gfr rtu//dev/ttyUSB1 slave=1 regs=1]"},
		},
		{
			"flowctl/station1/device/relay/state",
			`{"name":"relay","state":"disconnected","lastError":"boom"}`,
			[]string{"state relay disconnected", `error="boom"`},
		},
		{
			"flowctl/station1/device/gfr/flow",
			`{"device":"gfr","flow":12.5,"status":0,"timestamp":"2024-01-02T03:04:05Z"}`,
			[]string{"flow gfr 12.5 status=0 at=03:04:05"},
		},
		{"flowctl/station1/status", "online", []string{"online"}},
		{"flowctl/station1/heartbeat", "{ \"ts\": 1 }", []string{`{"ts":1}`}},
		{"flowctl/station1/device/gfr/state", "nope", []string{"nope (error:"}},
	}
	for _, c := range cases {
		got := formatMessage(c.topic, []byte(c.payload))
		for _, w := range c.want {
			if !strings.Contains(got, w) {
				t.Fatalf("formatMessage(%s) = %q, missing %q", c.topic, got, w)
			}
		}
	}
}

func TestDefaultsFor(t *testing.T) {
	gfr, err := defaultsFor("gfr")
	if err != nil || gfr.FlowScale == 0 {
		t.Fatalf("gfr defaults = %+v, %v", gfr, err)
	}
	if _, err := defaultsFor("relay"); err != nil {
		t.Fatalf("relay defaults: %v", err)
	}
	if _, err := defaultsFor("pump"); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}

func TestApplyOverrides(t *testing.T) {
	defaults, _ := defaultsFor("relay")
	if err := configInitCmd.Flags().Set("baudrate", "19200"); err != nil {
		t.Fatal(err)
	}
	cfg := applyOverrides(configInitCmd, defaults)
	if cfg.BaudRate != 19200 {
		t.Fatalf("baudrate = %d", cfg.BaudRate)
	}
	if cfg.Parity != defaults.Parity || cfg.SlaveID != defaults.SlaveID {
		t.Fatalf("untouched fields changed: %+v", cfg)
	}
}

package mqtt

import (
	"testing"

	"github.com/fisaks/flowctl/internal/telemetry"
)

func TestCommandTopic(t *testing.T) {
	cases := []struct {
		prefix string
		cmd    telemetry.IncomingCommand
		want   string
	}{
		{"flowctl/lab", telemetry.IncomingCommand{Device: "gfr", Action: "setFlow"}, "flowctl/lab/device/gfr/cmd"},
		{"flowctl/lab/", telemetry.IncomingCommand{Action: "resync"}, "flowctl/lab/cmd"},
	}
	for _, c := range cases {
		if got := CommandTopic(c.prefix, c.cmd); got != c.want {
			t.Fatalf("CommandTopic(%q, %+v) = %q, want %q", c.prefix, c.cmd, got, c.want)
		}
	}
}

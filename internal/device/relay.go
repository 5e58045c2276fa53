package device

import "time"

// RegRelayOnOff switches the relay: 1 closes it, 0 opens it.
const RegRelayOnOff uint16 = 512

var RelayDefaults = SerialParams{
	BaudRate: 9600,
	Parity:   "N",
	DataBits: 8,
	StopBits: 1,
	SlaveID:  16,
	Timeout:  50 * time.Millisecond,
}

var relayProfile = Profile{
	Title: "RELAY",
	Label: "relay",
	OnConnect: func(d *Device) error {
		return d.writeRegister(RegRelayOnOff, 1)
	},
	BeforeDisconnect: func(d *Device) error {
		return d.writeRegister(RegRelayOnOff, 0)
	},
}

// Relay powers the gas line. TurnOn switches it on once the link is open and
// TurnOff switches it off before closing the link.
type Relay struct {
	*Device
}

func NewRelay(opts ...Option) *Relay {
	return &Relay{Device: newDevice(relayProfile, opts...)}
}

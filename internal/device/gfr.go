package device

import (
	"time"

	"github.com/fisaks/flowctl/internal/codec"
)

// Flow regulator holding registers.
const (
	RegSetpointHigh uint16 = 2053
	RegSetpointLow  uint16 = 2054
	RegGas          uint16 = 2100
	RegFlow         uint16 = 2103
)

// FlowRegulatorDefaults are the serial settings used when a config file
// leaves a key out.
var FlowRegulatorDefaults = SerialParams{
	BaudRate: 38400,
	Parity:   "N",
	DataBits: 8,
	StopBits: 1,
	SlaveID:  1,
	Timeout:  50 * time.Millisecond,
}

var flowRegulatorProfile = Profile{
	Title: "GAS FLOW REGULATOR",
	Label: "gfr",
}

// FlowRegulator controls a gas-flow regulator. TurnOff only closes the link;
// the last setpoint stays on the device.
type FlowRegulator struct {
	*Device
}

func NewFlowRegulator(opts ...Option) *FlowRegulator {
	return &FlowRegulator{Device: newDevice(flowRegulatorProfile, opts...)}
}

// SetFlow writes setpoint as a 32-bit fixed-point value, high word first.
func (f *FlowRegulator) SetFlow(setpoint float64) Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := f.op("Set Flow (writing to registers 2053 and 2054)")
	return Run(f.guard(), NewPolicy(name), func() (Status, error) {
		high, low, err := codec.EncodeSetpoint(setpoint)
		if err != nil {
			f.fail(name, err)
			return StatusError, nil
		}
		if err := f.writeRegister(RegSetpointHigh, high); err != nil {
			return StatusError, err
		}
		if err := f.writeRegister(RegSetpointLow, low); err != nil {
			return StatusError, err
		}
		return StatusOK, nil
	})
}

// GetFlow reads the signed flow register and scales it.
func (f *FlowRegulator) GetFlow() (Status, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := f.op("Get Flow (reading from register 2103)")
	return RunValue(f.guard(), NewPolicy(name).Preserve(), func() (Status, float64, error) {
		regs, err := f.readRegisters(RegFlow, 1)
		if err != nil {
			return StatusError, 0, err
		}
		if len(regs) == 0 {
			f.fail(name, ErrMalformedResponse)
			return StatusError, 0, nil
		}
		return StatusOK, codec.DecodeFlow(regs[0], f.flowScale), nil
	})
}

// GetSetpoint reads back the setpoint registers.
func (f *FlowRegulator) GetSetpoint() (Status, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := f.op("Get Setpoint (reading from registers 2053 and 2054)")
	return RunValue(f.guard(), NewPolicy(name).Preserve(), func() (Status, float64, error) {
		regs, err := f.readRegisters(RegSetpointHigh, 2)
		if err != nil {
			return StatusError, 0, err
		}
		if len(regs) < 2 {
			f.fail(name, ErrMalformedResponse)
			return StatusError, 0, nil
		}
		return StatusOK, codec.DecodeSetpoint(regs[0], regs[1]), nil
	})
}

// SetGas selects the gas type the regulator is calibrated for.
func (f *FlowRegulator) SetGas(gasID uint16) Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Run(f.guard(), NewPolicy(f.op("Set Gas (writing to register 2100)")), func() (Status, error) {
		return StatusOK, f.writeRegister(RegGas, gasID)
	})
}

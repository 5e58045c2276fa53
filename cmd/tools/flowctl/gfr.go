package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/station"
	"github.com/spf13/cobra"
)

// gfrCmd represents the gfr command
var gfrCmd = &cobra.Command{
	Use:   "gfr",
	Short: "Talk to the gas flow regulator",
	Long: `Open a link to the gas flow regulator, run one operation and close the
link again. Closing the link leaves the last setpoint on the device.

Example usage:
  flowctl gfr set-flow 30.5 --port /dev/ttyUSB1
  flowctl gfr get-flow --port /dev/ttyUSB1 --config /etc/flowctl/gfr.yaml
  flowctl gfr set-gas 4 --port 127.0.0.1:1502 --transport tcp
  flowctl gfr watch --interval 500ms`,
}

var gfrSetFlowCmd = &cobra.Command{
	Use:   "set-flow <setpoint>",
	Short: "Write the flow setpoint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setpoint, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			fatalf("invalid setpoint %q", args[0])
		}
		verify, _ := cmd.Flags().GetBool("verify")
		withRegulator(cmd, func(ctx context.Context, gfr *device.FlowRegulator) error {
			if gfr.SetFlow(setpoint) != device.StatusOK {
				return errors.New(gfr.GetLastError())
			}
			fmt.Printf("Setpoint %g written\n", setpoint)
			if verify {
				st, readBack := gfr.GetSetpoint()
				if st != device.StatusOK {
					return errors.New(gfr.GetLastError())
				}
				fmt.Printf("Setpoint read back: %g\n", readBack)
			}
			return nil
		})
	},
}

var gfrGetFlowCmd = &cobra.Command{
	Use:   "get-flow",
	Short: "Read the current flow",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withRegulator(cmd, func(ctx context.Context, gfr *device.FlowRegulator) error {
			st, flow := gfr.GetFlow()
			if st != device.StatusOK {
				return errors.New(gfr.GetLastError())
			}
			fmt.Printf("%g\n", flow)
			return nil
		})
	},
}

var gfrSetGasCmd = &cobra.Command{
	Use:   "set-gas <gas-id>",
	Short: "Select the gas the regulator is calibrated for",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			fatalf("invalid gas id %q", args[0])
		}
		withRegulator(cmd, func(ctx context.Context, gfr *device.FlowRegulator) error {
			if gfr.SetGas(uint16(id)) != device.StatusOK {
				return errors.New(gfr.GetLastError())
			}
			fmt.Printf("Gas %d selected\n", id)
			return nil
		})
	},
}

var gfrWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the flow until interrupted",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			fatalf("--interval must be > 0")
		}
		withRegulator(cmd, func(ctx context.Context, gfr *device.FlowRegulator) error {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				st, flow := gfr.GetFlow()
				if st != device.StatusOK {
					return errors.New(gfr.GetLastError())
				}
				fmt.Printf("%s %g\n", time.Now().Format(time.RFC3339), flow)
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
				}
			}
		})
	},
}

// withRegulator opens the link, runs fn and closes the link, then exits
// non-zero if anything failed.
func withRegulator(cmd *cobra.Command, fn func(ctx context.Context, gfr *device.FlowRegulator) error) {
	link := linkFromFlags(cmd)
	gfr, dc, err := station.NewFlowRegulator(link)
	if err != nil {
		fatalf("%v", err)
	}
	ctx, cancel := signalContext()
	defer cancel()

	if gfr.TurnOn(ctx, dc.SerialParams(link.Port)) != device.StatusOK {
		fatalf("%s", gfr.GetLastError())
	}
	runErr := fn(ctx, gfr)
	if gfr.IsConnected() && gfr.TurnOff() != device.StatusOK {
		runErr = errors.Join(runErr, errors.New(gfr.GetLastError()))
	}
	if runErr != nil {
		cancel()
		fatalf("%v", runErr)
	}
}

func init() {
	addLinkFlags(gfrCmd, "/dev/ttyUSB1")
	gfrSetFlowCmd.Flags().Bool("verify", false, "read the setpoint back after writing it")
	gfrWatchCmd.Flags().Duration("interval", time.Second, "time between reads")

	gfrCmd.AddCommand(gfrSetFlowCmd, gfrGetFlowCmd, gfrSetGasCmd, gfrWatchCmd)
	rootCmd.AddCommand(gfrCmd)
}

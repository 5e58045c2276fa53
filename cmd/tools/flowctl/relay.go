package main

import (
	"fmt"
	"time"

	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/station"
	"github.com/spf13/cobra"
)

// relayCmd represents the relay command
var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Switch the relay",
	Long: `The relay is on exactly while its link is open: opening the link closes
the relay and closing the link opens it again.

Example usage:
  flowctl relay hold --port /dev/ttyUSB0
  flowctl relay hold --for 30s`,
}

var relayHoldCmd = &cobra.Command{
	Use:   "hold",
	Short: "Switch the relay on until interrupted or --for elapses",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		hold, _ := cmd.Flags().GetDuration("for")
		link := linkFromFlags(cmd)
		relay, dc, err := station.NewRelay(link)
		if err != nil {
			fatalf("%v", err)
		}
		ctx, cancel := signalContext()
		defer cancel()

		if relay.TurnOn(ctx, dc.SerialParams(link.Port)) != device.StatusOK {
			fatalf("%s", relay.GetLastError())
		}
		fmt.Println("Relay on")

		var timeout <-chan time.Time
		if hold > 0 {
			timeout = time.After(hold)
		}
		select {
		case <-ctx.Done():
		case <-timeout:
		}

		if relay.TurnOff() != device.StatusOK {
			cancel()
			fatalf("%s", relay.GetLastError())
		}
		fmt.Println("Relay off")
	},
}

func init() {
	addLinkFlags(relayCmd, "/dev/ttyUSB0")
	relayHoldCmd.Flags().Duration("for", 0, "switch off after this long (0 waits for Ctrl+C)")

	relayCmd.AddCommand(relayHoldCmd)
	rootCmd.AddCommand(relayCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fisaks/flowctl/internal/config"
	"github.com/spf13/cobra"
)

func addLinkFlags(cmd *cobra.Command, defaultPort string) {
	cmd.PersistentFlags().String("port", defaultPort, "serial port, or host:port with --transport tcp")
	cmd.PersistentFlags().String("config", "", "device settings file (yaml); built-in defaults when empty")
	cmd.PersistentFlags().String("transport", "rtu", "rtu or tcp")
}

func linkFromFlags(cmd *cobra.Command) config.LinkConfig {
	port, _ := cmd.Flags().GetString("port")
	path, _ := cmd.Flags().GetString("config")
	transport, _ := cmd.Flags().GetString("transport")
	return config.LinkConfig{Port: port, Config: path, Transport: transport}
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

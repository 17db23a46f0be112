package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RoanBrand/SerialToWebSocketBridge/bridge"
	"github.com/RoanBrand/SerialToWebSocketBridge/buildinfo"
	"github.com/RoanBrand/SerialToWebSocketBridge/comwrapper"
	"github.com/RoanBrand/SerialToWebSocketBridge/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Retry interval while waiting for the COM port to appear.
const portRetryInterval = 5 * time.Second

type options struct {
	configPath string
	port       string
	baud       int
	url        string
	echo       bool
	waitPort   bool
	debug      bool
	jsonLogs   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:           "serialwsbridge",
		Short:         "Forward JSON lines from a serial device to a WebSocket server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.Setup(logger.Config{Debug: o.debug, JSON: o.jsonLogs})

			cfg, path, err := loadConfig(o.configPath)
			if err != nil {
				log.Error("Error", "err", err)
				return err
			}
			if path != "" {
				log.Debug("config loaded", "path", path)
			}
			o.applyFlags(&cfg, cmd.Flags())
			if err := cfg.Validate(); err != nil {
				log.Error("Error", "err", err)
				return err
			}

			if cfg.PortName == "" {
				name, err := comwrapper.Discover()
				if err != nil {
					log.Debug("port discovery", "err", err)
					out := cmd.OutOrStdout()
					fmt.Fprintln(out, "Error: Arduino port not found. Please specify with --port.")
					printPorts(out)
					return nil
				}
				cfg.PortName = name
			}

			return runBridge(cmd.Context(), cfg, o.waitPort, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "Config file (default: config.yaml|yml|json next to the working directory or executable)")
	f.StringVarP(&o.port, "port", "p", "", "Serial port of the device (autodetected if omitted)")
	f.IntVarP(&o.baud, "baud", "b", bridge.DefaultBaudRate, "Baud rate")
	f.StringVar(&o.url, "ws", bridge.DefaultURL, "WebSocket server URL")
	f.BoolVar(&o.echo, "echo", false, "Write messages received from the server to the serial port")
	f.BoolVar(&o.waitPort, "wait-port", false, "Keep retrying until the serial port can be opened")
	cmd.PersistentFlags().BoolVar(&o.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&o.jsonLogs, "json-logs", false, "Log in JSON instead of text")

	cmd.AddCommand(portsCmd(), versionCmd())
	return cmd
}

// Flags given on the command line win over the config file.
func (o options) applyFlags(cfg *bridge.Config, fs *pflag.FlagSet) {
	if fs.Changed("port") {
		cfg.PortName = o.port
	}
	if fs.Changed("baud") {
		cfg.BaudRate = o.baud
	}
	if fs.Changed("ws") {
		cfg.URL = o.url
	}
	if fs.Changed("echo") {
		cfg.EchoToSerial = o.echo
	}
}

func runBridge(ctx context.Context, cfg bridge.Config, waitPort bool, log *slog.Logger) error {
	log.Info("Connecting to Arduino", "port", cfg.PortName, "baud", cfg.BaudRate)
	var port *comwrapper.Port
	var err error
	if waitPort {
		port, err = comwrapper.WaitForPort(ctx, cfg.PortName, cfg.BaudRate, portRetryInterval)
	} else {
		port, err = comwrapper.OpenPort(cfg.PortName, cfg.BaudRate)
	}
	if err != nil {
		if ctx.Err() != nil {
			log.Info("Bridge stopped by user.")
			return nil
		}
		log.Error("Error", "err", err)
		return err
	}
	log.Debug("serial port ready", "port", port.Name())

	return serve(ctx, cfg, port, nil, log)
}

// serve connects to the server and runs the forwarder on com until ctx ends.
// com is closed on every path.
func serve(ctx context.Context, cfg bridge.Config, com bridge.SerialPort, dialer bridge.Dialer, log *slog.Logger) error {
	defer log.Info("Bridge shut down.")

	log.Info("Connecting to WebSocket server", "url", cfg.URL)
	link, err := bridge.Dial(ctx, cfg, dialer, log)
	if err != nil {
		com.Close()
		log.Error("Error", "err", err)
		return err
	}
	log.Info("WebSocket connection established!", "url", link.URL(), "link", link.ID())
	log.Info("Bridge running. Press Ctrl+C to stop.")

	err = bridge.NewForwarder(com, link, cfg, log).Run(ctx)
	if err != nil {
		log.Error("Error", "err", err, "kind", string(bridge.KindOf(err)))
		return err
	}
	log.Info("Bridge stopped by user.")
	return nil
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			printPorts(cmd.OutOrStdout())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}

func printPorts(w io.Writer) {
	names, err := comwrapper.ListPorts()
	if err != nil {
		fmt.Fprintf(w, "Unable to list ports: %v\n", err)
		return
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "No serial ports found.")
		return
	}
	fmt.Fprintln(w, "Available ports:")
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
	}
}

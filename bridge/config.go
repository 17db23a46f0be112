package bridge

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Defaults used when a setting is not given.
const (
	DefaultBaudRate       = 9600
	DefaultURL            = "ws://localhost:8080"
	DefaultIdleDelay      = 100 * time.Millisecond
	DefaultReceiveTimeout = 100 * time.Millisecond
	DefaultReconnectDelay = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultMaxFrameSize   = 64 * 1024
)

// Config is fixed for the lifetime of a bridge.
type Config struct {
	PortName string // Serial device, e.g. /dev/ttyACM0 or COM3.
	BaudRate int
	URL      string // ws:// or wss:// address of the server.

	IdleDelay      time.Duration // Pause between loop iterations.
	ReceiveTimeout time.Duration // How long each iteration waits for an inbound message.
	ReconnectDelay time.Duration // Wait after a failed reconnect.
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxFrameSize   int // Longest serial line buffered before it is cut.

	// Write inbound messages back to the serial port.
	EchoToSerial bool
}

func DefaultConfig() Config {
	return Config{
		BaudRate:       DefaultBaudRate,
		URL:            DefaultURL,
		IdleDelay:      DefaultIdleDelay,
		ReceiveTimeout: DefaultReceiveTimeout,
		ReconnectDelay: DefaultReconnectDelay,
		DialTimeout:    DefaultDialTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		MaxFrameSize:   DefaultMaxFrameSize,
	}
}

// Validate checks the settings the forwarding loop relies on.
// PortName is not checked; the caller resolves it before opening the port.
func (c Config) Validate() error {
	var errs []error
	if c.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("baud rate must be positive, got %d", c.BaudRate))
	}
	if err := validateURL(c.URL); err != nil {
		errs = append(errs, err)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"idle delay", c.IdleDelay},
		{"receive timeout", c.ReceiveTimeout},
		{"reconnect delay", c.ReconnectDelay},
		{"dial timeout", c.DialTimeout},
		{"write timeout", c.WriteTimeout},
	}
	for _, v := range durations {
		if v.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", v.name, v.d))
		}
	}
	if c.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("max frame size must be positive, got %d", c.MaxFrameSize))
	}
	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid websocket url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("websocket url %q must use ws:// or wss://", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("websocket url %q has no host", raw)
	}
	return nil
}

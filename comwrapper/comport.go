// RS-232/Virtual-Serial over USB as the device side of the bridge.

package comwrapper

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	gxserial "github.com/Gurux/gxserial-go"
	"github.com/RoanBrand/SerialToWebSocketBridge/logger"
	"github.com/tarm/serial"
)

// How long a single read waits for bytes before returning empty.
const readTimeout = time.Second

// ErrNoPorts is returned by Discover when no listed port looks like a board.
var ErrNoPorts = errors.New("no board serial port found")

// Port name fragments of the USB serial adapters found on Arduino boards and clones.
var boardHints = []string{"ttyACM", "ttyUSB", "cu.usbmodem", "cu.wchusbserial", "cu.usbserial"}

// Methods of *serial.Port used by Port.
type rawPort interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	Flush() error
}

// Port is an open COM port. It satisfies bridge.SerialPort.
type Port struct {
	raw  rawPort
	name string
}

// OpenPort opens a COM port with 8N1 framing at the given baud rate.
func OpenPort(portName string, baudRate int) (*Port, error) {
	p, err := serial.OpenPort(&serial.Config{Name: portName, Baud: baudRate, ReadTimeout: readTimeout})
	if err != nil {
		return nil, err
	}
	logger.L().Debug("com port open", "port", portName, "baud", baudRate)
	return &Port{raw: p, name: portName}, nil
}

// WaitForPort keeps trying to open the COM port until it succeeds or ctx ends.
// The first failure is logged; later ones are silent.
func WaitForPort(ctx context.Context, portName string, baudRate int, every time.Duration) (*Port, error) {
	firstTryDone := false
	for {
		p, err := OpenPort(portName, baudRate)
		if err == nil {
			return p, nil
		}
		if !firstTryDone {
			logger.L().Warn("error opening COM port, retrying", "port", portName, "err", err, "every", every)
			firstTryDone = true
		}
		select {
		case <-time.After(every):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Port) Name() string {
	return p.name
}

// Read returns (0, nil) when the read timeout expires with no data,
// where the underlying port reports io.EOF.
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.raw.Read(b)
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	return n, err
}

func (p *Port) Write(b []byte) (int, error) {
	return p.raw.Write(b)
}

func (p *Port) Flush() error {
	return p.raw.Flush()
}

func (p *Port) Close() error {
	return p.raw.Close()
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return gxserial.GetPortNames()
}

// Discover picks the first port whose name matches a known USB serial adapter.
// Other ports, such as on-board UARTs or COM1, are never chosen.
func Discover() (string, error) {
	names, err := ListPorts()
	if err != nil {
		return "", err
	}
	name := pickPort(names)
	if name == "" {
		return "", ErrNoPorts
	}
	return name, nil
}

func pickPort(names []string) string {
	for _, n := range names {
		for _, h := range boardHints {
			if strings.Contains(n, h) {
				return n
			}
		}
	}
	return ""
}

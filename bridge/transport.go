package bridge

import (
	"context"
	"io"
)

// Serial connection the bridge reads frames from.
// Typically, a RS-232 Port or a USB virtual COM port implements this interface.
type SerialPort interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	Flush() error
}

// Result of one serial read: a complete line, or the error that stopped the reader.
type serialLine struct {
	raw []byte
	err error
}

// Receive from serial wire, cut into lines and hand them to the loop.
// Ends after the first read error, which is delivered as the last item.
func rxSerial(ctx context.Context, com SerialPort, maxFrame int, out chan<- serialLine) {
	rx := make([]byte, 512)
	var pending []byte
	com.Flush()

	emit := func(l serialLine) bool {
		select {
		case out <- l:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		nRx, err := com.Read(rx)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			emit(serialLine{err: &Error{Op: "bridge.read_serial", Kind: KindSerial, Err: err}})
			return
		}
		if ctx.Err() != nil {
			return
		}
		if nRx == 0 {
			continue
		}

		var lines [][]byte
		lines, pending = splitFrames(append(pending, rx[:nRx]...))
		if len(pending) > maxFrame {
			lines = append(lines, pending)
			pending = nil
		}
		for _, l := range lines {
			if !emit(serialLine{raw: l}) {
				return
			}
		}
	}
}

// Write one inbound message to the serial device, newline terminated.
func txSerial(com SerialPort, msg []byte) error {
	out := make([]byte, 0, len(msg)+1)
	out = append(out, msg...)
	out = append(out, delimiter)

	nTx, err := com.Write(out)
	if err == nil && nTx != len(out) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &Error{Op: "bridge.write_serial", Kind: KindSerial, Err: err}
	}
	return nil
}

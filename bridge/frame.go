package bridge

import (
	"bytes"
	"encoding/json"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// Frame delimiter on the serial wire.
const delimiter = '\n'

// Frame is one line received from the serial device, trimmed of surrounding whitespace.
type Frame struct {
	Text string
}

// Empty frames are skipped without a report.
func (f Frame) Empty() bool {
	return f.Text == ""
}

// Valid reports whether the frame holds a well formed JSON document.
// The payload itself is never interpreted.
func (f Frame) Valid() bool {
	return json.Valid([]byte(f.Text))
}

// Decode a raw serial line into a Frame.
// Bytes that are not UTF-8 cannot be decoded and yield a KindEncoding error.
func decodeFrame(raw []byte) (Frame, error) {
	text, _, err := transform.Bytes(encoding.UTF8Validator, raw)
	if err != nil {
		return Frame{}, &Error{Op: "bridge.decode_frame", Kind: KindEncoding, Err: err}
	}
	return Frame{Text: string(bytes.TrimSpace(text))}, nil
}

// Splits complete lines off the front of buf.
// Returns the lines (without delimiter) and the unterminated remainder.
func splitFrames(buf []byte) (lines [][]byte, rest []byte) {
	for {
		i := bytes.IndexByte(buf, delimiter)
		if i < 0 {
			return lines, buf
		}
		line := make([]byte, i)
		copy(line, buf[:i])
		lines = append(lines, line)
		buf = buf[i+1:]
	}
}

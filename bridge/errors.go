package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind. Match with errors.Is.
var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrReceiveTimeout   = errors.New("receive timeout")
	ErrConnectionClosed = errors.New("connection closed")
	ErrReconnect        = errors.New("reconnect failed")
	ErrSerial           = errors.New("serial fault")
	ErrEncoding         = errors.New("invalid encoding")
)

// ErrorKind classifies bridge errors.
type ErrorKind string

const (
	KindMalformedFrame   ErrorKind = "malformed_frame"
	KindReceiveTimeout   ErrorKind = "receive_timeout"
	KindConnectionClosed ErrorKind = "connection_closed"
	KindReconnect        ErrorKind = "reconnect"
	KindSerial           ErrorKind = "serial"
	KindEncoding         ErrorKind = "encoding"
)

// Fatal reports whether errors of this kind end the forwarding loop.
func (k ErrorKind) Fatal() bool {
	return k == KindSerial || k == KindEncoding
}

// Error wraps an underlying error with the operation that failed and its kind.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrConnectionClosed) match on kind alone.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return kindSentinel(e.Kind) == target
}

func kindSentinel(k ErrorKind) error {
	switch k {
	case KindMalformedFrame:
		return ErrMalformedFrame
	case KindReceiveTimeout:
		return ErrReceiveTimeout
	case KindConnectionClosed:
		return ErrConnectionClosed
	case KindReconnect:
		return ErrReconnect
	case KindSerial:
		return ErrSerial
	case KindEncoding:
		return ErrEncoding
	}
	return nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

package errors

import "fmt"

type MissingFieldError struct {
	MessageName string
	FieldName   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing field %s in message type %s", e.FieldName, e.MessageName)
}

// DecodeError is returned when a message with a known state carries a missing
// or mistyped payload field. The message is dropped, the bridge keeps running.
type DecodeError struct {
	MessageName string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Failed to decode message type %s: %v", e.MessageName, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned for lines that are not JSON objects or have no state tag.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	line := e.Line
	if len(line) > 64 {
		line = line[0:64] + "..."
	}
	return fmt.Sprintf("Protocol error on line '%s': %v", line, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("Failed to connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type InvalidVolume struct {
	MemberId int64
	Volume   int
}

func (e *InvalidVolume) Error() string {
	return fmt.Sprintf("Invalid volume=%d for member %d (expected 0-110)", e.Volume, e.MemberId)
}

type UnexpectedMessage struct {
	State   string
	Context string
}

func (e *UnexpectedMessage) Error() string {
	return fmt.Sprintf("Unexpected message with state '%s' (context: %s)", e.State, e.Context)
}

package mq

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client. Use errors.Is to test for these;
// ErrConnectingFailed additionally carries the CONNACK return code and
// supports errors.As.
var (
	// ErrProtocolViolation is returned when the peer sends a packet that
	// violates the MQTT 3.1.1 wire protocol (malformed fixed header, bad
	// remaining length, unexpected packet type for the connection state).
	// Subscribe, SubscribeMultiple and Unsubscribe also fail with it when
	// called with no topic filters.
	ErrProtocolViolation = errors.New("mqtt: protocol violation")

	// ErrCommunicationFailed is returned when the underlying transport
	// fails (read/write error, unexpected close) outside of a clean
	// disconnect.
	ErrCommunicationFailed = errors.New("mqtt: communication failed")

	// ErrTimeout is returned when an operation does not complete before
	// its deadline, e.g. no CONNACK, SUBACK, or PUBACK/PUBREC/PUBCOMP
	// arrives in time.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrNotConnected is returned when an operation is attempted while the
	// client has no active connection to a broker.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrCanceled is returned when an operation's context is canceled
	// before it completes.
	ErrCanceled = errors.New("mqtt: operation canceled")

	// ErrIdentifiersExhausted is returned when all 65535 packet
	// identifiers are in use and a new one cannot be allocated.
	ErrIdentifiersExhausted = errors.New("mqtt: packet identifiers exhausted")

	// ErrSubscriptionFailed is returned when the server refuses a topic
	// filter in a SUBACK (return code 0x80).
	ErrSubscriptionFailed = errors.New("mqtt: subscription failed")

	// ErrClientDisconnected is returned when a pending operation is
	// abandoned because the client was disconnected or stopped.
	ErrClientDisconnected = errors.New("mqtt: client disconnected")
)

// ConnectingFailedError is returned when the server refuses a CONNECT
// request. Code is the CONNACK return code from MQTT 3.1.1 section 3.2.2.3.
type ConnectingFailedError struct {
	Code byte
}

func (e *ConnectingFailedError) Error() string {
	if reason, ok := connectReturnCodeNames[e.Code]; ok {
		return fmt.Sprintf("mqtt: connect refused: %s (code %d)", reason, e.Code)
	}
	return fmt.Sprintf("mqtt: connect refused: code %d", e.Code)
}

// Is allows errors.Is(err, ErrConnectingFailed) to match any
// ConnectingFailedError regardless of its code.
func (e *ConnectingFailedError) Is(target error) bool {
	return target == ErrConnectingFailed
}

// ErrConnectingFailed is a sentinel for errors.Is checks against any
// ConnectingFailedError. Use errors.As to recover the specific code.
var ErrConnectingFailed = errors.New("mqtt: connect failed")

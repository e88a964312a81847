package mq

import (
	"errors"
	"testing"
	"time"

	"github.com/gonzalop/mq/internal/packets"
)

// TestSubscribeMultipleEmptyFiltersFails verifies that an empty filter set
// fails immediately with ErrProtocolViolation rather than being sent.
func TestSubscribeMultipleEmptyFiltersFails(t *testing.T) {
	c := &Client{
		opts:          defaultOptions("tcp://localhost:1883"),
		subscriptions: make(map[string]subscriptionEntry),
		outgoing:      make(chan packets.Packet, 1),
		pending:       make(map[uint16]*pendingOp),
		stop:          make(chan struct{}),
	}
	c.connected.Store(true)

	tok := c.SubscribeMultiple(map[string]QoS{}, nil)
	if err := tok.Error(); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation, got %v", err)
	}

	select {
	case pkt := <-c.outgoing:
		t.Errorf("expected no packet sent for an empty filter set, got %T", pkt)
	default:
	}
}

// TestUnsubscribeEmptyTopicsFails verifies that an empty topic list fails
// with ErrProtocolViolation instead of completing successfully.
func TestUnsubscribeEmptyTopicsFails(t *testing.T) {
	c := &Client{
		opts: defaultOptions("tcp://localhost:1883"),
		stop: make(chan struct{}),
	}
	c.connected.Store(true)

	tok := c.Unsubscribe()
	if err := tok.Error(); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation, got %v", err)
	}
}

// TestPublishSubscribeUnsubscribeRequireConnection verifies that Publish,
// Subscribe, and Unsubscribe all fail with ErrNotConnected when the client
// has no active connection.
func TestPublishSubscribeUnsubscribeRequireConnection(t *testing.T) {
	c := &Client{
		opts:          defaultOptions("tcp://localhost:1883"),
		subscriptions: make(map[string]subscriptionEntry),
		stop:          make(chan struct{}),
	}
	// connected left false.

	if err := c.Publish("topic", []byte("x")).Error(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish: expected ErrNotConnected, got %v", err)
	}
	if err := c.Subscribe("topic", AtLeastOnce, nil).Error(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe: expected ErrNotConnected, got %v", err)
	}
	if err := c.Unsubscribe("topic").Error(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe: expected ErrNotConnected, got %v", err)
	}
}

// TestHandleSubackMismatchedReturnCodesFailsOperation verifies that a SUBACK
// carrying a different number of return codes than requested filters fails
// the operation with ErrProtocolViolation without tearing down the session.
func TestHandleSubackMismatchedReturnCodesFailsOperation(t *testing.T) {
	c := &Client{
		opts:    defaultOptions("tcp://localhost:1883"),
		pending: make(map[uint16]*pendingOp),
	}

	tok := newToken()
	c.pending[1] = &pendingOp{
		token: tok,
		packet: &packets.SubscribePacket{
			PacketID: 1,
			Topics:   []string{"a", "b"},
			QoS:      []uint8{0, 1},
		},
	}

	c.handleSuback(&packets.SubackPacket{PacketID: 1, ReturnCodes: []uint8{0}})

	if err := tok.Error(); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation, got %v", err)
	}
	if c.lastDisconnectReason != nil {
		t.Errorf("expected session to remain alive, got lastDisconnectReason %v", c.lastDisconnectReason)
	}
}

// TestHandleSubackPopulatesResults verifies that a successful SUBACK reports
// per-filter results in request order.
func TestHandleSubackPopulatesResults(t *testing.T) {
	c := &Client{
		opts:    defaultOptions("tcp://localhost:1883"),
		pending: make(map[uint16]*pendingOp),
	}

	tok := newToken()
	c.pending[1] = &pendingOp{
		token: tok,
		packet: &packets.SubscribePacket{
			PacketID: 1,
			Topics:   []string{"a", "b"},
			QoS:      []uint8{0, 1},
		},
	}

	c.handleSuback(&packets.SubackPacket{PacketID: 1, ReturnCodes: []uint8{0, 1}})

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("token never completed")
	}
	if err := tok.Error(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}

	results := tok.Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0] != (SubscribeResult{Filter: "a", ReturnCode: 0}) {
		t.Errorf("unexpected result[0]: %+v", results[0])
	}
	if results[1] != (SubscribeResult{Filter: "b", ReturnCode: 1}) {
		t.Errorf("unexpected result[1]: %+v", results[1])
	}
}

// TestHandleSubackFailureCode verifies that a per-filter failure code (0x80)
// still surfaces ErrSubscriptionFailed while preserving the full results set.
func TestHandleSubackFailureCode(t *testing.T) {
	c := &Client{
		opts:    defaultOptions("tcp://localhost:1883"),
		pending: make(map[uint16]*pendingOp),
	}

	tok := newToken()
	c.pending[1] = &pendingOp{
		token: tok,
		packet: &packets.SubscribePacket{
			PacketID: 1,
			Topics:   []string{"a"},
			QoS:      []uint8{0},
		},
	}

	c.handleSuback(&packets.SubackPacket{PacketID: 1, ReturnCodes: []uint8{SubackFailure}})

	if err := tok.Error(); !errors.Is(err, ErrSubscriptionFailed) {
		t.Errorf("expected ErrSubscriptionFailed, got %v", err)
	}
	if len(tok.Results()) != 1 || tok.Results()[0].ReturnCode != SubackFailure {
		t.Errorf("expected results to still report the failure code, got %+v", tok.Results())
	}
}

// TestPublishTimesOutWaitingForPuback verifies that a QoS 1 publish whose
// PUBACK never arrives completes with ErrTimeout once Timeout elapses.
func TestPublishTimesOutWaitingForPuback(t *testing.T) {
	c := &Client{
		opts:          defaultOptions("tcp://localhost:1883"),
		outgoing:      make(chan packets.Packet, 1),
		pending:       make(map[uint16]*pendingOp),
		subscriptions: make(map[string]subscriptionEntry),
		stop:          make(chan struct{}),
	}
	c.opts.Timeout = 10 * time.Millisecond
	c.connected.Store(true)

	tok := c.Publish("topic", []byte("x"), WithQoS(1))
	<-c.outgoing // drain the initial send

	time.Sleep(20 * time.Millisecond)
	c.sessionLock.Lock()
	c.retryPending()
	c.sessionLock.Unlock()

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("token never completed")
	}
	if err := tok.Error(); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if _, pending := c.pending[1]; pending {
		t.Error("expected timed-out operation to be removed from pending")
	}
}

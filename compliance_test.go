package mq

import (
	"testing"
	"time"

	"github.com/gonzalop/mq/internal/packets"
)

// TestCompliance_Topic_Validation verifies topic validation rules including UTF-8, case sensitivity, and wildcards.
func TestCompliance_Topic_Validation(t *testing.T) {
	opts := defaultOptions("tcp://test:1883")

	t.Run("UTF-8 Validation", func(t *testing.T) {
		// MQTT 3.1.1 section 1.5.3: topic strings must be well-formed UTF-8,
		// so an ill-formed byte sequence is rejected.
		invalidUTF8 := string([]byte{0xff, 0xfe, 0xfd}) // Invalid UTF-8 sequence

		err := validatePublishTopic(invalidUTF8, opts)
		if err == nil {
			t.Errorf("validatePublishTopic accepted invalid UTF-8")
		}
	})

	t.Run("Case Sensitivity", func(t *testing.T) {
		if MatchTopic("Topic/A", "topic/a") {
			t.Errorf("MatchTopic matched 'Topic/A' vs 'topic/a', expected no match (case sensitive)")
		}
	})

	t.Run("Invalid Wildcard Placement", func(t *testing.T) {
		invalidFilters := []string{
			"sport/tennis#",          // # not alone
			"sport/tennis/#/ranking", // # not last
			"sport/ten+nis/player",   // + not alone
		}

		for _, f := range invalidFilters {
			if err := validateSubscribeTopic(f, opts); err == nil {
				t.Errorf("validateSubscribeTopic accepted invalid filter: %s", f)
			}
		}
	})
}

// TestCompliance_Connect_Validation verifies connection validation rules.
func TestCompliance_Connect_Validation(t *testing.T) {
	t.Run("Empty ClientID requires CleanSession=true", func(t *testing.T) {
		_, err := Dial("tcp://localhost:1883",
			WithClientID(""),
			WithCleanSession(false),
		)

		if err == nil {
			t.Fatal("Expected error when dialing with empty ClientID and CleanSession=false, got nil")
		}
	})
}

// TestCompliance_PacketID_Reuse verifies that packet IDs are not reused while in flight.
func TestCompliance_PacketID_Reuse(t *testing.T) {
	c := &Client{
		pending:      make(map[uint16]*pendingOp),
		nextPacketID: 10,
	}

	// Occupy ID 11
	c.pending[11] = &pendingOp{}

	// Generate next ID: should skip the in-use ID 11 and return 12.
	id, err := c.nextID()
	if err != nil {
		t.Fatalf("nextID() returned unexpected error: %v", err)
	}
	switch id {
	case 11:
		t.Errorf("compliance violation: nextID() returned 11 which is currently in use (MQTT-2.3.1-4)")
	case 12:
		// expected
	default:
		t.Errorf("unexpected ID: %d", id)
	}
}

// TestCompliance_QoS2_PubrecCompletesImmediately verifies that receiving a
// PUBREC for an outbound QoS 2 publish replies with PUBCOMP directly and
// completes the token, rather than waiting for a further PUBCOMP.
func TestCompliance_QoS2_PubrecCompletesImmediately(t *testing.T) {
	c := &Client{
		pending:  make(map[uint16]*pendingOp),
		outgoing: make(chan packets.Packet, 10),
		stop:     make(chan struct{}),
		opts: &clientOptions{
			Logger: defaultOptions("").Logger,
		},
	}

	pkt := &packets.PublishPacket{
		PacketID: 100,
		QoS:      2,
		Topic:    "test",
	}
	tok := newToken()
	c.pending[100] = &pendingOp{
		packet:    pkt,
		qos:       2,
		timestamp: time.Now(),
		token:     tok,
	}
	c.inFlightCount = 1

	c.handlePubrec(&packets.PubrecPacket{PacketID: 100})

	select {
	case p := <-c.outgoing:
		if _, ok := p.(*packets.PubcompPacket); !ok {
			t.Errorf("expected PUBCOMP after PUBREC, got %T", p)
		}
	default:
		t.Errorf("no packet sent after PUBREC")
	}

	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			t.Errorf("expected token to complete with nil error, got %v", err)
		}
	default:
		t.Errorf("token did not complete after PUBREC")
	}

	if _, stillPending := c.pending[100]; stillPending {
		t.Errorf("packet ID 100 should have been released after PUBREC")
	}
}

// TestCompliance_RetryPending_ResendsDuplicateFlag verifies that an
// unacknowledged PUBLISH is retransmitted with the DUP flag set.
func TestCompliance_RetryPending_ResendsDuplicateFlag(t *testing.T) {
	c := &Client{
		opts:     defaultOptions("tcp://localhost:1883"),
		pending:  make(map[uint16]*pendingOp),
		outgoing: make(chan packets.Packet, 10),
		stop:     make(chan struct{}),
	}

	pkt := &packets.PublishPacket{PacketID: 7, QoS: 1, Topic: "test"}
	c.pending[7] = &pendingOp{
		packet:    pkt,
		qos:       1,
		timestamp: time.Now().Add(-20 * time.Second),
		created:   time.Now(),
		token:     newToken(),
	}

	c.retryPending()

	select {
	case p := <-c.outgoing:
		pub, ok := p.(*packets.PublishPacket)
		if !ok {
			t.Fatalf("expected retransmitted PublishPacket, got %T", p)
		}
		if !pub.Dup {
			t.Errorf("expected DUP flag set on retransmission")
		}
	default:
		t.Errorf("no packet resent")
	}
}

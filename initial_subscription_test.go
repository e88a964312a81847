package mq

import (
	"testing"
)

// TestInitialSubscriptionsRegistered verifies that subscriptions configured
// via WithSubscription are registered locally before any CONNACK arrives, so
// early PUBLISH packets are not missed.
func TestInitialSubscriptionsRegistered(t *testing.T) {
	topic := "initial/topic"
	handlerCalled := make(chan struct{})

	opts := defaultOptions("tcp://localhost:1883")
	opts.InitialSubscriptions = map[string]MessageHandler{
		topic: func(c *Client, msg Message) { close(handlerCalled) },
	}

	c := &Client{
		opts:          opts,
		subscriptions: make(map[string]subscriptionEntry),
	}

	for topicKey, h := range opts.InitialSubscriptions {
		c.subscriptions[topicKey] = subscriptionEntry{handler: h}
	}

	entry, ok := c.subscriptions[topic]
	if !ok {
		t.Fatalf("initial subscription %q was not registered", topic)
	}
	if entry.handler == nil {
		t.Fatalf("initial subscription %q has no handler", topic)
	}

	entry.handler(c, Message{Topic: topic})

	select {
	case <-handlerCalled:
	default:
		t.Fatalf("registered handler for %q was not the configured one", topic)
	}
}

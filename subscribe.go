package mq

import (
	"fmt"

	"github.com/gonzalop/mq/internal/packets"
)

// Subscribe subscribes to a topic with the specified QoS level.
//
// The handler function is called for each message received on topics matching
// the subscription filter. If a message matches multiple subscription filters,
// the handlers for all matching subscriptions will be called.
//
// The handler is called in a separate goroutine, so it should not block for
// long periods.
//
// Topic filters support MQTT wildcards:
//   - '+' matches a single level (e.g., "sensors/+/temperature")
//   - '#' matches multiple levels (e.g., "sensors/#")
//
// The function returns a Token that completes when the subscription is
// acknowledged by the server.
//
// Example:
//
//	token := client.Subscribe("sensors/temperature", 1,
//	    func(c *mq.Client, msg mq.Message) {
//	        fmt.Printf("Temperature: %s\n", string(msg.Payload))
//	    })
//	if err := token.Wait(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
func (c *Client) Subscribe(topic string, qos QoS, handler MessageHandler) Token {
	return c.SubscribeMultiple(map[string]QoS{topic: qos}, handler)
}

// SubscribeMultiple subscribes to a set of topic filters in a single
// SUBSCRIBE packet. filters maps each topic filter to the QoS requested
// for it; handler is registered for every filter in the set.
//
// filters must be non-empty; an empty set fails immediately with
// ErrProtocolViolation. The returned Token also implements SubscribeToken;
// its Results method reports the broker's granted QoS (or failure code) for each filter,
// in the same order the filters were sent, once the SUBACK arrives.
//
// Example:
//
//	token := client.SubscribeMultiple(map[string]mq.QoS{
//	    "sensors/temp":     mq.AtLeastOnce,
//	    "sensors/humidity": mq.AtMostOnce,
//	}, handler)
//	if err := token.Wait(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
func (c *Client) SubscribeMultiple(filters map[string]QoS, handler MessageHandler) Token {
	c.opts.Logger.Debug("subscribing to topics", "count", len(filters))

	tok := newToken()

	if len(filters) == 0 {
		tok.complete(fmt.Errorf("%w: subscribe requires at least one topic filter", ErrProtocolViolation))
		return tok
	}

	if !c.IsConnected() {
		tok.complete(ErrNotConnected)
		return tok
	}

	topics := make([]string, 0, len(filters))
	qosList := make([]uint8, 0, len(filters))
	for topic, qos := range filters {
		if err := validateSubscribeTopic(topic, c.opts); err != nil {
			tok.complete(fmt.Errorf("invalid topic filter %q: %w", topic, err))
			return tok
		}
		topics = append(topics, topic)
		qosList = append(qosList, uint8(qos))
	}

	pkt := &packets.SubscribePacket{
		PacketID: 0, // Assigned by internalSubscribe
		Topics:   topics,
		QoS:      qosList,
		Version:  c.opts.ProtocolVersion,
	}

	req := &subscribeRequest{
		packet:  pkt,
		handler: handler,
		token:   tok,
	}

	c.internalSubscribe(req)

	return tok
}

// Unsubscribe unsubscribes from one or more topics.
//
// After unsubscribing, the client will no longer receive messages on the
// specified topics. The function returns a Token that completes when the
// unsubscription is acknowledged by the server.
//
// Example (single topic):
//
//	token := client.Unsubscribe("sensors/temperature")
//	token.Wait(context.Background())
//
// Example (multiple topics):
//
//	token := client.Unsubscribe("sensors/temp", "sensors/humidity", "sensors/pressure")
//	if err := token.Wait(context.Background()); err != nil {
//	    log.Printf("Unsubscribe failed: %v", err)
//	}
func (c *Client) Unsubscribe(topics ...string) Token {
	c.opts.Logger.Debug("unsubscribing from topics", "topics", topics)

	tok := newToken()

	if len(topics) == 0 {
		tok.complete(fmt.Errorf("%w: unsubscribe requires at least one topic filter", ErrProtocolViolation))
		return tok
	}

	if !c.IsConnected() {
		tok.complete(ErrNotConnected)
		return tok
	}

	pkt := &packets.UnsubscribePacket{
		Topics:  topics,
		Version: c.opts.ProtocolVersion,
	}
	req := &unsubscribeRequest{
		packet: pkt,
		topics: topics,
		token:  tok,
	}
	c.internalUnsubscribe(req)

	return tok
}

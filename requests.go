package mq

import (
	"fmt"
	"time"
)

// internalPublish processes a publish request synchronously with locking.
func (c *Client) internalPublish(req *publishRequest) {
	pkt := req.packet

	c.sessionLock.Lock()

	if pkt.QoS == 0 {
		c.sessionLock.Unlock()
		if c.opts.QoS0Policy == QoS0LimitPolicyBlock {
			select {
			case c.outgoing <- pkt:
				req.token.complete(nil)
			case <-c.stop:
				req.token.complete(fmt.Errorf("client stopped"))
			}
			return
		}
		select {
		case c.outgoing <- pkt:
			req.token.complete(nil)
		case <-c.stop:
			req.token.complete(fmt.Errorf("client stopped"))
		default:
			req.token.completeDropped()
		}
		return
	}

	// Flow control for QoS > 0
	maxInFlight := c.opts.MaxInFlight
	if maxInFlight > 0 && c.inFlightCount >= maxInFlight {
		c.publishQueue = append(c.publishQueue, req)
		c.sessionLock.Unlock()
		return
	}

	id, err := c.nextID()
	if err != nil {
		c.sessionLock.Unlock()
		req.token.complete(err)
		return
	}
	pkt.PacketID = id

	now := time.Now()
	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     req.token,
		qos:       pkt.QoS,
		timestamp: now,
		created:   now,
	}

	c.inFlightCount++

	c.sessionLock.Unlock()
	select {
	case c.outgoing <- pkt:
	case <-c.stop:
		req.token.complete(fmt.Errorf("client stopped"))
	}
}

// sendPublishLocked sends a queued publish request. Assumes sessionLock is held.
// Returns true if sent, false if the outgoing queue is full or the client stopped.
func (c *Client) sendPublishLocked(req *publishRequest) bool {
	pkt := req.packet

	id, err := c.nextID()
	if err != nil {
		req.token.complete(err)
		return false
	}
	pkt.PacketID = id

	now := time.Now()
	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     req.token,
		qos:       pkt.QoS,
		timestamp: now,
		created:   now,
	}

	select {
	case c.outgoing <- pkt:
		c.inFlightCount++
		return true

	case <-c.stop:
		// Client stopped, treat as "not sent" but also won't be retried successfully
		delete(c.pending, pkt.PacketID)
		return false

	default:
		// Channel full, back off
		// Remove from pending since we failed to send
		delete(c.pending, pkt.PacketID)
		return false
	}
}

// internalSubscribe processes a subscribe request synchronously with locking.
func (c *Client) internalSubscribe(req *subscribeRequest) {
	pkt := req.packet

	c.sessionLock.Lock()

	id, err := c.nextID()
	if err != nil {
		c.sessionLock.Unlock()
		req.token.complete(err)
		return
	}
	pkt.PacketID = id

	now := time.Now()
	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     req.token,
		timestamp: now,
		created:   now,
	}

	// Register before receiving SUBACK to avoid racing
	// with the server since it might sent messages right away
	// before we get a SUBACK.
	for i, topic := range pkt.Topics {
		qos := uint8(0)
		if i < len(pkt.QoS) {
			qos = pkt.QoS[i]
		}

		c.subscriptions[topic] = subscriptionEntry{
			handler: req.handler,
			qos:     qos,
		}
	}

	c.sessionLock.Unlock()
	select {
	case c.outgoing <- pkt:
	case <-c.stop:
		req.token.complete(fmt.Errorf("client stopped"))
	}
}

// internalUnsubscribe processes an unsubscribe request synchronously with locking.
func (c *Client) internalUnsubscribe(req *unsubscribeRequest) {
	pkt := req.packet

	c.sessionLock.Lock()

	id, err := c.nextID()
	if err != nil {
		c.sessionLock.Unlock()
		req.token.complete(err)
		return
	}
	pkt.PacketID = id

	now := time.Now()
	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     req.token,
		timestamp: now,
		created:   now,
	}

	for _, topic := range req.topics {
		delete(c.subscriptions, topic)
	}

	c.sessionLock.Unlock()
	select {
	case c.outgoing <- pkt:
	case <-c.stop:
		req.token.complete(fmt.Errorf("client stopped"))
	}
}

package mq

// processPublishQueue drains queued QoS 1/2 publishes that were held back by
// MaxInFlight, sending as many as current capacity allows. Called with
// sessionLock held.
func (c *Client) processPublishQueue() {
	if len(c.publishQueue) == 0 {
		return
	}

	maxInFlight := c.opts.MaxInFlight
	if maxInFlight <= 0 {
		// No limit, flush everything.
		for len(c.publishQueue) > 0 {
			req := c.publishQueue[0]

			if !c.sendPublishLocked(req) {
				return
			}

			c.publishQueue = c.publishQueue[1:]
		}
		return
	}

	for len(c.publishQueue) > 0 && c.inFlightCount < maxInFlight {
		req := c.publishQueue[0]

		if !c.sendPublishLocked(req) {
			return
		}

		c.publishQueue = c.publishQueue[1:]
	}
}

package mq

import (
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// WithRandomClientID assigns a randomly generated client identifier based on
// a UUID. Use this when the application has no natural stable identity to
// use as a client ID.
func WithRandomClientID() Option {
	return func(o *clientOptions) {
		o.ClientID = uuid.NewString()
	}
}

// WithShortClientID assigns a compact, URL-safe random client identifier.
// Shorter than a UUID, useful when the broker or transport imposes tight
// limits on client identifier length.
func WithShortClientID() Option {
	return func(o *clientOptions) {
		o.ClientID = shortuuid.New()
	}
}

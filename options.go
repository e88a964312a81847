package mq

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// ContextDialer is an interface for custom network dialing logic.
// It matches the signature of net.Dialer.DialContext.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// clientOptions holds configuration for the MQTT client.
type clientOptions struct {
	// MQTT server address (e.g., "tcp://localhost:1883")
	Server string

	// Client identifier
	ClientID string

	// Username for authentication (optional)
	Username string

	// Password for authentication (optional)
	Password string

	// Keep alive interval
	KeepAlive time.Duration

	// Clean session flag
	CleanSession bool

	// Connection timeout
	ConnectTimeout time.Duration

	// Timeout bounds how long a publish, subscribe, or unsubscribe waits
	// for its acknowledgment (PUBACK/PUBREC/PUBCOMP/SUBACK/UNSUBACK) before
	// its token completes with ErrTimeout. 0 disables the timeout and
	// retries indefinitely, matching pre-timeout behavior.
	Timeout time.Duration

	// TLS configuration (optional)
	TLSConfig *tls.Config

	// Logger for client events (optional, defaults to discarding logs)
	Logger *Logger

	// Limits (0 = use MQTT spec defaults)
	MaxTopicLength    int // Maximum topic length (default: 65535)
	MaxPayloadSize    int // Maximum outgoing payload size (default: 256MB)
	MaxIncomingPacket int // Maximum incoming packet size (default: 256MB)

	// MaxInFlight bounds the number of QoS 1/2 publishes the client will
	// have unacknowledged at once. Additional publish requests queue until
	// one completes. 0 means unbounded.
	MaxInFlight int

	// Will message (optional)
	will *willMessage

	// Lifecycle hooks (optional)
	OnConnect        func(*Client)
	OnConnectionLost func(*Client, error)

	// Initial subscriptions (optional)
	InitialSubscriptions map[string]MessageHandler

	// Protocol version. Only ProtocolV311 is supported.
	ProtocolVersion uint8

	// Default publish handler (optional)
	// Called when a PUBLISH packet doesn't match any registered subscription.
	DefaultPublishHandler MessageHandler

	// Custom dialer (optional)
	// If set, this is used to establish the connection instead of net.Dialer.
	Dialer ContextDialer

	// Interceptors applied to every inbound message handler and every
	// outbound Publish call, in registration order.
	HandlerInterceptors []HandlerInterceptor
	PublishInterceptors []PublishInterceptor

	// OutgoingQueueSize and IncomingQueueSize set the buffer capacity of the
	// internal packet channels. 0 means use the default.
	OutgoingQueueSize int
	IncomingQueueSize int

	// QoS0Policy controls what happens to a QoS 0 publish when the outgoing
	// queue is full.
	QoS0Policy QoS0LimitPolicy
}

// QoS0LimitPolicy controls how a QoS 0 Publish behaves when the outgoing
// queue is full, since QoS 0 has no acknowledgment to wait on.
type QoS0LimitPolicy int

const (
	// QoS0LimitPolicyDrop silently discards the message and completes the
	// token with Dropped() true. This is the default.
	QoS0LimitPolicyDrop QoS0LimitPolicy = iota

	// QoS0LimitPolicyBlock blocks the caller until the message can be queued
	// or the client stops.
	QoS0LimitPolicyBlock
)

const (
	// ProtocolV311 is MQTT version 3.1.1, the only version this client speaks.
	ProtocolV311 uint8 = 4
)

// willMessage represents the Last Will and Testament message.
type willMessage struct {
	Topic    string
	Payload  []byte
	QoS      uint8
	Retained bool
}

// Option is a functional option for configuring the client.
type Option func(*clientOptions)

// WithClientID sets the client identifier.
//
// The client ID uniquely identifies this client to the MQTT server.
//
// Empty client ID behavior (MQTT v3.1.1 spec):
//   - With CleanSession=true: Server will auto-generate a unique ID
//   - With CleanSession=false: Dial returns an error without connecting
//
// For persistent sessions (CleanSession=false), you MUST provide a non-empty client ID.
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.ClientID = id
	}
}

// WithCredentials sets the username and password for authentication.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.Username = username
		o.Password = password
	}
}

// WithKeepAlive sets the MQTT keep alive interval (default: 60s).
func WithKeepAlive(duration time.Duration) Option {
	return func(o *clientOptions) {
		o.KeepAlive = duration
	}
}

// WithCleanSession sets the clean session flag.
//
// When set to true (default), the server will discard any previous session state
// and subscriptions for this client ID. Each connection starts fresh.
//
// When set to false, the server maintains session state across disconnections:
//   - Subscriptions persist and are restored on reconnect
//   - QoS 1 and 2 messages sent while offline are queued for delivery
//   - The client MUST use a non-empty client ID (via WithClientID)
//   - Dial returns an error without connecting if client ID is empty
//
// Use false for reliable message delivery across network interruptions.
// Use true for stateless clients or when you don't need message persistence.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.CleanSession = clean
	}
}

// WithConnectTimeout sets the connection timeout (default: 30s).
func WithConnectTimeout(duration time.Duration) Option {
	return func(o *clientOptions) {
		o.ConnectTimeout = duration
	}
}

// WithTimeout sets how long a publish, subscribe, or unsubscribe waits for
// its acknowledgment before failing with ErrTimeout (default: 30s).
//
// A value of 0 disables the timeout: unacknowledged QoS 1/2 publishes are
// retried with the DUP flag indefinitely instead of ever giving up.
func WithTimeout(duration time.Duration) Option {
	return func(o *clientOptions) {
		o.Timeout = duration
	}
}

// WithTLS sets the TLS configuration for secure connections.
// With a "tls://", "ssl://", or "mqtts://" URL, nil selects default TLS settings.
// A non-nil config also enables TLS for "tcp://" and "mqtt://" URLs; nil does not.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.TLSConfig = config
	}
}

// WithMaxInFlight bounds the number of unacknowledged QoS 1/2 publishes.
// 0 (default) means unbounded.
func WithMaxInFlight(max int) Option {
	return func(o *clientOptions) {
		o.MaxInFlight = max
	}
}

// WithDefaultPublishHandler sets a fallback handler for incoming PUBLISH messages
// that do not match any registered subscription.
//
// This is useful for:
//   - Handling persistent subscriptions restored without a registered handler (orphans)
//   - Debugging or logging unexpected messages
//   - Implementing a catch-all strategy
//
// If not set (default), messages matching no subscription are silently dropped
// (but still acknowledged to comply with the protocol).
func WithDefaultPublishHandler(handler MessageHandler) Option {
	return func(o *clientOptions) {
		o.DefaultPublishHandler = handler
	}
}

// WithLogger sets a custom logger for the client.
// If not provided, the client will use a logger that discards all output.
// Use this to integrate with your application's logging system.
//
// Example:
//
//	logger := logrus.New()
//	logger.SetLevel(logrus.DebugLevel)
//	client, _ := mq.Dial("tcp://localhost:1883", mq.WithLogger(mq.NewLogger(logger)))
func WithLogger(logger *Logger) Option {
	return func(o *clientOptions) {
		o.Logger = logger
	}
}

// WithDialer sets a custom dialer for establishing the network connection.
// This enables support for alternative transports (Unix sockets, proxying)
// without adding dependencies to the core library.
//
// If provided, the library will skip its standard scheme validation and
// delegate the connection creation entirely to the dialer.
//
// The dialer's DialContext method receives:
//   - ctx: The context provided to DialContext (or one created from WithConnectTimeout if using Dial)
//   - network: The scheme from the server URL (e.g. "unix", "tcp")
//   - addr: The original server string passed to Dial
func WithDialer(dialer ContextDialer) Option {
	return func(o *clientOptions) {
		o.Dialer = dialer
	}
}

// DialFunc is a helper to convert a function to the ContextDialer interface.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext implements ContextDialer.
func (f DialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// WithWill sets the Last Will and Testament (LWT) message.
//
// The LWT is a message that the MQTT server will automatically publish on behalf
// of the client if the client disconnects unexpectedly (e.g., network failure,
// crash, or power loss). It is NOT sent on graceful disconnects via Disconnect().
//
// This is commonly used to notify other clients that a device has gone offline.
//
// Parameters:
//   - topic: The topic to publish the will message to
//   - payload: The message content (e.g., "offline", "disconnected")
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the will message should be retained by the server
//
// Example (status monitoring):
//
//	client, err := mq.Dial("tcp://localhost:1883",
//	    mq.WithClientID("sensor-1"),
//	    mq.WithWill("devices/sensor-1/status", []byte("offline"), 1, true))
func WithWill(topic string, payload []byte, qos uint8, retained bool) Option {
	return func(o *clientOptions) {
		o.will = &willMessage{
			Topic:    topic,
			Payload:  payload,
			QoS:      qos,
			Retained: retained,
		}
	}
}

// WithOnConnect sets the handler to be called when the client connects.
//
// The handler is invoked asynchronously in a separate goroutine. This allows
// implementing complex setup logic (e.g., subscribing, publishing) without
// blocking the connection process or logic loop.
func WithOnConnect(onConnect func(*Client)) Option {
	return func(o *clientOptions) {
		o.OnConnect = onConnect
	}
}

// WithOnConnectionLost sets the handler to be called when the connection is lost.
// The error parameter provides the reason for disconnection.
//
// The handler is invoked asynchronously in a separate goroutine.
func WithOnConnectionLost(onConnectionLost func(*Client, error)) Option {
	return func(o *clientOptions) {
		o.OnConnectionLost = onConnectionLost
	}
}

// WithHandlerInterceptor registers an interceptor that wraps every
// subscription message handler, including the default handler.
// Interceptors run in registration order around the handler they wrap.
func WithHandlerInterceptor(interceptor HandlerInterceptor) Option {
	return func(o *clientOptions) {
		o.HandlerInterceptors = append(o.HandlerInterceptors, interceptor)
	}
}

// WithPublishInterceptor registers an interceptor that wraps every call
// to Client.Publish. Interceptors run in registration order.
func WithPublishInterceptor(interceptor PublishInterceptor) Option {
	return func(o *clientOptions) {
		o.PublishInterceptors = append(o.PublishInterceptors, interceptor)
	}
}

// DisconnectOptions holds configuration for a disconnection.
type DisconnectOptions struct{}

// DisconnectOption is a functional option for configuring a disconnection.
// MQTT v3.1.1 DISCONNECT packets carry no payload, so there are currently no
// options to set; the type exists to keep Disconnect's signature stable.
type DisconnectOption func(*DisconnectOptions)

// WithSubscription registers handler for the topic filter locally before the
// CONNECT handshake, so PUBLISH packets matching it are dispatched to handler
// from the moment the session starts (for example, messages for a
// subscription the broker kept in a persistent session). It does not send a
// SUBSCRIBE to the broker.
func WithSubscription(topic string, handler MessageHandler) Option {
	return func(o *clientOptions) {
		if o.InitialSubscriptions == nil {
			o.InitialSubscriptions = make(map[string]MessageHandler)
		}
		o.InitialSubscriptions[topic] = handler
	}
}

// WithOutgoingQueueSize sets the buffer capacity of the outgoing packet
// channel (default: 1000).
func WithOutgoingQueueSize(size int) Option {
	return func(o *clientOptions) {
		o.OutgoingQueueSize = size
	}
}

// WithIncomingQueueSize sets the buffer capacity of the incoming packet
// channel (default: 100).
func WithIncomingQueueSize(size int) Option {
	return func(o *clientOptions) {
		o.IncomingQueueSize = size
	}
}

// WithQoS0LimitPolicy sets the behavior for QoS 0 publishes when the
// outgoing queue is full. Default is QoS0LimitPolicyDrop.
func WithQoS0LimitPolicy(policy QoS0LimitPolicy) Option {
	return func(o *clientOptions) {
		o.QoS0Policy = policy
	}
}

// defaultOptions returns the default client options.
func defaultOptions(server string) *clientOptions {
	return &clientOptions{
		Server:          server,
		ClientID:        "",
		KeepAlive:       60 * time.Second,
		CleanSession:    true,
		ProtocolVersion: ProtocolV311,
		ConnectTimeout:  30 * time.Second,
		Timeout:         30 * time.Second,
		Logger:          discardLogger(),

		// Use MQTT spec defaults (0 = use defaults in validation functions)
		MaxTopicLength:    0,
		MaxPayloadSize:    0,
		MaxIncomingPacket: 0,

		OutgoingQueueSize: 1000,
		IncomingQueueSize: 100,
		QoS0Policy:        QoS0LimitPolicyDrop,
	}
}

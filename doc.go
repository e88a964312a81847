// Package mq provides a lightweight, idiomatic MQTT v3.1.1 client library for Go.
//
// The library favors a clean, functional options-based API for connecting to
// MQTT brokers, publishing messages, and subscribing to topics.
//
// # Features
//
//   - Full MQTT 3.1.1 support: CONNECT/CONNACK, PUBLISH/PUBACK/PUBREC/PUBREL/PUBCOMP,
//     SUBSCRIBE/SUBACK, UNSUBSCRIBE/UNSUBACK, PINGREQ/PINGRESP, DISCONNECT
//   - QoS 0, 1 and 2 delivery, including Last Will and Testament
//   - TLS and WebSocket transports
//   - Clean, idiomatic Go API with functional options
//   - Context-based cancellation and timeouts
//   - Pluggable structured logging and publish/handler interceptors
//
// # Quick Start
//
// Connect to a broker and publish a message:
//
//	client, err := mq.Dial("tcp://localhost:1883", mq.WithClientID("my-client"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect(context.Background())
//
//	token := client.Publish("sensors/temperature", []byte("22.5"), mq.WithQoS(1))
//	err = token.Wait(context.Background())
//
// Subscribe to a topic:
//
//	client.Subscribe("sensors/+/temperature", mq.AtLeastOnce,
//	    func(c *mq.Client, msg mq.Message) {
//	        fmt.Printf("%s: %s\n", msg.Topic, string(msg.Payload))
//	    })
//
// # Connection Options
//
// The Dial and DialContext functions accept various options to configure the client:
//
//   - WithClientID(id) / WithRandomClientID() / WithShortClientID() - set the client identifier
//   - WithCredentials(user, pass) - set username and password
//   - WithKeepAlive(duration) - set keepalive interval (default: 60s)
//   - WithCleanSession(bool) - set the clean session flag
//   - WithTLS(config) - enable TLS encryption
//   - WithWill(topic, payload, qos, retained) - set Last Will and Testament
//   - WithMaxInFlight(max) - bound concurrent unacknowledged QoS 1/2 publishes
//   - WithLogger(logger) - attach a structured logger
//   - WithHandlerInterceptor / WithPublishInterceptor - wrap message handling and publishing
//   - WithSubscription(topic, handler) - register a local handler for a topic filter before the CONNECT handshake (no SUBSCRIBE is sent)
//
// # TLS and WebSocket Connections
//
// The library supports TLS/SSL encrypted connections and MQTT-over-WebSocket:
//
//	client, err := mq.Dial("tls://broker:8883",
//	    mq.WithClientID("secure-client"),
//	    mq.WithTLS(&tls.Config{
//	        InsecureSkipVerify: false,
//	    }))
//
//	client, err := mq.Dial("wss://broker:443/mqtt", mq.WithClientID("ws-client"))
//
// Supported URL schemes: tcp://, mqtt://, tls://, ssl://, mqtts://, ws://, wss://
//
// # Quality of Service
//
// The library supports all three MQTT QoS levels:
//
//   - QoS 0 (mq.AtMostOnce): at most once delivery (fire and forget)
//   - QoS 1 (mq.AtLeastOnce): at least once delivery (acknowledged)
//   - QoS 2 (mq.ExactlyOnce): exactly once delivery
//
// For outbound QoS 2 publishes, this client completes the operation as soon
// as it receives PUBREC, replying with PUBCOMP immediately instead of
// continuing the full four-packet handshake with PUBREL. The broker has
// already committed the message at that point, so no duplicate delivery
// results; only the packet identifier release happens one round trip
// earlier than a strict reading of the four-step flow requires.
//
// Example:
//
//	// Using named constants (recommended)
//	client.Publish("topic", []byte("data"), mq.WithQoS(mq.AtLeastOnce))
//
//	// Using numeric values
//	client.Publish("topic", []byte("data"), mq.WithQoS(1))
//
// # Wildcard Subscriptions
//
// MQTT supports two wildcard characters in topic filters:
//
//   - '+' matches a single level (e.g., "sensors/+/temperature")
//   - '#' matches multiple levels (e.g., "sensors/#")
//
// Example:
//
//	// Subscribe to all temperature sensors
//	client.Subscribe("sensors/+/temperature", mq.AtLeastOnce, handler)
//
//	// Subscribe to all sensor data
//	client.Subscribe("sensors/#", mq.AtMostOnce, handler)
//
// # Interceptors
//
// HandlerInterceptor and PublishInterceptor wrap message delivery and
// outbound publishes respectively, letting cross-cutting concerns such as
// logging or metrics apply uniformly:
//
//	client, _ := mq.Dial(server,
//	    mq.WithHandlerInterceptor(loggingInterceptor),
//	    mq.WithPublishInterceptor(tracingInterceptor),
//	)
//
// # Error Handling
//
// Operations return a Token that can be used for both blocking and
// non-blocking error handling.
//
//	// Blocking with timeout
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	if err := token.Wait(ctx); err != nil {
//	    if errors.Is(err, mq.ErrNotConnected) {
//	        log.Printf("client is not connected: %v", err)
//	    }
//	}
//
//	// Non-blocking with select
//	select {
//	case <-token.Done():
//	    if err := token.Error(); err != nil {
//	        log.Printf("failed: %v", err)
//	    }
//	case <-time.After(5 * time.Second):
//	    log.Println("timeout")
//	}
package mq

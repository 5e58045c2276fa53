// Package messaging connects the station to an MQTT broker: state and flow
// samples go out, operator commands come in.
package messaging

import "context"

type QoS byte

const (
	AtMostOnce    QoS = 0
	FireAndForget QoS = 0
	AtLeastOnce   QoS = 1
	ExactlyOnce   QoS = 2
	// AsyncNoWait publishes at QoS 0 without waiting for the token.
	AsyncNoWait QoS = 3
)

type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// MessageHandler receives one message. The ctx is the one passed to Subscribe.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

type Broker interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	IsConnected() bool

	Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error
	PublishJSON(ctx context.Context, topic string, qos QoS, retain bool, v any) error
	Subscribe(ctx context.Context, topic string, qos QoS, handler MessageHandler) (Subscription, error)

	// AddOnConnectPublisher registers a message sent after every connect,
	// e.g. the retained catalog.
	AddOnConnectPublisher(id string, fn OnConnectPublisher)
	Topic(parts ...string) string
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fisaks/flowctl/internal/logging"
)

var ErrNotConnected = errors.New("client not initialized")

const defaultTimeout = 5 * time.Second

type BrokerConfig struct {
	BrokerURL        string
	ClientName       string
	TopicPrefix      string
	ConnectTimeout   time.Duration
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
}

// MsgBroker is a paho client that announces the station with a retained
// online/offline status and replays its subscriptions after a reconnect.
type MsgBroker struct {
	config     BrokerConfig
	client     mqtt.Client
	mu         sync.RWMutex
	subs       map[string]subscription
	publishers map[string]OnConnectPublisher
}

type subscription struct {
	qos     QoS
	handler mqtt.MessageHandler
}

type PublishRequest struct {
	// If Context is nil, context.Background() is used
	Context      context.Context
	Topic        string
	Qos          QoS
	Retain       bool
	PayloadBytes []byte
	Payload      any
}

// OnConnectPublisher builds a message that is sent on every (re)connect.
type OnConnectPublisher func() (PublishRequest, error)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

func NewBroker(cfg BrokerConfig) *MsgBroker {
	return &MsgBroker{
		config:     cfg,
		subs:       make(map[string]subscription),
		publishers: make(map[string]OnConnectPublisher),
	}
}

// Topic joins parts under the configured prefix.
func (b *MsgBroker) Topic(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if p := strings.Trim(b.config.TopicPrefix, "/"); p != "" {
		all = append(all, p)
	}
	all = append(all, parts...)
	return strings.Join(all, "/")
}

// Connect waits for the first connection. On timeout the client keeps
// retrying in the background.
func (b *MsgBroker) Connect(ctx context.Context) error {
	if b.client == nil {
		b.client = mqtt.NewClient(b.clientOptions())
	}
	if b.client.IsConnected() {
		return nil
	}
	if b.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.ConnectTimeout)
		defer cancel()
	}
	return waitToken(ctx, b.client.Connect(), 0, "connect to "+b.config.BrokerURL)
}

func (b *MsgBroker) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(b.config.BrokerURL)
	opts.SetClientID("flowctl-" + b.config.ClientName)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetWill(b.Topic("status"), statusOffline, byte(AtLeastOnce), true)
	opts.OnConnect = func(c mqtt.Client) {
		logging.Info("mqtt connected", "broker", b.config.BrokerURL, "clientName", b.config.ClientName)
		b.resubscribe()
		b.publishOnConnect()
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logging.Warn("mqtt connection lost", "broker", b.config.BrokerURL, "error", err)
	}
	return opts
}

func (b *MsgBroker) AddOnConnectPublisher(id string, fn OnConnectPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishers[id] = fn
}

func (b *MsgBroker) RemoveOnConnectPublisher(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.publishers, id)
}

// onConnectRequests returns the status message followed by the registered
// publishers' messages ordered by id. Failing publishers are skipped.
func (b *MsgBroker) onConnectRequests() []PublishRequest {
	b.mu.RLock()
	ids := slices.Sorted(maps.Keys(b.publishers))
	fns := make([]OnConnectPublisher, len(ids))
	for i, id := range ids {
		fns[i] = b.publishers[id]
	}
	b.mu.RUnlock()

	reqs := []PublishRequest{{Topic: b.Topic("status"), Qos: AtLeastOnce, Retain: true, PayloadBytes: []byte(statusOnline)}}
	for i, fn := range fns {
		req, err := fn()
		if err != nil {
			logging.Error("on connect publisher failed", "clientName", b.config.ClientName, "id", ids[i], "error", err)
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func (b *MsgBroker) publishOnConnect() {
	for _, req := range b.onConnectRequests() {
		if err := b.send(req); err != nil {
			logging.Error("on connect publish failed", "clientName", b.config.ClientName, "topic", req.Topic, "error", err)
		}
	}
}

func (b *MsgBroker) send(req PublishRequest) error {
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if req.PayloadBytes == nil {
		return b.PublishJSON(ctx, req.Topic, req.Qos, req.Retain, req.Payload)
	}
	return b.Publish(ctx, req.Topic, req.Qos, req.Retain, req.PayloadBytes)
}

// resubscribe restores the subscriptions a clean session dropped. Tokens are
// not waited on because paho runs OnConnect on its connection goroutine.
func (b *MsgBroker) resubscribe() {
	b.mu.RLock()
	subs := maps.Clone(b.subs)
	b.mu.RUnlock()
	for topic, s := range subs {
		token := b.client.Subscribe(topic, byte(s.qos), s.handler)
		go func() {
			if token.WaitTimeout(b.subscribeTimeout()) && token.Error() != nil {
				logging.Warn("mqtt resubscribe failed", "topic", topic, "error", token.Error())
			}
		}()
	}
}

func (b *MsgBroker) IsConnected() bool {
	if b.client == nil {
		return false
	}
	return b.client.IsConnected()
}

// Close publishes the offline status and disconnects.
func (b *MsgBroker) Close(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	if b.client.IsConnected() {
		if err := b.Publish(ctx, b.Topic("status"), AtLeastOnce, true, []byte(statusOffline)); err != nil {
			logging.Warn("offline status publish failed", "error", err)
		}
	}
	done := make(chan struct{})
	go func() {
		b.client.Disconnect(250)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MsgBroker) Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	if b.client == nil {
		return ErrNotConnected
	}
	qosByte, wait := qosToByte(qos)
	token := b.client.Publish(topic, qosByte, retain, payload)
	if !wait {
		return nil
	}
	return waitToken(ctx, token, orDefault(b.config.PublishTimeout), "publish to "+topic)
}

func qosToByte(qos QoS) (byte, bool) {
	if qos > ExactlyOnce {
		return 0, false
	}
	return byte(qos), true
}

func (b *MsgBroker) PublishJSON(ctx context.Context, topic string, qos QoS, retain bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	return b.Publish(ctx, topic, qos, retain, data)
}

// Subscribe registers handler and waits for the SUBACK. While disconnected
// the subscription is only recorded and made on the next connect. Each
// message is handled on its own goroutine; a panicking handler is logged
// and dropped.
func (b *MsgBroker) Subscribe(ctx context.Context, topic string, qos QoS, handler MessageHandler) (Subscription, error) {
	if b.client == nil {
		return nil, ErrNotConnected
	}
	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("mqtt handler panic", "clientName", b.config.ClientName, "topic", msg.Topic(), "err", r)
				}
			}()
			handler(ctx, msg.Topic(), msg.Payload())
		}()
	}
	b.mu.Lock()
	b.subs[topic] = subscription{qos: qos, handler: onMessage}
	b.mu.Unlock()
	sub := &msgSubscription{broker: b, topic: topic}

	if !b.client.IsConnected() {
		logging.Info("mqtt subscribe deferred until connected", "topic", topic)
		return sub, nil
	}
	token := b.client.Subscribe(topic, byte(qos), onMessage)
	if err := waitToken(ctx, token, b.subscribeTimeout(), "subscribe to "+topic); err != nil {
		b.forget(topic)
		return nil, err
	}
	return sub, nil
}

func (b *MsgBroker) forget(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
}

func (b *MsgBroker) subscribeTimeout() time.Duration { return orDefault(b.config.SubscribeTimeout) }

type msgSubscription struct {
	broker *MsgBroker
	topic  string
}

func (s *msgSubscription) Unsubscribe(ctx context.Context) error {
	b := s.broker
	b.forget(s.topic)
	return waitToken(ctx, b.client.Unsubscribe(s.topic), 3*time.Second, "unsubscribe from "+s.topic)
}

// waitToken waits for token, ctx or timeout, whichever comes first. A zero
// timeout waits on ctx alone.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration, what string) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-expired:
		return fmt.Errorf("%s: timeout after %v", what, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fisaks/flowctl/internal/telemetry"
)

type published struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeBroker struct {
	*MsgBroker
	mu       sync.Mutex
	pubs     []published
	handlers map[string]func(context.Context, string, []byte)
	pubErr   error
}

func newFakeBroker(prefix string) *fakeBroker {
	return &fakeBroker{
		MsgBroker: NewBroker(BrokerConfig{TopicPrefix: prefix}),
		handlers:  make(map[string]func(context.Context, string, []byte)),
	}
}

func (f *fakeBroker) Connect(context.Context) error { return nil }
func (f *fakeBroker) Close(context.Context) error   { return nil }
func (f *fakeBroker) IsConnected() bool             { return true }

func (f *fakeBroker) Publish(_ context.Context, topic string, _ QoS, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.pubs = append(f.pubs, published{topic: topic, retain: retain, payload: payload})
	return nil
}

func (f *fakeBroker) PublishJSON(ctx context.Context, topic string, qos QoS, retain bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.Publish(ctx, topic, qos, retain, data)
}

func (f *fakeBroker) Subscribe(_ context.Context, topic string, _ QoS, handler MessageHandler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil, nil
}

func (f *fakeBroker) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.pubs...)
}

type recordingSubscriber struct {
	device  []telemetry.IncomingCommand
	station []telemetry.IncomingCommand
	err     error
}

func (r *recordingSubscriber) OnDeviceCommand(_ context.Context, c telemetry.IncomingCommand) error {
	r.device = append(r.device, c)
	return r.err
}

func (r *recordingSubscriber) OnStationCommand(_ context.Context, c telemetry.IncomingCommand) error {
	r.station = append(r.station, c)
	return r.err
}

func TestTopicJoinsPrefix(t *testing.T) {
	b := NewBroker(BrokerConfig{TopicPrefix: "/flowctl/lab/"})
	if got := b.Topic("device", "gfr", "state"); got != "flowctl/lab/device/gfr/state" {
		t.Fatalf("Topic = %q", got)
	}
	if got := NewBroker(BrokerConfig{}).Topic("cmd"); got != "cmd" {
		t.Fatalf("Topic without prefix = %q", got)
	}
}

func TestPublishDeviceStateOnlyOnChange(t *testing.T) {
	fb := newFakeBroker("flowctl/lab")
	sb := newStationBroker(fb, nil, time.Hour)
	ctx := context.Background()

	ds := telemetry.DeviceState{Name: "gfr", Kind: "gfr", State: "connected", Connected: true}
	for i := 0; i < 3; i++ {
		ds.Timestamp = time.Now()
		if err := sb.PublishDeviceState(ctx, ds); err != nil {
			t.Fatalf("PublishDeviceState: %v", err)
		}
	}
	ds.LastError = "GAS FLOW REGULATOR Turning On failed: timeout"
	if err := sb.PublishDeviceState(ctx, ds); err != nil {
		t.Fatalf("PublishDeviceState: %v", err)
	}

	pubs := fb.snapshot()
	if len(pubs) != 2 {
		t.Fatalf("published %d messages, want 2", len(pubs))
	}
	if pubs[0].topic != "flowctl/lab/device/gfr/state" || !pubs[0].retain {
		t.Fatalf("first publish = %+v", pubs[0])
	}

	sb.ClearPublishedState()
	if err := sb.PublishDeviceState(ctx, ds); err != nil {
		t.Fatalf("PublishDeviceState: %v", err)
	}
	if len(fb.snapshot()) != 3 {
		t.Fatalf("state not republished after clear")
	}
}

func TestPublishDeviceStateRetriesAfterFailure(t *testing.T) {
	fb := newFakeBroker("p")
	sb := newStationBroker(fb, nil, 0)
	fb.pubErr = errors.New("broker down")
	ds := telemetry.DeviceState{Name: "relay", State: "disconnected"}
	if err := sb.PublishDeviceState(context.Background(), ds); err == nil {
		t.Fatalf("expected publish error")
	}
	fb.pubErr = nil
	if err := sb.PublishDeviceState(context.Background(), ds); err != nil {
		t.Fatalf("PublishDeviceState: %v", err)
	}
	if len(fb.snapshot()) != 1 {
		t.Fatalf("failed publish was remembered as sent")
	}
}

func TestPublishFlow(t *testing.T) {
	fb := newFakeBroker("p")
	sb := newStationBroker(fb, nil, 0)
	if err := sb.PublishFlow(context.Background(), telemetry.FlowSample{Device: "gfr", Flow: 30.5}); err != nil {
		t.Fatalf("PublishFlow: %v", err)
	}
	pubs := fb.snapshot()
	if len(pubs) != 1 || pubs[0].topic != "p/device/gfr/flow" || pubs[0].retain {
		t.Fatalf("pubs = %+v", pubs)
	}
	if !strings.Contains(string(pubs[0].payload), `"flow":30.5`) {
		t.Fatalf("payload = %s", pubs[0].payload)
	}
}

func TestCommandSubscriberRoutesMessages(t *testing.T) {
	fb := newFakeBroker("flowctl/lab")
	sb := newStationBroker(fb, nil, 0)
	sub := &recordingSubscriber{}
	if err := sb.StartCommandSubscriber(context.Background(), sub); err != nil {
		t.Fatalf("StartCommandSubscriber: %v", err)
	}

	deviceHandler := fb.handlers["flowctl/lab/device/+/cmd"]
	stationHandler := fb.handlers["flowctl/lab/cmd"]
	if deviceHandler == nil || stationHandler == nil {
		t.Fatalf("subscriptions = %v", fb.handlers)
	}

	ctx := context.Background()
	deviceHandler(ctx, "flowctl/lab/device/gfr/cmd", []byte(`{"action":"setFlow","value":30.5,"device":"ignored"}`))
	deviceHandler(ctx, "flowctl/lab/device/gfr/cmd", []byte(`not json`))
	deviceHandler(ctx, "flowctl/lab/device/gfr/cmd", []byte(`{"value":1}`))
	deviceHandler(ctx, "other/device/gfr/cmd", []byte(`{"action":"turnOn"}`))
	stationHandler(ctx, "flowctl/lab/cmd", []byte(`{"action":"open"}`))

	if len(sub.device) != 1 || sub.device[0].Device != "gfr" || sub.device[0].Action != "setFlow" {
		t.Fatalf("device commands = %+v", sub.device)
	}
	if v, ok := sub.device[0].Value.(float64); !ok || v != 30.5 {
		t.Fatalf("value = %#v", sub.device[0].Value)
	}
	if len(sub.station) != 1 || sub.station[0].Action != "open" {
		t.Fatalf("station commands = %+v", sub.station)
	}
}

func TestParseCommandTopic(t *testing.T) {
	cases := []struct {
		prefix, topic, want string
		ok                   bool
	}{
		{"flowctl/lab", "flowctl/lab/device/relay/cmd", "relay", true},
		{"flowctl/lab", "flowctl/lab/cmd", "", true},
		{"flowctl/lab", "flowctl/lab/device//cmd", "", false},
		{"flowctl/lab", "flowctl/lab/device/relay/state", "", false},
		{"flowctl/lab", "flowctl/other/device/relay/cmd", "", false},
		{"", "device/gfr/cmd", "gfr", true},
	}
	for _, c := range cases {
		got, ok := parseCommandTopic(c.prefix, c.topic)
		if got != c.want || ok != c.ok {
			t.Fatalf("parseCommandTopic(%q, %q) = %q, %v", c.prefix, c.topic, got, ok)
		}
	}
}

func TestCatalogRegisteredOnConnect(t *testing.T) {
	fb := newFakeBroker("p")
	newStationBroker(fb, func() (PublishRequest, error) {
		return PublishRequest{Topic: "p/catalog"}, nil
	}, 0)
	if _, ok := fb.publishers["catalog"]; !ok {
		t.Fatalf("catalog publisher not registered")
	}
}

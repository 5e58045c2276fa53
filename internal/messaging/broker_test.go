package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

func TestWaitToken(t *testing.T) {
	ctx := context.Background()
	if err := waitToken(ctx, completedToken(nil), time.Second, "publish"); err != nil {
		t.Fatalf("completed token: %v", err)
	}

	boom := errors.New("boom")
	if err := waitToken(ctx, completedToken(boom), time.Second, "publish"); !errors.Is(err, boom) {
		t.Fatalf("token error = %v, want boom", err)
	}

	pending := &fakeToken{done: make(chan struct{})}
	err := waitToken(ctx, pending, 10*time.Millisecond, "subscribe to x")
	if err == nil || !strings.Contains(err.Error(), "subscribe to x: timeout") {
		t.Fatalf("timeout error = %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := waitToken(cctx, pending, 0, "connect"); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx = %v", err)
	}
}

func TestOnConnectRequests(t *testing.T) {
	b := NewBroker(BrokerConfig{TopicPrefix: "flowctl/lab/"})
	b.AddOnConnectPublisher("zeta", func() (PublishRequest, error) {
		return PublishRequest{Topic: "z"}, nil
	})
	b.AddOnConnectPublisher("alpha", func() (PublishRequest, error) {
		return PublishRequest{Topic: "a"}, nil
	})
	b.AddOnConnectPublisher("broken", func() (PublishRequest, error) {
		return PublishRequest{}, errors.New("no catalog")
	})

	reqs := b.onConnectRequests()
	var topics []string
	for _, r := range reqs {
		topics = append(topics, r.Topic)
	}
	if got := strings.Join(topics, ","); got != "flowctl/lab/status,a,z" {
		t.Fatalf("topics = %s", got)
	}
	if string(reqs[0].PayloadBytes) != statusOnline || !reqs[0].Retain {
		t.Fatalf("status request = %+v", reqs[0])
	}

	b.RemoveOnConnectPublisher("zeta")
	if n := len(b.onConnectRequests()); n != 2 {
		t.Fatalf("requests after remove = %d", n)
	}
}

func TestBrokerWithoutClient(t *testing.T) {
	b := NewBroker(BrokerConfig{})
	ctx := context.Background()
	if err := b.Publish(ctx, "x", AtLeastOnce, false, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Publish = %v", err)
	}
	if _, err := b.Subscribe(ctx, "x", AtLeastOnce, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Subscribe = %v", err)
	}
	if b.IsConnected() {
		t.Fatalf("IsConnected without client")
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close = %v", err)
	}
}

func TestQosToByte(t *testing.T) {
	if q, wait := qosToByte(ExactlyOnce); q != 2 || !wait {
		t.Fatalf("ExactlyOnce = %d, %v", q, wait)
	}
	if q, wait := qosToByte(AsyncNoWait); q != 0 || wait {
		t.Fatalf("AsyncNoWait = %d, %v", q, wait)
	}
}

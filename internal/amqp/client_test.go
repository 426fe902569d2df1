package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// MockChannel is a mock implementation of Channel for testing.
type MockChannel struct {
	ExchangeDeclareFunc func(name, kind string) error
	PublishFunc         func(ctx context.Context, exchange, key string, msg amqp091.Publishing) error
	deliveries          chan amqp091.Delivery
	closed              bool
}

func (m *MockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	if m.ExchangeDeclareFunc != nil {
		return m.ExchangeDeclareFunc(name, kind)
	}
	return nil
}

func (m *MockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	return amqp091.Queue{Name: name}, nil
}

func (m *MockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error {
	return nil
}

func (m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	return m.PublishFunc(ctx, exchange, key, msg)
}

func (m *MockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error) {
	return m.deliveries, nil
}

func (m *MockChannel) Close() error {
	m.closed = true
	return nil
}

// ackRecorder records how deliveries were settled.
type ackRecorder struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
	done    chan struct{}
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	a.done <- struct{}{}
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	a.done <- struct{}{}
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestNewClientWithChannel_SetupFailure(t *testing.T) {
	ch := &MockChannel{
		ExchangeDeclareFunc: func(name, kind string) error { return errors.New("access refused") },
	}
	if _, err := NewClientWithChannel(ch, "finance", "migrations", "migration.progress"); err == nil {
		t.Fatal("expected setup error")
	}
	if !ch.closed {
		t.Error("channel should be closed after failed setup")
	}
}

func TestPublishMigrationRequest(t *testing.T) {
	var gotKey string
	var gotBody []byte
	ch := &MockChannel{
		PublishFunc: func(ctx context.Context, exchange, key string, msg amqp091.Publishing) error {
			gotKey = key
			gotBody = msg.Body
			if msg.DeliveryMode != amqp091.Persistent {
				t.Error("request should be persistent")
			}
			return nil
		},
	}
	client, err := NewClientWithChannel(ch, "finance", "migrations", "migration.progress")
	if err != nil {
		t.Fatal(err)
	}

	if err := client.PublishMigrationRequest(context.Background(), "user-1"); err != nil {
		t.Fatalf("PublishMigrationRequest() error = %v", err)
	}
	if gotKey != "migrations" {
		t.Errorf("routing key = %q, want migrations", gotKey)
	}
	msg, err := MigrationRequestMessageFromJSON(gotBody)
	if err != nil || msg.CallerID != "user-1" {
		t.Errorf("body = %s, err = %v", gotBody, err)
	}
}

func TestPublishProgress(t *testing.T) {
	var gotKey string
	ch := &MockChannel{
		PublishFunc: func(ctx context.Context, exchange, key string, msg amqp091.Publishing) error {
			gotKey = key
			return nil
		},
	}
	client, _ := NewClientWithChannel(ch, "finance", "migrations", "migration.progress")

	err := client.PublishProgress(context.Background(), &MigrationProgressMessage{CallerID: "u", Seq: 1, Message: "Migration completed", Done: true})
	if err != nil {
		t.Fatal(err)
	}
	if gotKey != "migration.progress" {
		t.Errorf("routing key = %q", gotKey)
	}
}

func TestConsumeMigrationRequests(t *testing.T) {
	acks := &ackRecorder{done: make(chan struct{}, 4)}
	ch := &MockChannel{deliveries: make(chan amqp091.Delivery, 4)}
	client, _ := NewClientWithChannel(ch, "finance", "migrations", "migration.progress")

	deliver := func(tag uint64, body string) {
		ch.deliveries <- amqp091.Delivery{Acknowledger: acks, DeliveryTag: tag, Body: []byte(body)}
	}
	deliver(1, `{"caller_id":"ok"}`)
	deliver(2, `not json`)
	deliver(3, `{"caller_id":"corrupt"}`)
	deliver(4, `{"caller_id":"flaky"}`)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.ConsumeMigrationRequests(ctx, func(_ context.Context, msg *MigrationRequestMessage) error {
			switch msg.CallerID {
			case "corrupt":
				return fmt.Errorf("%w: bad snapshot", ErrRejected)
			case "flaky":
				return errors.New("timeout")
			}
			return nil
		})
	}()

	for i := 0; i < 4; i++ {
		select {
		case <-acks.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("ConsumeMigrationRequests() = %v, want context.Canceled", err)
	}

	acks.mu.Lock()
	defer acks.mu.Unlock()
	if len(acks.acked) != 1 || acks.acked[0] != 1 {
		t.Errorf("acked = %v, want [1]", acks.acked)
	}
	want := map[uint64]bool{2: false, 3: false, 4: true}
	for i, tag := range acks.nacked {
		if acks.requeue[i] != want[tag] {
			t.Errorf("delivery %d requeue = %v, want %v", tag, acks.requeue[i], want[tag])
		}
	}
}

func TestConsumeMigrationRequests_ChannelClosed(t *testing.T) {
	ch := &MockChannel{deliveries: make(chan amqp091.Delivery)}
	client, _ := NewClientWithChannel(ch, "finance", "migrations", "migration.progress")
	close(ch.deliveries)

	err := client.ConsumeMigrationRequests(context.Background(), func(context.Context, *MigrationRequestMessage) error { return nil })
	if !IsConnectionError(err) {
		t.Errorf("closed delivery channel should read as a connection error, got %v", err)
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("broken pipe"), true},
		{errors.New("invalid input"), false},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.expected {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}

func TestMigrationRequestMessageFromJSON(t *testing.T) {
	if _, err := MigrationRequestMessageFromJSON([]byte(`{}`)); err == nil {
		t.Error("missing caller_id should fail")
	}
	msg, err := MigrationRequestMessageFromJSON([]byte(`{"caller_id":"u1"}`))
	if err != nil || msg.CallerID != "u1" {
		t.Errorf("got %+v, %v", msg, err)
	}
}

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/util"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic string
	data  []byte
}

// fakeClient records publishes. Methods not overridden panic if called.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	err       error
	calls     int
	messages  []published
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err == nil {
		c.messages = append(c.messages, published{topic: topic, data: payload.([]byte)})
	}
	return &fakeToken{err: c.err}
}

func (c *fakeClient) snapshot() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func newTestHandler(client *fakeClient) (*MQTTHandler, *events.EventBus) {
	bus := events.NewEventBus()
	cfg := config.DefaultConfig()
	return newHandler(cfg, bus, client, util.HostInfo{Hostname: "test-host", CPUCores: 4}), bus
}

func TestBrokerURL(t *testing.T) {
	c := config.MQTTConfig{BrokerURL: "broker.local", Port: 1883}
	assert.Equal(t, "tcp://broker.local:1883", brokerURL(c))

	c.UseTLS = true
	c.Port = 8883
	assert.Equal(t, "ssl://broker.local:8883", brokerURL(c))
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MQTT.Enabled = false
	_, err := NewMQTTHandler(cfg, events.NewEventBus(), util.HostInfo{})
	assert.Error(t, err)
}

func TestPublishIncludesMetadata(t *testing.T) {
	client := &fakeClient{connected: true}
	h, bus := newTestHandler(client)
	defer bus.Stop()

	require.NoError(t, h.publish(TopicHeartbeat, map[string]int{"players": 2}))

	msgs := client.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicHeartbeat, msgs[0].topic)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].data, &body))
	assert.Equal(t, "test-host", body["hostname"])
	assert.Equal(t, float64(4), body["cpu_cores"])
	assert.Contains(t, body, "timestamp")
	assert.Equal(t, map[string]interface{}{"players": float64(2)}, body["payload"])
}

func TestEventsRoutedToTopics(t *testing.T) {
	client := &fakeClient{connected: true}
	h, bus := newTestHandler(client)
	defer bus.Stop()
	h.subscribeEvents()

	ctx := context.Background()
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventClientConnected, Payload: events.ConnectionPayload{ConnID: 1}}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventPlayerLogin, Payload: events.PlayerLoginPayload{PlayerName: "alex"}}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventHeartbeat, Payload: events.HeartbeatPayload{Players: 1}}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventClientDisconnected, Payload: events.ConnectionPayload{ConnID: 1}}))

	var topics []string
	for _, m := range client.snapshot() {
		topics = append(topics, m.topic)
	}
	assert.Equal(t, []string{TopicConnections, TopicPlayers, TopicHeartbeat, TopicConnections}, topics)
}

func TestPublishSkippedWhenDisconnected(t *testing.T) {
	client := &fakeClient{connected: false}
	h, bus := newTestHandler(client)
	defer bus.Stop()

	err := h.publish(TopicAdmin, "x")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, client.calls)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	client := &fakeClient{connected: true, err: errors.New("broker gone")}
	h, bus := newTestHandler(client)
	defer bus.Stop()

	for i := 0; i < 3; i++ {
		assert.Error(t, h.publish(TopicAdmin, i))
	}
	assert.Equal(t, gobreaker.StateOpen, h.breaker.State())

	err := h.publish(TopicAdmin, "dropped")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, client.calls)
}

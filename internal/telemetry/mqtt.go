// Package telemetry publishes server events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/util"
)

// MQTT topics
const (
	TopicConnections = "quarry/connections"
	TopicPlayers     = "quarry/players"
	TopicHeartbeat   = "quarry/heartbeat"
	TopicAdmin       = "quarry/admin"
)

const publishTimeout = 5 * time.Second

var (
	ErrNotConnected   = errors.New("mqtt client not connected")
	ErrPublishTimeout = errors.New("mqtt publish timed out")
)

// MQTTHandler owns the broker connection and forwards bus events to it.
type MQTTHandler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	client   mqtt.Client
	breaker  *gobreaker.CircuitBreaker[struct{}]

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a handler from the [mqtt] section of cfg. hostInfo
// is attached to every message.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus, hostInfo util.HostInfo) (*MQTTHandler, error) {
	mqttCfg := cfg.MQTT
	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(mqttCfg))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("quarry-%s", hostInfo.Hostname))
	}
	if mqttCfg.Username != "" {
		opts.SetUsername(mqttCfg.Username)
		opts.SetPassword(mqttCfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if mqttCfg.UseTLS {
		tlsConfig, err := buildTLSConfig(mqttCfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	return newHandler(cfg, eventBus, mqtt.NewClient(opts), hostInfo), nil
}

func newHandler(cfg *config.Config, eventBus *events.EventBus, client mqtt.Client, hostInfo util.HostInfo) *MQTTHandler {
	return &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		client:   client,
		breaker:  newBreaker("mqtt"),
		metadata: map[string]interface{}{
			"hostname":    hostInfo.Hostname,
			"platform":    hostInfo.Platform,
			"cpu_model":   hostInfo.CPUModel,
			"cpu_cores":   hostInfo.CPUCores,
			"memory_mb":   hostInfo.MemoryMB,
			"app_version": util.Version,
		},
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("MQTT circuit breaker state changed")
		},
	})
}

func brokerURL(c config.MQTTConfig) string {
	scheme := "tcp"
	if c.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.BrokerURL, c.Port)
}

func buildTLSConfig(c config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	// mTLS client certificate
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// Start connects to the broker, subscribes to bus events and blocks until
// ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", brokerURL(h.cfg.MQTT)).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.PublishShutdown("stopped")
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventClientConnected, "mqtt.clientConnected", h.onClientConnected)
	h.eventBus.Subscribe(events.EventClientDisconnected, "mqtt.clientDisconnected", h.onClientDisconnected)
	h.eventBus.Subscribe(events.EventPlayerLogin, "mqtt.playerLogin", h.onPlayerLogin)
	h.eventBus.Subscribe(events.EventHeartbeat, "mqtt.heartbeat", h.onHeartbeat)
}

// publish sends a JSON message to topic through the circuit breaker.
func (h *MQTTHandler) publish(topic string, payload interface{}) error {
	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		return fmt.Errorf("failed to marshal MQTT message: %w", err)
	}

	_, err = h.breaker.Execute(func() (struct{}, error) {
		if !h.client.IsConnected() {
			return struct{}{}, ErrNotConnected
		}
		token := h.client.Publish(topic, 1, false, data) // QoS 1
		if !token.WaitTimeout(publishTimeout) {
			return struct{}{}, ErrPublishTimeout
		}
		return struct{}{}, token.Error()
	})
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
	return err
}

func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// Publish failures are logged and never surface as handler errors.

func (h *MQTTHandler) onClientConnected(ctx context.Context, event events.Event) error {
	h.publish(TopicConnections, map[string]interface{}{
		"event":   "connected",
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onClientDisconnected(ctx context.Context, event events.Event) error {
	h.publish(TopicConnections, map[string]interface{}{
		"event":   "disconnected",
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onPlayerLogin(ctx context.Context, event events.Event) error {
	h.publish(TopicPlayers, map[string]interface{}{
		"event":   "login",
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onHeartbeat(ctx context.Context, event events.Event) error {
	h.publish(TopicHeartbeat, event.Payload)
	return nil
}

// PublishShutdown sends a shutdown notice on the admin topic.
func (h *MQTTHandler) PublishShutdown(reason string) {
	h.publish(TopicAdmin, map[string]interface{}{
		"event":  "shutdown",
		"reason": reason,
	})
}

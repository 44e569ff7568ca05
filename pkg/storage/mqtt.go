package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/battsentry/battsentry/pkg/log"
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	ClientID string `json:"clientId"`
	Topic    string `json:"topic"`
}

// MQTTLog publishes each row as JSON to a topic, QoS 1, so dashboards and
// home automation can follow charger state live.
type MQTTLog struct {
	client mqtt.Client
	topic  string
}

var _ PersistentLog = &MQTTLog{}

// NewMQTTLog connects to the broker, retrying with exponential backoff.
func NewMQTTLog(ctx context.Context, cfg MQTTConfig) (*MQTTLog, error) {
	addr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Ctx(ctx).Warn("mqtt connect failed, retrying", "broker", addr, "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", addr, err)
	}
	log.Ctx(ctx).Info("connected to mqtt broker", "broker", addr, "topic", cfg.Topic)
	return &MQTTLog{client: client, topic: cfg.Topic}, nil
}

func (l *MQTTLog) AppendRow(_ context.Context, row Row) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshaling row: %w", err)
	}
	token := l.client.Publish(l.topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", l.topic, token.Error())
	}
	return nil
}

func (l *MQTTLog) Close() error {
	if l.client.IsConnected() {
		l.client.Disconnect(250)
	}
	return nil
}

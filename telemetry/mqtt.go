package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"slmtrig/config"
)

// MQTTSink publishes each snapshot as a JSON message
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte
	wait   time.Duration
}

// DialMQTT connects to the broker named in cfg
func DialMQTT(cfg config.MQTTConfig) (*MQTTSink, error) {
	keepAlive := time.Duration(cfg.KeepAliveMs) * time.Millisecond
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(keepAlive / 2)
	opts.SetAutoReconnect(true)

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return NewMQTTSink(c, cfg.Topic, cfg.QoS), nil
}

// NewMQTTSink publishes through an already connected client
func NewMQTTSink(c mqtt.Client, topic string, qos uint8) *MQTTSink {
	return &MQTTSink{client: c, topic: topic, qos: qos, wait: 2 * time.Second}
}

func (s *MQTTSink) Publish(snap Snapshot) error {
	msg, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, s.qos, true, msg)
	if !token.WaitTimeout(s.wait) {
		return fmt.Errorf("mqtt publish %s: timed out", s.topic)
	}
	return token.Error()
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}

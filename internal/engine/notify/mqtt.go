package notify

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"callcrm/internal/platform/config"
)

// Publisher fans derived events out to an MQTT broker, one topic per event
// type (e.g. callcrm/calls/call.completed). Publishing is best-effort:
// failures are logged, not retried. The durable retry path is the HTTP
// delivery log.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
}

func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second)

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", cfg.BrokerURL, err)
	}

	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "callcrm/calls"
	}

	return &Publisher{
		client:      client,
		topicPrefix: prefix,
		qos:         byte(cfg.QoS),
	}, nil
}

func (p *Publisher) Publish(eventType string, payload []byte) {
	topic := p.topicPrefix + "/" + eventType
	token := p.client.Publish(topic, p.qos, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

func (p *Publisher) Close() {
	p.client.Disconnect(1000)
}

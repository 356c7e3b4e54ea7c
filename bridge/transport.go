package bridge

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	maxQoS                = 2
)

// Config maps to the mqtt section of config.yaml. An empty Broker disables
// the bridge.
type Config struct {
	Broker          string `mapstructure:"broker"`
	ClientId        string `mapstructure:"clientid"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TopicPrefix     string `mapstructure:"topicprefix"`
	DiscoveryPrefix string `mapstructure:"discoveryprefix"`
	QoS             int    `mapstructure:"qos"`
}

// MessageHandler receives the topic and raw payload of a message.
type MessageHandler func(topic string, payload []byte)

// Transport is the broker connection the bridge talks through.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Close()
}

type pahoTransport struct {
	client       pahomqtt.Client
	availability string
	qos          byte
}

// Connect opens a paho connection with auto-reconnect. Subscriptions are
// restored by paho after a reconnect since the session is not cleaned.
func Connect(cfg Config, logger *zap.SugaredLogger) (Transport, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientId).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetConnectTimeout(defaultConnectTimeout).
		SetWill(availabilityTopic(cfg.TopicPrefix), payloadOffline, byte(cfg.QoS), true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		logger.Infof("Connected to MQTT broker %s", cfg.Broker)
		c.Publish(availabilityTopic(cfg.TopicPrefix), byte(cfg.QoS), true, payloadOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warnf("MQTT connection lost: %v", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return &pahoTransport{client: client, availability: availabilityTopic(cfg.TopicPrefix), qos: byte(cfg.QoS)}, nil
}

func (p *pahoTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (p *pahoTransport) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := p.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (p *pahoTransport) Close() {
	// graceful offline, the will only fires on connection loss
	p.client.Publish(p.availability, p.qos, true, payloadOffline).WaitTimeout(defaultPublishTimeout)
	p.client.Disconnect(250)
}

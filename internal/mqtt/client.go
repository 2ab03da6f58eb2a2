package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/powermon433-mqtt/internal/models"
)

var ErrPublishTimeout = errors.New("timed out waiting for publish")

// Publisher is the part of the client the bridge loop depends on.
type Publisher interface {
	Publish(topic string, retained bool, payload interface{}) error
}

type Client interface {
	Publisher
	Close()
	Connect() error
	IsConnected() bool
}

func NewClient(config models.MQTTConfiguration) Client {
	return &client{config: config}
}

type client struct {
	config     models.MQTTConfiguration
	mqttClient mqtt.Client
}

func (c *client) Connect() error {
	log.Info().Str("broker", c.config.BrokerURL()).Msg("Connecting to broker")
	c.mqttClient = mqtt.NewClient(c.options())
	if token := c.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("error connecting to mqtt broker %s: %w", c.config.BrokerURL(), token.Error())
	}
	return nil
}

func (c *client) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.BrokerURL())
	opts.SetClientID(c.config.ClientID)
	if c.config.Username != "" && c.config.Password != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectLostHandler
	return opts
}

func (c *client) Close() {
	if c.mqttClient != nil {
		c.mqttClient.Disconnect(250)
	}
}

func (c *client) IsConnected() bool {
	return c.mqttClient != nil && c.mqttClient.IsConnected()
}

func (c *client) Publish(topic string, retained bool, payload interface{}) error {
	if c.mqttClient == nil {
		return errors.New("mqtt client not connected")
	}
	body, err := encodePayload(payload)
	if err != nil {
		return err
	}
	token := c.mqttClient.Publish(topic, c.config.QoS, retained, body)
	if timeout := c.config.PublishTimeout.Duration; timeout > 0 {
		if !token.WaitTimeout(timeout) {
			return ErrPublishTimeout
		}
	} else {
		token.Wait()
	}
	return token.Error()
}

func encodePayload(payload interface{}) ([]byte, error) {
	switch body := payload.(type) {
	case []byte:
		return body, nil
	case string:
		return []byte(body), nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error encoding payload: %w", err)
		}
		return data, nil
	}
}

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	log.Info().Msg("Connected")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Warn().Err(err).Msg("Connect lost")
}

// Package mqtt publishes frame results and alerts to an MQTT broker for
// external dashboards and automations.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/logging"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	reconnectCooldown = 5 * time.Second
)

// Client is the broker connection used by the publisher.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

type client struct {
	broker   string
	clientID string
	username string
	password string

	mu              sync.Mutex
	internalClient  pahomqtt.Client
	lastConnAttempt time.Time

	logger *slog.Logger
}

// NewClient creates an MQTT client from the realtime settings.
func NewClient(settings *conf.Settings) (Client, error) {
	if _, err := url.Parse(settings.Realtime.MQTT.Broker); err != nil {
		return nil, errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", settings.Realtime.MQTT.Broker).
			Build()
	}
	log := logging.ForService("mqtt")
	if log == nil {
		log = slog.Default().With("service", "mqtt")
	}
	return &client{
		broker:   settings.Realtime.MQTT.Broker,
		clientID: settings.Main.Name,
		username: settings.Realtime.MQTT.Username,
		password: settings.Realtime.MQTT.Password,
		logger:   log,
	}, nil
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastConnAttempt) < reconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago",
			time.Since(c.lastConnAttempt)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastConnAttempt = time.Now()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID(c.clientID)
	opts.SetUsername(c.username)
	opts.SetPassword(c.password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.logger.Info("connected to broker", "broker", c.broker)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("connection lost", "broker", c.broker, "error", err)
	})

	c.internalClient = pahomqtt.NewClient(opts)
	token := c.internalClient.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return errors.New(ctx.Err()).Component("mqtt").Category(errors.CategoryMQTTConnection).Build()
	case <-time.After(connectTimeout):
		return errors.Newf("connect timeout after %v", connectTimeout).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.broker).
			Build()
	}
	return nil
}

func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	internal := c.internalClient
	c.mu.Unlock()

	if internal == nil || !internal.IsConnected() {
		return errors.Newf("not connected to broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	token := internal.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return errors.New(ctx.Err()).Component("mqtt").Category(errors.CategoryMQTTPublish).Build()
	case <-time.After(publishTimeout):
		return errors.Newf("publish timeout after %v", publishTimeout).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return nil
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient != nil && c.internalClient.IsConnected()
}

func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil {
		c.internalClient.Disconnect(250)
	}
}

// Publisher serializes pipeline payloads to JSON topics under the
// configured topic root.
type Publisher struct {
	client Client
	root   string
	logger *slog.Logger
}

// NewPublisher wraps a connected client with topic layout and encoding.
func NewPublisher(settings *conf.Settings, c Client) *Publisher {
	log := logging.ForService("mqtt")
	if log == nil {
		log = slog.Default().With("service", "mqtt")
	}
	root := settings.Realtime.MQTT.Topic
	if root == "" {
		root = "herdwatch"
	}
	return &Publisher{client: c, root: root, logger: log}
}

// PublishJSON marshals the payload and publishes it under root/subtopic.
func (p *Publisher) PublishJSON(ctx context.Context, subtopic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("subtopic", subtopic).
			Build()
	}
	topic := fmt.Sprintf("%s/%s", p.root, subtopic)
	if err := p.client.Publish(ctx, topic, data); err != nil {
		return err
	}
	p.logger.Debug("published", "topic", topic, "bytes", len(data))
	return nil
}

// Package mqtt provides the MQTT transport used to reach the hub and the
// provisioning service, with automatic reconnection and resubscription.
package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("mqtt: client not connected")

// protocolVersion is MQTT 3.1.1, the only version both services accept.
const protocolVersion = 4

// Client wraps the MQTT client with additional functionality.
type Client struct {
	client mqtt.Client
	logger *zap.Logger
	config *Config

	mu            sync.Mutex
	subscriptions map[string]subscription
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Config holds MQTT client configuration.
type Config struct {
	// BrokerURL is the MQTT broker URL (e.g., "ssl://my-hub.azure-devices.net:8883")
	BrokerURL string
	// ClientID is the device id, or "<device>/<module>" for a module
	ClientID string
	// Username for MQTT authentication
	Username string
	// Password for MQTT authentication, usually a SAS token
	Password string
	// Credentials, when set, is asked for username and password on every
	// (re)connect and takes precedence over Username and Password
	Credentials func() (username, password string)
	// TLS overrides the default TLS settings for ssl:// and wss:// brokers
	TLS *tls.Config
	// KeepAlive interval
	KeepAlive time.Duration
	// ConnectTimeout bounds Connect and every token wait
	ConnectTimeout time.Duration
	// AutoReconnect enables automatic reconnection
	AutoReconnect bool
	// MaxReconnectInterval is the maximum time between reconnection attempts
	MaxReconnectInterval time.Duration
	// CleanSession starts each connection without stored subscriptions
	CleanSession bool
}

// MessageHandler is a callback function for handling received messages.
type MessageHandler func(topic string, payload []byte) error

// NewClient creates a new MQTT client with the given configuration.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BrokerURL == "" {
		return nil, fmt.Errorf("broker url is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		logger:        logger.With(zap.String("client_id", config.ClientID)),
		config:        config,
		subscriptions: make(map[string]subscription),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	opts.SetProtocolVersion(protocolVersion)
	opts.SetCleanSession(config.CleanSession)

	if config.Credentials != nil {
		opts.SetCredentialsProvider(config.Credentials)
	} else {
		if config.Username != "" {
			opts.SetUsername(config.Username)
		}
		if config.Password != "" {
			opts.SetPassword(config.Password)
		}
	}

	if tlsConfig := tlsFor(config); tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetKeepAlive(config.KeepAlive)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetAutoReconnect(config.AutoReconnect)
	opts.SetMaxReconnectInterval(config.MaxReconnectInterval)
	// Handlers may publish and wait for the reply on this same connection.
	opts.SetOrderMatters(false)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.logger.Error("MQTT connection lost", zap.Error(err))
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.logger.Info("MQTT connected", zap.String("broker", config.BrokerURL))
		c.resubscribe()
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		c.logger.Info("MQTT reconnecting...")
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// tlsFor returns the TLS settings for secure broker schemes, nil otherwise.
func tlsFor(config *Config) *tls.Config {
	u, err := url.Parse(config.BrokerURL)
	if err != nil {
		return config.TLS
	}
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "tcps", "wss":
		if config.TLS != nil {
			return config.TLS
		}
		return &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	}
	return config.TLS
}

// Connect establishes connection to the MQTT broker.
func (c *Client) Connect() error {
	c.logger.Info("Connecting to MQTT broker", zap.String("broker", c.config.BrokerURL))

	token := c.client.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout after %v", c.config.ConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	return nil
}

// Disconnect closes the connection to the MQTT broker.
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")
	c.client.Disconnect(250) // 250ms grace period
}

// IsConnected returns true if the client is connected to the broker.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Publish sends a message to the specified topic.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if err := c.wait(token); err != nil {
		c.logger.Error("Failed to publish message",
			zap.String("topic", topic),
			zap.Error(err))
		return fmt.Errorf("publish failed: %w", err)
	}

	c.logger.Debug("Message published",
		zap.String("topic", topic),
		zap.Int("size", len(payload)))

	return nil
}

// Subscribe registers handler for topic. The subscription is sent now when
// connected and again after every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.IsConnected() {
		c.logger.Debug("Deferring subscription until connected", zap.String("topic", topic))
		return nil
	}
	return c.subscribe(topic, qos, handler)
}

// Unsubscribe unsubscribes from the specified topic.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	token := c.client.Unsubscribe(topic)
	if err := c.wait(token); err != nil {
		c.logger.Error("Failed to unsubscribe",
			zap.String("topic", topic),
			zap.Error(err))
		return fmt.Errorf("unsubscribe failed: %w", err)
	}

	c.logger.Info("Unsubscribed from topic", zap.String("topic", topic))
	return nil
}

// Subscriptions returns the registered topic filters in sorted order.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (c *Client) subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, c.callback(handler))
	if err := c.wait(token); err != nil {
		c.logger.Error("Failed to subscribe",
			zap.String("topic", topic),
			zap.Error(err))
		return fmt.Errorf("subscribe failed: %w", err)
	}

	c.logger.Info("Subscribed to topic", zap.String("topic", topic))
	return nil
}

// resubscribe restores every registered subscription after a connect.
func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subscriptions))
	for t, s := range c.subscriptions {
		subs[t] = s
	}
	c.mu.Unlock()

	for t, s := range subs {
		if err := c.subscribe(t, s.qos, s.handler); err != nil {
			c.logger.Warn("Resubscribe failed", zap.String("topic", t), zap.Error(err))
		}
	}
}

func (c *Client) callback(handler MessageHandler) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		c.logger.Debug("Message received",
			zap.String("topic", msg.Topic()),
			zap.Int("size", len(msg.Payload())))

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Error("Handler error",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
		}
	}
}

func (c *Client) wait(token mqtt.Token) error {
	if c.config.ConnectTimeout > 0 && !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("timeout after %v", c.config.ConnectTimeout)
	}
	if c.config.ConnectTimeout <= 0 {
		token.Wait()
	}
	return token.Error()
}

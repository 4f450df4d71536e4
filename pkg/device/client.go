// Package device implements a hub device or module client on top of an MQTT
// transport: telemetry, cloud-to-device and input messages, direct methods and
// the device twin.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unklstewy/iothub-device-go/pkg/iothub"
	"github.com/unklstewy/iothub-device-go/pkg/mqtt"
)

var (
	// ErrRequestFailed is returned for twin responses outside the 2xx range.
	ErrRequestFailed = errors.New("device: request failed")
	// ErrNotStarted is returned by twin requests before Start.
	ErrNotStarted = errors.New("device: client not started")
)

// Transport is the MQTT connection the client runs on.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// Options identifies the device, and the module when the client is one.
// QoS is used as given for every subscription and publish; the hub accepts
// 0 and 1.
type Options struct {
	DeviceID string
	ModuleID string
	QoS      byte
}

// MessageHandler receives cloud-to-device or module input messages.
type MessageHandler func(msg *iothub.Message)

// MethodHandler answers a direct method with a status and a JSON payload.
type MethodHandler func(ctx context.Context, payload []byte) (status int, response []byte, err error)

// PatchHandler receives a desired properties patch and its version.
type PatchHandler func(version string, patch []byte)

// Twin is the device twin document.
type Twin struct {
	Desired  map[string]any `json:"desired"`
	Reported map[string]any `json:"reported"`
}

type twinResponse struct {
	status  int
	version string
	body    []byte
}

// Client routes inbound topics to handlers and correlates twin requests.
type Client struct {
	transport Transport
	opts      Options
	logger    *zap.Logger
	newID     func() string

	startMu sync.Mutex

	mu        sync.RWMutex
	ctx       context.Context
	started   bool
	onMessage MessageHandler
	onInput   MessageHandler
	onPatch   PatchHandler
	methods   map[string]MethodHandler
	pending   map[string]chan twinResponse
}

// New creates a client. Handlers should be registered before Start.
func New(transport Transport, opts Options, logger *zap.Logger) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if opts.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if opts.QoS > 1 {
		return nil, fmt.Errorf("qos %d is not supported", opts.QoS)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fields := []zap.Field{zap.String("device_id", opts.DeviceID)}
	if opts.ModuleID != "" {
		fields = append(fields, zap.String("module_id", opts.ModuleID))
	}

	return &Client{
		transport: transport,
		opts:      opts,
		logger:    logger.With(fields...),
		newID:     uuid.NewString,
		ctx:       context.Background(),
		methods:   make(map[string]MethodHandler),
		pending:   make(map[string]chan twinResponse),
	}, nil
}

// OnMessage sets the cloud-to-device message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

// OnInputMessage sets the module input message handler.
func (c *Client) OnInputMessage(h MessageHandler) {
	c.mu.Lock()
	c.onInput = h
	c.mu.Unlock()
}

// OnMethod registers the handler for the named direct method.
func (c *Client) OnMethod(name string, h MethodHandler) {
	c.mu.Lock()
	c.methods[name] = h
	c.mu.Unlock()
}

// OnDesiredPropertiesPatch sets the desired properties patch handler.
func (c *Client) OnDesiredPropertiesPatch(h PatchHandler) {
	c.mu.Lock()
	c.onPatch = h
	c.mu.Unlock()
}

// Start subscribes to every inbound topic. ctx is passed to method handlers.
func (c *Client) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.ctx = ctx
	c.mu.Unlock()

	messages := iothub.C2DSubscribeTopic(c.opts.DeviceID)
	if c.opts.ModuleID != "" {
		messages = iothub.InputSubscribeTopic(c.opts.DeviceID, c.opts.ModuleID)
	}

	for _, t := range []string{
		messages,
		iothub.MethodSubscribeTopic(),
		iothub.TwinResponseSubscribeTopic(),
		iothub.TwinPatchSubscribeTopic(),
	} {
		if err := c.transport.Subscribe(t, c.opts.QoS, c.dispatch); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	c.logger.Info("Device client started")
	return nil
}

// SendTelemetry publishes msg with its properties encoded in the topic.
func (c *Client) SendTelemetry(ctx context.Context, msg *iothub.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := iothub.EncodeMessageProperties(msg, iothub.TelemetryPublishTopic(c.opts.DeviceID, c.opts.ModuleID))
	if err := c.transport.Publish(t, c.opts.QoS, false, msg.Payload); err != nil {
		return fmt.Errorf("send telemetry: %w", err)
	}
	return nil
}

// GetTwin requests the full twin document.
func (c *Client) GetTwin(ctx context.Context) (*Twin, error) {
	resp, err := c.twinRequest(ctx, iothub.TwinMethodGet, iothub.TwinResourceTwin, nil)
	if err != nil {
		return nil, err
	}
	var twin Twin
	if err := json.Unmarshal(resp.body, &twin); err != nil {
		return nil, fmt.Errorf("decode twin: %w", err)
	}
	return &twin, nil
}

// PatchReportedProperties sends a reported properties patch and returns the
// new reported version.
func (c *Client) PatchReportedProperties(ctx context.Context, patch any) (string, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return "", fmt.Errorf("encode patch: %w", err)
	}
	resp, err := c.twinRequest(ctx, iothub.TwinMethodPatch, iothub.TwinResourceReported, body)
	if err != nil {
		return "", err
	}
	return resp.version, nil
}

func (c *Client) twinRequest(ctx context.Context, method, resource string, body []byte) (twinResponse, error) {
	rid := c.newID()
	ch := make(chan twinResponse, 1)

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return twinResponse{}, ErrNotStarted
	}
	c.pending[rid] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, rid)
		c.mu.Unlock()
	}()

	if body == nil {
		body = []byte{}
	}
	if err := c.transport.Publish(iothub.TwinPublishTopic(method, resource, rid), c.opts.QoS, false, body); err != nil {
		return twinResponse{}, fmt.Errorf("twin %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return twinResponse{}, ctx.Err()
	case resp := <-ch:
		if resp.status < 200 || resp.status > 299 {
			return resp, fmt.Errorf("%w: twin %s%s returned %d", ErrRequestFailed, method, resource, resp.status)
		}
		return resp, nil
	}
}

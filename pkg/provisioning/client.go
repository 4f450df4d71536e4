package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unklstewy/iothub-device-go/pkg/mqtt"
)

// DefaultRetryAfter is the polling interval used when a response carries no retry-after.
const DefaultRetryAfter = 2 * time.Second

// Transport is the publish/subscribe connection to the provisioning endpoint.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Client registers a device with the provisioning service.
type Client struct {
	transport  Transport
	logger     *zap.Logger
	retryAfter time.Duration
	newID      func() string

	mu         sync.Mutex
	subscribed bool
	pending    map[string]chan response
}

type response struct {
	status string
	props  map[string]string
	body   []byte
}

type registerRequest struct {
	RegistrationID string `json:"registrationId"`
	Payload        any    `json:"payload,omitempty"`
}

// NewClient creates a provisioning client on an open transport.
func NewClient(transport Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		transport:  transport,
		logger:     logger.With(zap.String("component", "provisioning")),
		retryAfter: DefaultRetryAfter,
		newID:      uuid.NewString,
		pending:    make(map[string]chan response),
	}
}

// Register sends a registration request and polls the operation until the
// service assigns the device or gives up. payload is sent as the custom
// allocation payload when not nil.
func (c *Client) Register(ctx context.Context, registrationID string, payload any) (*RegistrationResult, error) {
	if err := c.subscribe(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(registerRequest{RegistrationID: registrationID, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("provisioning: encode request: %w", err)
	}

	logger := c.logger.With(zap.String("registration_id", registrationID))
	logger.Info("Registering device")

	resp, err := c.request(ctx, func(rid string) string {
		return RegisterPublishTopic(MethodRegister, rid)
	}, body)
	if err != nil {
		return nil, err
	}

	for {
		result, err := c.evaluate(resp)
		if err != nil {
			return nil, err
		}
		if result.Terminal() {
			if err := result.Err(); err != nil {
				logger.Warn("Registration ended without assignment",
					zap.String("status", result.Status),
					zap.Error(err))
				return result, err
			}
			logger.Info("Device assigned",
				zap.String("hub", result.State.AssignedHub),
				zap.String("device_id", result.State.DeviceID))
			return result, nil
		}
		if result.OperationID == "" {
			return nil, fmt.Errorf("%w: status %q without operation id", ErrRegistrationFailed, result.Status)
		}

		wait := c.retryDelay(resp.props)
		logger.Debug("Registration pending",
			zap.String("operation_id", result.OperationID),
			zap.String("status", result.Status),
			zap.Duration("retry_after", wait))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		operationID := result.OperationID
		resp, err = c.request(ctx, func(rid string) string {
			return QueryPublishTopic(MethodQuery, rid, operationID)
		}, nil)
		if err != nil {
			return nil, err
		}
	}
}

// evaluate turns a raw response into a result, failing on error status codes.
func (c *Client) evaluate(resp response) (*RegistrationResult, error) {
	code, err := strconv.Atoi(resp.status)
	if err != nil {
		return nil, fmt.Errorf("provisioning: bad status code %q: %w", resp.status, err)
	}

	result, err := ParseRegistrationResponse(resp.body)
	if err != nil {
		if code >= 300 {
			return nil, fmt.Errorf("%w: status code %d", ErrRegistrationFailed, code)
		}
		return nil, err
	}
	if code >= 300 {
		return nil, fmt.Errorf("%w: status code %d: %s", ErrRegistrationFailed, code, result.ErrorMessage)
	}
	if code == 202 && result.Status == "" {
		result.Status = StatusAssigning
	}
	if result.Status == StatusAssigned && result.State == nil {
		return nil, fmt.Errorf("%w: assigned without registration state", ErrRegistrationFailed)
	}
	return result, nil
}

func (c *Client) retryDelay(props map[string]string) time.Duration {
	v, ok := props[PropertyRetryAfter]
	if !ok {
		return c.retryAfter
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		c.logger.Warn("Ignoring bad retry-after", zap.String("value", v))
		return c.retryAfter
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) subscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed {
		return nil
	}
	if err := c.transport.Subscribe(RegisterSubscribeTopic(), 1, c.handleResponse); err != nil {
		return fmt.Errorf("provisioning: subscribe: %w", err)
	}
	c.subscribed = true
	return nil
}

// request publishes on the topic built for a fresh request id and waits for
// the response carrying that id.
func (c *Client) request(ctx context.Context, topicFor func(rid string) string, body []byte) (response, error) {
	rid := c.newID()
	ch := make(chan response, 1)

	c.mu.Lock()
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
	if err := c.transport.Publish(topicFor(rid), 1, false, body); err != nil {
		return response{}, fmt.Errorf("provisioning: publish: %w", err)
	}

	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case resp := <-ch:
		return resp, nil
	}
}

// handleResponse routes a response topic to the request waiting on its rid.
func (c *Client) handleResponse(t string, payload []byte) error {
	if !IsResponseTopic(t) {
		return nil
	}
	status, err := StatusCodeFromResponseTopic(t)
	if err != nil {
		return err
	}
	props, err := PropertiesFromResponseTopic(t)
	if err != nil {
		return err
	}
	rid, ok := props[PropertyRequestID]
	if !ok {
		return fmt.Errorf("provisioning: response without request id: %q", t)
	}

	c.mu.Lock()
	ch, ok := c.pending[rid]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Dropping response for unknown request", zap.String("rid", rid))
		return nil
	}

	select {
	case ch <- response{status: status, props: props, body: payload}:
	default:
		c.logger.Warn("Duplicate response for request", zap.String("rid", rid))
	}
	return nil
}

package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/unklstewy/iothub-device-go/pkg/iothub"
)

// dispatch classifies an inbound topic and hands it to the matching handler.
// Order matters: message topics are checked before the $iothub families.
func (c *Client) dispatch(t string, payload []byte) error {
	switch {
	case iothub.IsC2DTopic(t, c.opts.DeviceID):
		return c.deliver(t, payload, c.messageHandler())
	case c.opts.ModuleID != "" && iothub.IsInputTopic(t, c.opts.DeviceID, c.opts.ModuleID):
		return c.deliver(t, payload, c.inputHandler())
	case iothub.IsMethodTopic(t):
		return c.handleMethod(t, payload)
	case iothub.IsTwinResponseTopic(t):
		return c.handleTwinResponse(t, payload)
	case iothub.IsTwinDesiredPropertyPatchTopic(t):
		return c.handlePatch(t, payload)
	default:
		c.logger.Warn("Dropping message on unknown topic", zap.String("topic", t))
		return nil
	}
}

func (c *Client) deliver(t string, payload []byte, h MessageHandler) error {
	msg := iothub.NewMessage(payload)
	if err := iothub.ExtractMessageProperties(t, msg); err != nil {
		return fmt.Errorf("message properties: %w", err)
	}
	if !msg.HasMandatoryProperties() {
		c.logger.Debug("Message without mid or to", zap.String("topic", t))
	}
	if h == nil {
		c.logger.Warn("No handler for message", zap.String("message_id", msg.MessageID))
		return nil
	}
	c.goHandle("message", func() { h(msg) })
	return nil
}

// goHandle runs fn off the delivery goroutine. Handlers may issue twin
// requests, whose responses arrive on that same goroutine.
func (c *Client) goHandle(kind string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Handler panicked",
					zap.String("handler", kind),
					zap.Any("panic", r))
			}
		}()
		fn()
	}()
}

func (c *Client) handleMethod(t string, payload []byte) error {
	name, err := iothub.MethodNameFromTopic(t)
	if err != nil {
		return err
	}
	rid, err := iothub.MethodRequestIDFromTopic(t)
	if err != nil {
		return err
	}

	c.mu.RLock()
	h, ok := c.methods[name]
	ctx := c.ctx
	c.mu.RUnlock()

	logger := c.logger.With(zap.String("method", name), zap.String("rid", rid))
	if !ok {
		logger.Warn("Direct method not registered")
		body, _ := json.Marshal(map[string]string{"message": "method " + name + " not registered"})
		c.goHandle("method", func() {
			if err := c.respond(rid, http.StatusNotFound, body); err != nil {
				logger.Error("Failed to send method response", zap.Error(err))
			}
		})
		return nil
	}

	c.goHandle("method", func() {
		status, body, err := c.invoke(ctx, h, payload)
		if err != nil {
			logger.Error("Direct method failed", zap.Error(err))
		}
		if err := c.respond(rid, status, body); err != nil {
			logger.Error("Failed to send method response", zap.Error(err))
		}
	})
	return nil
}

func (c *Client) invoke(ctx context.Context, h MethodHandler, payload []byte) (status int, body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, body, err = http.StatusInternalServerError, nil, fmt.Errorf("method panicked: %v", r)
		}
	}()

	status, body, err = h(ctx, payload)
	if err != nil {
		msg, _ := json.Marshal(map[string]string{"message": err.Error()})
		if status < 400 {
			status = http.StatusInternalServerError
		}
		return status, msg, err
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, body, nil
}

func (c *Client) respond(rid string, status int, body []byte) error {
	if len(body) == 0 {
		body = []byte("null")
	}
	t := iothub.MethodResponsePublishTopic(rid, strconv.Itoa(status))
	return c.transport.Publish(t, c.opts.QoS, false, body)
}

func (c *Client) handleTwinResponse(t string, payload []byte) error {
	rid, err := iothub.TwinRequestIDFromTopic(t)
	if err != nil {
		return err
	}
	code, err := iothub.TwinStatusCodeFromTopic(t)
	if err != nil {
		return err
	}
	status, err := strconv.Atoi(code)
	if err != nil {
		return fmt.Errorf("twin status %q: %w", code, err)
	}
	// Only PATCH responses carry a version.
	version, _ := iothub.TwinVersionFromTopic(t)

	c.mu.RLock()
	ch, ok := c.pending[rid]
	c.mu.RUnlock()
	if !ok {
		c.logger.Warn("Twin response for unknown request", zap.String("rid", rid))
		return nil
	}

	select {
	case ch <- twinResponse{status: status, version: version, body: payload}:
	default:
		c.logger.Warn("Duplicate twin response", zap.String("rid", rid))
	}
	return nil
}

func (c *Client) handlePatch(t string, payload []byte) error {
	version, err := iothub.TwinVersionFromTopic(t)
	if err != nil {
		return err
	}

	c.mu.RLock()
	h := c.onPatch
	c.mu.RUnlock()
	if h == nil {
		c.logger.Debug("No handler for desired properties patch", zap.String("version", version))
		return nil
	}
	c.goHandle("desired properties patch", func() { h(version, payload) })
	return nil
}

func (c *Client) messageHandler() MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onMessage
}

func (c *Client) inputHandler() MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onInput
}

// Package iothub builds and parses the MQTT topics of the device-operations protocol.
package iothub

import (
	"fmt"

	"github.com/unklstewy/iothub-device-go/pkg/topic"
)

// Topic prefixes and static topics.
const (
	// DevicesPrefix is the root of all per-device topics.
	DevicesPrefix = "devices"

	// MethodSubscription receives direct method invocations.
	MethodSubscription = "$iothub/methods/POST/#"

	// TwinResponseSubscription receives responses to twin requests.
	TwinResponseSubscription = "$iothub/twin/res/#"

	// TwinPatchSubscription receives desired property patches.
	TwinPatchSubscription = "$iothub/twin/PATCH/properties/desired/#"

	methodResponsePrefix = "$iothub/methods/res/"
	twinPrefix           = "$iothub/twin/"
	requestIDQuery       = "?$rid="
)

// Twin request methods and resource locations.
const (
	TwinMethodGet   = "GET"
	TwinMethodPatch = "POST"

	TwinResourceTwin     = "/"
	TwinResourceReported = "/properties/reported/"
)

// Inbound topic shapes.
var (
	c2dPattern       = topic.MustCompile("devices/{device}/messages/devicebound")
	inputPattern     = topic.MustCompile("devices/{device}/modules/{module}/inputs")
	inputNamePattern = topic.MustCompile("devices/{device}/modules/{module}/inputs/{input}")
	methodPattern    = topic.MustCompile("$iothub/methods/POST/{method}")
	twinResPattern   = topic.MustCompile("$iothub/twin/res/{status}")
	twinPatchPattern = topic.MustCompile("$iothub/twin/PATCH/properties/desired")
)

// =============================================================================
// Outbound topics
// =============================================================================

// C2DSubscribeTopic returns the subscription for cloud-to-device messages.
//
// Example: devices/my%2Fdevice/messages/devicebound/#
func C2DSubscribeTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/messages/devicebound/#", DevicesPrefix, topic.Encode(deviceID))
}

// InputSubscribeTopic returns the subscription for module input messages.
//
// Example: devices/d1/modules/m1/inputs/#
func InputSubscribeTopic(deviceID, moduleID string) string {
	return fmt.Sprintf("%s/%s/modules/%s/inputs/#",
		DevicesPrefix, topic.Encode(deviceID), topic.Encode(moduleID))
}

// MethodSubscribeTopic returns the subscription for direct methods.
func MethodSubscribeTopic() string {
	return MethodSubscription
}

// TwinResponseSubscribeTopic returns the subscription for twin responses.
func TwinResponseSubscribeTopic() string {
	return TwinResponseSubscription
}

// TwinPatchSubscribeTopic returns the subscription for desired property patches.
func TwinPatchSubscribeTopic() string {
	return TwinPatchSubscription
}

// TelemetryPublishTopic returns the telemetry topic for a device, or for a
// module when moduleID is not empty.
//
// Example: devices/d1/messages/events/
// Example: devices/d1/modules/m1/messages/events/
func TelemetryPublishTopic(deviceID, moduleID string) string {
	if moduleID == "" {
		return fmt.Sprintf("%s/%s/messages/events/", DevicesPrefix, topic.Encode(deviceID))
	}
	return fmt.Sprintf("%s/%s/modules/%s/messages/events/",
		DevicesPrefix, topic.Encode(deviceID), topic.Encode(moduleID))
}

// MethodResponsePublishTopic returns the topic a method result is sent on.
//
// Example: $iothub/methods/res/200/?$rid=1
func MethodResponsePublishTopic(requestID, status string) string {
	return methodResponsePrefix + topic.Encode(status) + "/" + requestIDQuery + topic.Encode(requestID)
}

// TwinPublishTopic returns the topic for a twin request. method and
// resourceLocation are literal path fragments, only the request id is encoded.
//
// Example: $iothub/twin/POST/properties/reported/?$rid=5002
func TwinPublishTopic(method, resourceLocation, requestID string) string {
	return twinPrefix + method + resourceLocation + requestIDQuery + topic.Encode(requestID)
}

// =============================================================================
// Classification
// =============================================================================

// IsC2DTopic reports whether topic is a cloud-to-device message for deviceID.
func IsC2DTopic(t, deviceID string) bool {
	m, ok := c2dPattern.Match(t)
	return ok && m.Captures["device"] == topic.Encode(deviceID)
}

// IsInputTopic reports whether topic is an input message for the given module.
func IsInputTopic(t, deviceID, moduleID string) bool {
	m, ok := inputPattern.Match(t)
	return ok &&
		m.Captures["device"] == topic.Encode(deviceID) &&
		m.Captures["module"] == topic.Encode(moduleID)
}

// IsMethodTopic reports whether topic is a direct method invocation.
func IsMethodTopic(t string) bool {
	path, _, _ := topic.SplitQuery(t)
	return methodPattern.Matches(path)
}

// IsTwinResponseTopic reports whether topic is a response to a twin request.
func IsTwinResponseTopic(t string) bool {
	path, _, _ := topic.SplitQuery(t)
	return twinResPattern.Matches(path)
}

// IsTwinDesiredPropertyPatchTopic reports whether topic carries a desired
// property patch, i.e. it sits under the twin patch subscription.
func IsTwinDesiredPropertyPatchTopic(t string) bool {
	path, _, _ := topic.SplitQuery(t)
	return twinPatchPattern.Matches(path)
}

// =============================================================================
// Extraction
// =============================================================================

// InputNameFromTopic returns the decoded input name of a module input topic.
func InputNameFromTopic(t string) (string, error) {
	m, ok := inputNamePattern.Match(t)
	if !ok {
		return "", shapeError("input", t)
	}
	return m.Capture("input")
}

// MethodNameFromTopic returns the decoded method name of a method topic.
func MethodNameFromTopic(t string) (string, error) {
	path, _, _ := topic.SplitQuery(t)
	m, ok := methodPattern.Match(path)
	if !ok {
		return "", shapeError("method", t)
	}
	return m.Capture("method")
}

// MethodRequestIDFromTopic returns the decoded $rid of a method topic.
func MethodRequestIDFromTopic(t string) (string, error) {
	path, query, _ := topic.SplitQuery(t)
	if !methodPattern.Matches(path) {
		return "", shapeError("method", t)
	}
	return requestProperty(query, "rid")
}

// TwinRequestIDFromTopic returns the decoded $rid of a twin response topic.
func TwinRequestIDFromTopic(t string) (string, error) {
	path, query, _ := topic.SplitQuery(t)
	if !twinResPattern.Matches(path) {
		return "", shapeError("twin response", t)
	}
	return requestProperty(query, "rid")
}

// TwinStatusCodeFromTopic returns the status code of a twin response topic.
func TwinStatusCodeFromTopic(t string) (string, error) {
	path, _, _ := topic.SplitQuery(t)
	m, ok := twinResPattern.Match(path)
	if !ok {
		return "", shapeError("twin response", t)
	}
	return m.Capture("status")
}

// TwinVersionFromTopic returns $version from a twin response or a desired
// property patch topic.
func TwinVersionFromTopic(t string) (string, error) {
	path, query, _ := topic.SplitQuery(t)
	if !twinResPattern.Matches(path) && !twinPatchPattern.Matches(path) {
		return "", shapeError("twin", t)
	}
	return requestProperty(query, "version")
}

func requestProperty(query, key string) (string, error) {
	props, err := topic.ExtractRequestProperties(query)
	if err != nil {
		return "", err
	}
	v, ok := props[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", topic.ErrMissingProperty, key)
	}
	return v, nil
}

func shapeError(kind, t string) error {
	return fmt.Errorf("%w: not a %s topic: %q", topic.ErrShapeMismatch, kind, t)
}

// Package provisioning builds and parses the MQTT topics of the device
// provisioning protocol and drives a registration against the service.
package provisioning

import (
	"fmt"
	"strings"

	"github.com/unklstewy/iothub-device-go/pkg/topic"
)

// Registration methods. Only these two are accepted by the service.
const (
	MethodRegister = "PUT"
	MethodQuery    = "GET"
)

const (
	topicBase = "$dps/registrations/"

	// ResponsePrefix marks every provisioning response topic.
	ResponsePrefix = topicBase + "res/"

	// ResponseSubscription receives registration and query responses.
	ResponseSubscription = ResponsePrefix + "#"
)

// Response property keys, as returned by PropertiesFromResponseTopic.
const (
	PropertyRequestID  = "rid"
	PropertyRetryAfter = "retry-after"
)

var responsePattern = topic.MustCompile("$dps/registrations/res/{status}")

// RegisterSubscribeTopic returns the subscription for provisioning responses.
func RegisterSubscribeTopic() string {
	return ResponseSubscription
}

// RegisterPublishTopic returns the topic a registration request is sent on.
//
// Example: $dps/registrations/PUT/iotdps-register/?$rid=1234
func RegisterPublishTopic(method, requestID string) string {
	return fmt.Sprintf("%s%s/iotdps-register/?$rid=%s", topicBase, method, topic.Encode(requestID))
}

// QueryPublishTopic returns the topic an operation status query is sent on.
//
// Example: $dps/registrations/GET/iotdps-get-operationstatus/?$rid=1234&operationId=5678
func QueryPublishTopic(method, requestID, operationID string) string {
	return fmt.Sprintf("%s%s/iotdps-get-operationstatus/?$rid=%s&operationId=%s",
		topicBase, method, topic.Encode(requestID), topic.Encode(operationID))
}

// IsResponseTopic reports whether topic contains the provisioning response prefix.
func IsResponseTopic(t string) bool {
	return strings.Contains(t, ResponsePrefix)
}

// StatusCodeFromResponseTopic returns the status segment of a response topic.
func StatusCodeFromResponseTopic(t string) (string, error) {
	path, _, _ := topic.SplitQuery(t)
	m, ok := responsePattern.Match(path)
	if !ok {
		return "", fmt.Errorf("%w: not a provisioning response topic: %q", topic.ErrShapeMismatch, t)
	}
	return m.Capture("status")
}

// PropertiesFromResponseTopic decodes the properties of a response topic.
// The request id is reported under "rid"; a repeated key is an error.
func PropertiesFromResponseTopic(t string) (map[string]string, error) {
	path, query, _ := topic.SplitQuery(t)
	if !responsePattern.Matches(path) {
		return nil, fmt.Errorf("%w: not a provisioning response topic: %q", topic.ErrShapeMismatch, t)
	}
	return topic.ExtractRequestProperties(query)
}

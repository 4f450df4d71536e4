package iothub

import (
	"sort"

	"github.com/unklstewy/iothub-device-go/pkg/topic"
)

// ExtractMessageProperties decodes the property segment of a cloud-to-device
// or module input topic into msg.
//
// System properties go to their named fields, the acknowledgment flag is
// dropped and every other key lands in msg.CustomProperties. For input topics
// msg.InputName is set as well. msg must not be shared between goroutines
// while this runs.
func ExtractMessageProperties(t string, msg *Message) error {
	var segment string

	if _, ok := inputPattern.Match(t); ok {
		m, named := inputNamePattern.Match(t)
		if !named {
			return shapeError("input message", t)
		}
		name, err := m.Capture("input")
		if err != nil {
			return err
		}
		msg.InputName = name
		segment = m.Rest
	} else if m, ok := c2dPattern.Match(t); ok {
		segment = m.Rest
	} else {
		return shapeError("message", t)
	}

	props, err := topic.ExtractProperties(segment)
	if err != nil {
		return err
	}

	for key, value := range props {
		switch key {
		case PropertyMessageID:
			msg.MessageID = value
		case PropertyTo:
			msg.To = value
		case PropertyCorrelationID:
			msg.CorrelationID = value
		case PropertyUserID:
			msg.UserID = value
		case PropertyContentType:
			msg.ContentType = value
		case PropertyContentEncoding:
			msg.ContentEncoding = value
		case PropertyExpiryTime:
			msg.ExpiryTimeUTC = value
		case PropertyAck:
			// internal to the hub
		default:
			msg.SetCustomProperty(key, value)
		}
	}

	return nil
}

// EncodeMessageProperties appends the property segment of msg to a telemetry
// topic. System properties come first in a fixed order, then custom
// properties sorted by key.
//
// Example: devices/d1/messages/events/%24.mid=1&%24.ct=application%2Fjson&k=v
func EncodeMessageProperties(msg *Message, base string) string {
	var system [][2]string
	add := func(key, value string) {
		if value != "" {
			system = append(system, [2]string{key, value})
		}
	}
	add(PropertyOutputName, msg.OutputName)
	add(PropertyMessageID, msg.MessageID)
	add(PropertyCorrelationID, msg.CorrelationID)
	add(PropertyUserID, msg.UserID)
	add(PropertyContentType, msg.ContentType)
	add(PropertyContentEncoding, msg.ContentEncoding)
	add(PropertyInterfaceID, msg.InterfaceID)
	add(PropertyExpiryTime, msg.ExpiryTimeUTC)

	keys := make([]string, 0, len(msg.CustomProperties))
	for k := range msg.CustomProperties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	custom := make([][2]string, 0, len(keys))
	for _, k := range keys {
		custom = append(custom, [2]string{k, msg.CustomProperties[k]})
	}

	out := base + topic.EncodeProperties(system)
	if len(system) > 0 && len(custom) > 0 {
		out += topic.PairSeparator
	}
	return out + topic.EncodeProperties(custom)
}

// Package iothub defines the message carried on device-operations topics.
package iothub

// System property keys as they appear, decoded, in a message topic.
const (
	PropertyMessageID       = "$.mid"
	PropertyTo              = "$.to"
	PropertyCorrelationID   = "$.cid"
	PropertyUserID          = "$.uid"
	PropertyContentType     = "$.ct"
	PropertyContentEncoding = "$.ce"
	PropertyExpiryTime      = "$.exp"
	PropertyOutputName      = "$.on"
	PropertyInterfaceID     = "$.ifid"

	// PropertyAck is the hub's internal acknowledgment flag. It is never surfaced.
	PropertyAck = "iothub-ack"
)

// Message is a telemetry, cloud-to-device or module input message.
//
// Inbound system properties are filled by ExtractMessageProperties. Absent
// properties are left empty; the codec never invents a value.
type Message struct {
	// Payload is the raw message body.
	Payload []byte

	// MessageID is the $.mid system property. Mandatory on inbound messages.
	MessageID string
	// To is the $.to system property. Mandatory on inbound messages.
	To string

	CorrelationID   string
	UserID          string
	ContentType     string
	ContentEncoding string
	// ExpiryTimeUTC is kept as sent, an ISO 8601 timestamp.
	ExpiryTimeUTC string

	// OutputName routes module telemetry to an output. Outbound only.
	OutputName string
	// InterfaceID marks telemetry as a plug-and-play security message. Outbound only.
	InterfaceID string

	// InputName is the module input a message arrived on.
	InputName string

	// CustomProperties holds application properties.
	CustomProperties map[string]string
}

// NewMessage creates a message with an initialised custom property map.
func NewMessage(payload []byte) *Message {
	return &Message{
		Payload:          payload,
		CustomProperties: make(map[string]string),
	}
}

// HasMandatoryProperties reports whether the message carries both $.mid and $.to.
func (m *Message) HasMandatoryProperties() bool {
	return m.MessageID != "" && m.To != ""
}

// SetCustomProperty adds an application property, creating the map if needed.
func (m *Message) SetCustomProperty(key, value string) {
	if m.CustomProperties == nil {
		m.CustomProperties = make(map[string]string)
	}
	m.CustomProperties[key] = value
}

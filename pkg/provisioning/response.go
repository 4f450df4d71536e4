package provisioning

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Registration statuses reported by the service.
const (
	StatusUnassigned = "unassigned"
	StatusAssigning  = "assigning"
	StatusAssigned   = "assigned"
	StatusFailed     = "failed"
	StatusDisabled   = "disabled"
)

// ErrRegistrationFailed is returned when the service ends a registration
// without assigning the device.
var ErrRegistrationFailed = errors.New("provisioning: registration failed")

// RegistrationState is the device assignment returned by the service.
type RegistrationState struct {
	RegistrationID string
	DeviceID       string
	AssignedHub    string
	SubStatus      string
	ETag           string
	CreatedAt      string
	UpdatedAt      string
	ErrorCode      string
	ErrorMessage   string
	// Payload is the custom allocation payload, if any.
	Payload json.RawMessage
}

// RegistrationResult is a decoded register or query response body.
type RegistrationResult struct {
	OperationID string
	Status      string
	State       *RegistrationState

	// Set on error bodies, which carry no operation.
	ErrorCode    string
	ErrorMessage string
	TrackingID   string
}

// Terminal reports whether polling should stop.
func (r *RegistrationResult) Terminal() bool {
	switch r.Status {
	case StatusAssigned, StatusFailed, StatusDisabled:
		return true
	}
	return false
}

// Err returns nil for an assigned registration and an error wrapping
// ErrRegistrationFailed for failed or disabled ones.
func (r *RegistrationResult) Err() error {
	switch r.Status {
	case StatusAssigned:
		return nil
	case StatusFailed, StatusDisabled:
		msg := r.ErrorMessage
		if msg == "" && r.State != nil {
			msg = r.State.ErrorMessage
		}
		return fmt.Errorf("%w: status %s: %s", ErrRegistrationFailed, r.Status, msg)
	}
	return nil
}

// ParseRegistrationResponse decodes a register or operation status response.
func ParseRegistrationResponse(body []byte) (*RegistrationResult, error) {
	var content map[string]json.RawMessage
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, fmt.Errorf("provisioning: decode response: %w", err)
	}

	fields, err := stringFields(content, "operationId", "status", "errorCode", "message", "trackingId")
	if err != nil {
		return nil, err
	}
	result := &RegistrationResult{
		OperationID:  fields["operationId"],
		Status:       fields["status"],
		ErrorCode:    fields["errorCode"],
		ErrorMessage: fields["message"],
		TrackingID:   fields["trackingId"],
	}

	stateElem, err := OptionalElement(content, "registrationState", 0)
	if err != nil {
		return nil, err
	}
	if !stateElem.Present() {
		return result, nil
	}

	var state map[string]json.RawMessage
	if err := stateElem.Decode(&state); err != nil {
		return nil, fmt.Errorf("provisioning: decode registration state: %w", err)
	}
	sf, err := stringFields(state,
		"registrationId", "deviceId", "assignedHub", "substatus", "etag",
		"createdDateTimeUtc", "lastUpdatedDateTimeUtc", "errorCode", "errorMessage")
	if err != nil {
		return nil, err
	}
	payload, err := OptionalElement(state, "payload", 0)
	if err != nil {
		return nil, err
	}

	result.State = &RegistrationState{
		RegistrationID: sf["registrationId"],
		DeviceID:       sf["deviceId"],
		AssignedHub:    sf["assignedHub"],
		SubStatus:      sf["substatus"],
		ETag:           sf["etag"],
		CreatedAt:      sf["createdDateTimeUtc"],
		UpdatedAt:      sf["lastUpdatedDateTimeUtc"],
		ErrorCode:      sf["errorCode"],
		ErrorMessage:   sf["errorMessage"],
		Payload:        payload.Raw,
	}
	if result.Status == "" {
		status, err := OptionalElement(state, "status", 0)
		if err != nil {
			return nil, err
		}
		result.Status = status.String()
	}
	return result, nil
}

// stringFields reads each named optional element in its string form.
func stringFields(content map[string]json.RawMessage, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		e, err := OptionalElement(content, name, 0)
		if err != nil {
			return nil, err
		}
		out[name] = e.String()
	}
	return out, nil
}

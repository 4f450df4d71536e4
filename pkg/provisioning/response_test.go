package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assignedBody = `{
  "operationId": "4.79f33f69d8eb3870.da2d9251",
  "status": "assigned",
  "registrationState": {
    "registrationId": "dev-1",
    "createdDateTimeUtc": "2026-10-01T10:00:00.000Z",
    "assignedHub": "hub-1.azure-devices.net",
    "deviceId": "dev-1",
    "status": "assigned",
    "substatus": "initialAssignment",
    "lastUpdatedDateTimeUtc": "2026-10-01T10:00:01.000Z",
    "etag": "IjAwMDAi",
    "payload": {"tier": "gold"}
  }
}`

func TestParseRegistrationResponseAssigned(t *testing.T) {
	r, err := ParseRegistrationResponse([]byte(assignedBody))
	require.NoError(t, err)

	assert.Equal(t, "4.79f33f69d8eb3870.da2d9251", r.OperationID)
	assert.Equal(t, StatusAssigned, r.Status)
	assert.True(t, r.Terminal())
	assert.NoError(t, r.Err())

	require.NotNil(t, r.State)
	assert.Equal(t, "dev-1", r.State.RegistrationID)
	assert.Equal(t, "dev-1", r.State.DeviceID)
	assert.Equal(t, "hub-1.azure-devices.net", r.State.AssignedHub)
	assert.Equal(t, "initialAssignment", r.State.SubStatus)
	assert.Equal(t, "IjAwMDAi", r.State.ETag)
	assert.Equal(t, "2026-10-01T10:00:00.000Z", r.State.CreatedAt)
	assert.Equal(t, "2026-10-01T10:00:01.000Z", r.State.UpdatedAt)
	assert.JSONEq(t, `{"tier":"gold"}`, string(r.State.Payload))
}

func TestParseRegistrationResponseAssigning(t *testing.T) {
	r, err := ParseRegistrationResponse([]byte(`{"operationId":"op-1","status":"assigning"}`))
	require.NoError(t, err)
	assert.Equal(t, "op-1", r.OperationID)
	assert.Equal(t, StatusAssigning, r.Status)
	assert.Nil(t, r.State)
	assert.False(t, r.Terminal())
	assert.NoError(t, r.Err())
}

func TestParseRegistrationResponseFailed(t *testing.T) {
	body := `{"operationId":"op-1","status":"failed","registrationState":{
		"registrationId":"dev-1","status":"failed","errorCode":400209,"errorMessage":"Custom allocation failed"}}`

	r, err := ParseRegistrationResponse([]byte(body))
	require.NoError(t, err)
	assert.True(t, r.Terminal())
	require.NotNil(t, r.State)
	assert.Equal(t, "400209", r.State.ErrorCode)
	assert.Nil(t, r.State.Payload)

	err = r.Err()
	assert.ErrorIs(t, err, ErrRegistrationFailed)
	assert.Contains(t, err.Error(), "Custom allocation failed")
}

func TestParseRegistrationResponseStatusFromState(t *testing.T) {
	r, err := ParseRegistrationResponse([]byte(`{"registrationState":{"status":"disabled"}}`))
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, r.Status)
	assert.ErrorIs(t, r.Err(), ErrRegistrationFailed)
}

func TestParseRegistrationResponseErrorBody(t *testing.T) {
	r, err := ParseRegistrationResponse([]byte(`{"errorCode":401002,"trackingId":"trk-1","message":"Unauthorized"}`))
	require.NoError(t, err)
	assert.Equal(t, "401002", r.ErrorCode)
	assert.Equal(t, "trk-1", r.TrackingID)
	assert.Equal(t, "Unauthorized", r.ErrorMessage)
	assert.Empty(t, r.Status)
}

func TestParseRegistrationResponseInvalid(t *testing.T) {
	for _, body := range []string{"", "not json", `["a"]`, `{"registrationState":"nope"}`} {
		_, err := ParseRegistrationResponse([]byte(body))
		assert.Error(t, err, body)
	}
}

package iothub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/iothub-device-go/pkg/topic"
)

// Identifiers that need encoding are exercised everywhere, even where the
// service would never produce them: ' ', '/' and '$' always, '+' on decode.

const c2dTopic = "devices/fake_device/messages/devicebound/%24.mid=6b822696-f75a-46f5-8b02-0680db65abf5&%24.to=%2Fdevices%2Ffake_device%2Fmessages%2FdeviceBound&iothub-ack=full"

func TestC2DSubscribeTopic(t *testing.T) {
	tests := []struct {
		deviceID string
		want     string
	}{
		{"my_device", "devices/my_device/messages/devicebound/#"},
		{"my$device", "devices/my%24device/messages/devicebound/#"},
		{"my device", "devices/my%20device/messages/devicebound/#"},
		{"my/device", "devices/my%2Fdevice/messages/devicebound/#"},
	}

	for _, tt := range tests {
		t.Run(tt.deviceID, func(t *testing.T) {
			assert.Equal(t, tt.want, C2DSubscribeTopic(tt.deviceID))
		})
	}
}

func TestInputSubscribeTopic(t *testing.T) {
	tests := []struct {
		deviceID string
		moduleID string
		want     string
	}{
		{"my_device", "my_module", "devices/my_device/modules/my_module/inputs/#"},
		{"my$device", "my$module", "devices/my%24device/modules/my%24module/inputs/#"},
		{"my device", "my module", "devices/my%20device/modules/my%20module/inputs/#"},
		{"my/device", "my/module", "devices/my%2Fdevice/modules/my%2Fmodule/inputs/#"},
	}

	for _, tt := range tests {
		t.Run(tt.deviceID, func(t *testing.T) {
			assert.Equal(t, tt.want, InputSubscribeTopic(tt.deviceID, tt.moduleID))
		})
	}
}

func TestStaticSubscribeTopics(t *testing.T) {
	assert.Equal(t, "$iothub/methods/POST/#", MethodSubscribeTopic())
	assert.Equal(t, "$iothub/twin/res/#", TwinResponseSubscribeTopic())
	assert.Equal(t, "$iothub/twin/PATCH/properties/desired/#", TwinPatchSubscribeTopic())
}

func TestTelemetryPublishTopic(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		moduleID string
		want     string
	}{
		{"device", "my_device", "", "devices/my_device/messages/events/"},
		{"module", "my_device", "my_module", "devices/my_device/modules/my_module/messages/events/"},
		{"device dollar", "my$device", "", "devices/my%24device/messages/events/"},
		{"device space", "my device", "", "devices/my%20device/messages/events/"},
		{"device slash", "my/device", "", "devices/my%2Fdevice/messages/events/"},
		{"module dollar", "my$device", "my$module", "devices/my%24device/modules/my%24module/messages/events/"},
		{"module space", "my device", "my module", "devices/my%20device/modules/my%20module/messages/events/"},
		{"module slash", "my/device", "my/module", "devices/my%2Fdevice/modules/my%2Fmodule/messages/events/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TelemetryPublishTopic(tt.deviceID, tt.moduleID))
		})
	}
}

func TestMethodResponsePublishTopic(t *testing.T) {
	tests := []struct {
		name      string
		requestID string
		status    string
		want      string
	}{
		{"success", "1", "200", "$iothub/methods/res/200/?$rid=1"},
		{"failure", "475764", "500", "$iothub/methods/res/500/?$rid=475764"},
		{"reserved", "invalid#request?id", "invalid$status", "$iothub/methods/res/invalid%24status/?$rid=invalid%23request%3Fid"},
		{"space", "invalid request id", "invalid status", "$iothub/methods/res/invalid%20status/?$rid=invalid%20request%20id"},
		{"slash", "invalid/request/id", "invalid/status", "$iothub/methods/res/invalid%2Fstatus/?$rid=invalid%2Frequest%2Fid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MethodResponsePublishTopic(tt.requestID, tt.status))
		})
	}
}

func TestTwinPublishTopic(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		resource  string
		requestID string
		want      string
	}{
		{"get twin", TwinMethodGet, TwinResourceTwin, "3226c2f7-3d30-425c-b83b-0c34335f8220",
			"$iothub/twin/GET/?$rid=3226c2f7-3d30-425c-b83b-0c34335f8220"},
		{"patch twin", TwinMethodPatch, TwinResourceReported, "5002b415-af16-47e9-b89c-8680e01b502f",
			"$iothub/twin/POST/properties/reported/?$rid=5002b415-af16-47e9-b89c-8680e01b502f"},
		{"get reserved", "GET", "/", "invalid$request?id", "$iothub/twin/GET/?$rid=invalid%24request%3Fid"},
		{"get space", "GET", "/", "invalid request id", "$iothub/twin/GET/?$rid=invalid%20request%20id"},
		{"get slash", "GET", "/", "invalid/request/id", "$iothub/twin/GET/?$rid=invalid%2Frequest%2Fid"},
		{"patch reserved", "POST", "/properties/reported/", "invalid$request?id",
			"$iothub/twin/POST/properties/reported/?$rid=invalid%24request%3Fid"},
		{"patch space", "POST", "/properties/reported/", "invalid request id",
			"$iothub/twin/POST/properties/reported/?$rid=invalid%20request%20id"},
		{"patch slash", "POST", "/properties/reported/", "invalid/request/id",
			"$iothub/twin/POST/properties/reported/?$rid=invalid%2Frequest%2Fid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TwinPublishTopic(tt.method, tt.resource, tt.requestID))
		})
	}
}

func TestIsC2DTopic(t *testing.T) {
	assert.True(t, IsC2DTopic(c2dTopic, "fake_device"))

	t.Run("encodes device id", func(t *testing.T) {
		tests := []struct {
			topic    string
			deviceID string
		}{
			{"devices/fake%3Fdevice/messages/devicebound/%24.mid=1&%24.to=%2Fdevices%2Ffake%3Fdevice%2Fmessages%2FdeviceBound", "fake?device"},
			{"devices/fake%20device/messages/devicebound/%24.mid=1&%24.to=%2Fdevices%2Ffake%20device%2Fmessages%2FdeviceBound", "fake device"},
			{"devices/fake%2Fdevice/messages/devicebound/%24.mid=1&%24.to=%2Fdevices%2Ffake%2Fdevice%2Fmessages%2FdeviceBound", "fake/device"},
		}
		for _, tt := range tests {
			assert.True(t, IsC2DTopic(tt.topic, tt.deviceID), tt.deviceID)
		}
	})

	t.Run("not a c2d topic", func(t *testing.T) {
		for _, tp := range []string{
			"not a topic",
			"devices/fake_device/modules/fake_module/inputs/fake_input/%24.mid=1&%24.to=%2Fdevices%2Ffake_device%2Fmessages%2FdeviceBound",
			"devices/fake_device/msgs/devicebound/%24.mid=1",
			"",
		} {
			assert.False(t, IsC2DTopic(tp, "fake_device"), tp)
		}
	})

	t.Run("wrong device id", func(t *testing.T) {
		assert.False(t, IsC2DTopic(c2dTopic, "VERY_fake_device"))
		assert.False(t, IsC2DTopic(c2dTopic, "fake"))
	})

	t.Run("round trip with subscribe builder", func(t *testing.T) {
		for _, id := range []string{"d1", "my/device", "a b", "x+y"} {
			built := C2DSubscribeTopic(id)
			assert.True(t, IsC2DTopic(built, id))
			assert.False(t, IsC2DTopic(built, "VERY_"+id))
		}
	})
}

func TestIsInputTopic(t *testing.T) {
	assert.True(t, IsInputTopic("devices/fake_device/modules/fake_module/inputs/", "fake_device", "fake_module"))

	t.Run("encodes ids", func(t *testing.T) {
		tests := []struct {
			topic    string
			deviceID string
			moduleID string
		}{
			{"devices/fake%3Fdevice/modules/fake%24module/inputs/", "fake?device", "fake$module"},
			{"devices/fake%20device/modules/fake%20module/inputs/", "fake device", "fake module"},
			{"devices/fake%2Fdevice/modules/fake%2Fmodule/inputs/", "fake/device", "fake/module"},
		}
		for _, tt := range tests {
			assert.True(t, IsInputTopic(tt.topic, tt.deviceID, tt.moduleID), tt.topic)
		}
	})

	t.Run("not an input topic", func(t *testing.T) {
		for _, tp := range []string{
			"not a topic",
			c2dTopic,
			"deivces/fake_device/modules/fake_module/inputs/",
		} {
			assert.False(t, IsInputTopic(tp, "fake_device", "fake_module"), tp)
		}
	})

	t.Run("wrong ids", func(t *testing.T) {
		tp := "devices/fake_device/modules/fake_module/inputs/"
		assert.False(t, IsInputTopic(tp, "VERY_fake_device", "fake_module"))
		assert.False(t, IsInputTopic(tp, "fake_device", "VERY_fake_module"))
		assert.False(t, IsInputTopic(tp, "VERY_fake_device", "VERY_fake_module"))
	})
}

func TestIsMethodTopic(t *testing.T) {
	assert.True(t, IsMethodTopic("$iothub/methods/POST/fake_method/?$rid=1"))

	for _, tp := range []string{
		"not a topic",
		c2dTopic,
		"$iothub/mthds/POST/fake_method/?$rid=1",
		"$iothub/methods/POST/",
	} {
		assert.False(t, IsMethodTopic(tp), tp)
	}
}

func TestIsTwinResponseTopic(t *testing.T) {
	assert.True(t, IsTwinResponseTopic("$iothub/twin/res/200/?$rid=d9d7ce4d-3be9-498b-abde-913b81b880e5"))

	for _, tp := range []string{
		"not a topic",
		"$iothub/methods/POST/fake_method/?$rid=1",
		"$iothub/twin/rs/200/?$rid=d9d7ce4d-3be9-498b-abde-913b81b880e5",
	} {
		assert.False(t, IsTwinResponseTopic(tp), tp)
	}
}

func TestIsTwinDesiredPropertyPatchTopic(t *testing.T) {
	assert.True(t, IsTwinDesiredPropertyPatchTopic("$iothub/twin/PATCH/properties/desired/?$version=4"))
	assert.True(t, IsTwinDesiredPropertyPatchTopic("$iothub/twin/PATCH/properties/desired/"))

	for _, tp := range []string{
		"not a topic",
		"$iothub/twin/res/200/?$rid=1",
		"$iothub/twin/PATCH/properties/reported/?$version=4",
		"$iothub/twin/PATCH/properties",
		"$iothub/twin/POST/properties/reported/?$rid=1",
	} {
		assert.False(t, IsTwinDesiredPropertyPatchTopic(tp), tp)
	}
}

func TestPredicatesAreIdempotent(t *testing.T) {
	topics := []string{c2dTopic, "$iothub/twin/res/200/?$rid=1", "$iothub/methods/POST/m/?$rid=1", "junk"}
	for _, tp := range topics {
		assert.Equal(t, IsC2DTopic(tp, "fake_device"), IsC2DTopic(tp, "fake_device"))
		assert.Equal(t, IsMethodTopic(tp), IsMethodTopic(tp))
		assert.Equal(t, IsTwinResponseTopic(tp), IsTwinResponseTopic(tp))
		assert.Equal(t, IsTwinDesiredPropertyPatchTopic(tp), IsTwinDesiredPropertyPatchTopic(tp))
	}
}

func TestInputNameFromTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"plain", "devices/fake_device/modules/fake_module/inputs/fake_input", "fake_input"},
		{"decodes", "devices/fake_device/modules/fake_module/inputs/fake%24input", "fake$input"},
		{"plus", "devices/fake_device/modules/fake_module/inputs/fake%2Binput", "fake+input"},
		{"with properties", "devices/d/modules/m/inputs/in1/%24.mid=1", "in1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InputNameFromTopic(tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, tp := range []string{
		"not a topic",
		"$iothub/methods/POST/fake_method/?$rid=1",
		"devices/fake_device/inputs/fake_input",
	} {
		_, err := InputNameFromTopic(tp)
		assert.ErrorIs(t, err, topic.ErrShapeMismatch, tp)
	}
}

func TestMethodNameFromTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"plain", "$iothub/methods/POST/fake_method/?$rid=1", "fake_method"},
		{"decodes", "$iothub/methods/POST/fake%24method/?$rid=1", "fake$method"},
		{"plus", "$iothub/methods/POST/fake%2Bmethod/?$rid=1", "fake+method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MethodNameFromTopic(tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, tp := range []string{
		"not a topic",
		"devices/fake_device/modules/fake_module/inputs/fake_input",
		"$iothub/methdos/POST/fake_method/?$rid=1",
	} {
		_, err := MethodNameFromTopic(tp)
		assert.ErrorIs(t, err, topic.ErrShapeMismatch, tp)
	}
}

func TestMethodRequestIDFromTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"plain", "$iothub/methods/POST/fake_method/?$rid=1", "1"},
		{"decodes", "$iothub/methods/POST/fake_method/?$rid=fake%24request%2Fid", "fake$request/id"},
		{"plus", "$iothub/methods/POST/m/?$rid=fake%2Brequest%2Bid", "fake+request+id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MethodRequestIDFromTopic(tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, tp := range []string{
		"not a topic",
		"devices/fake_device/modules/fake_module/inputs/fake_input",
		"$iothub/methdos/POST/fake_method/?$rid=1",
	} {
		_, err := MethodRequestIDFromTopic(tp)
		assert.ErrorIs(t, err, topic.ErrShapeMismatch, tp)
	}

	_, err := MethodRequestIDFromTopic("$iothub/methods/POST/fake_method/")
	assert.ErrorIs(t, err, topic.ErrMissingProperty)
}

func TestTwinRequestIDFromTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"bare key", "$iothub/twin/res/200/?rid=1", "1"},
		{"marked key", "$iothub/twin/res/204/?$rid=7&$version=3", "7"},
		{"decodes", "$iothub/twin/res/200/?rid=fake%24request%2Fid", "fake$request/id"},
		{"plus", "$iothub/twin/res/200/?rid=fake%2Brequest%2Bid", "fake+request+id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TwinRequestIDFromTopic(tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, tp := range []string{
		"not a topic",
		"devices/fake_device/modules/fake_module/inputs/fake_input",
		"$iothub/twn/res/200?rid=1",
	} {
		_, err := TwinRequestIDFromTopic(tp)
		assert.ErrorIs(t, err, topic.ErrShapeMismatch, tp)
	}

	_, err := TwinRequestIDFromTopic("$iothub/twin/res/200/?$rid=1&rid=2")
	assert.ErrorIs(t, err, topic.ErrDuplicateProperty)
}

func TestTwinStatusCodeFromTopic(t *testing.T) {
	got, err := TwinStatusCodeFromTopic("$iothub/twin/res/200/?rid=1")
	require.NoError(t, err)
	assert.Equal(t, "200", got)

	for _, tp := range []string{
		"not a topic",
		"devices/fake_device/modules/fake_module/inputs/fake_input",
		"$iothub/twn/res/200?rid=1",
	} {
		_, err := TwinStatusCodeFromTopic(tp)
		assert.ErrorIs(t, err, topic.ErrShapeMismatch, tp)
	}
}

func TestTwinVersionFromTopic(t *testing.T) {
	got, err := TwinVersionFromTopic("$iothub/twin/PATCH/properties/desired/?$version=12")
	require.NoError(t, err)
	assert.Equal(t, "12", got)

	got, err = TwinVersionFromTopic("$iothub/twin/res/204/?$rid=1&$version=5")
	require.NoError(t, err)
	assert.Equal(t, "5", got)

	_, err = TwinVersionFromTopic("$iothub/twin/res/200/?$rid=1")
	assert.ErrorIs(t, err, topic.ErrMissingProperty)

	_, err = TwinVersionFromTopic("$iothub/methods/POST/m/?$rid=1")
	assert.ErrorIs(t, err, topic.ErrShapeMismatch)
}

func TestConnectStrings(t *testing.T) {
	assert.Equal(t, "d1", ClientID("d1", ""))
	assert.Equal(t, "d1/m1", ClientID("d1", "m1"))
	assert.Equal(t, "hub.example.net/d1/?api-version="+APIVersion, Username("hub.example.net", "d1", ""))
	assert.Equal(t, "hub.example.net/d1/m1/?api-version="+APIVersion, Username("hub.example.net", "d1", "m1"))
	assert.Equal(t, "hub.example.net/devices/d1", ResourceURI("hub.example.net", "d1", ""))
	assert.Equal(t, "hub.example.net/devices/d1/modules/m1", ResourceURI("hub.example.net", "d1", "m1"))
}

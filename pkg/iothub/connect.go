package iothub

import "fmt"

// APIVersion is the service API version sent in the MQTT username.
const APIVersion = "2021-04-12"

// ClientID returns the MQTT client id for a device, or a module when moduleID is set.
func ClientID(deviceID, moduleID string) string {
	if moduleID == "" {
		return deviceID
	}
	return deviceID + "/" + moduleID
}

// Username returns the MQTT username the hub expects.
//
// Example: my-hub.azure-devices.net/d1/?api-version=2021-04-12
func Username(hostname, deviceID, moduleID string) string {
	return fmt.Sprintf("%s/%s/?api-version=%s", hostname, ClientID(deviceID, moduleID), APIVersion)
}

// ResourceURI returns the resource a device or module SAS token is scoped to.
//
// Example: my-hub.azure-devices.net/devices/d1/modules/m1
func ResourceURI(hostname, deviceID, moduleID string) string {
	uri := fmt.Sprintf("%s/%s/%s", hostname, DevicesPrefix, deviceID)
	if moduleID != "" {
		uri += "/modules/" + moduleID
	}
	return uri
}

package provisioning

import "fmt"

const (
	// APIVersion is the service API version sent in the MQTT username.
	APIVersion = "2019-03-31"

	// GlobalEndpoint is the public provisioning host.
	GlobalEndpoint = "global.azure-devices-provisioning.net"
)

// Username returns the MQTT username for a registration.
//
// Example: 0ne00000001/registrations/dev-1/api-version=2019-03-31
func Username(idScope, registrationID string) string {
	return fmt.Sprintf("%s/registrations/%s/api-version=%s", idScope, registrationID, APIVersion)
}

// ResourceURI returns the resource a registration SAS token is scoped to.
func ResourceURI(idScope, registrationID string) string {
	return idScope + "/registrations/" + registrationID
}

package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Endpoint is an Android device advertising wireless debugging on the
// local network.
type Endpoint struct {
	// Instance is the mDNS instance name (e.g., "adb-R58M123ABC-Xy7qZk")
	Instance string

	// Serial is the hardware serial embedded in the instance name, if any
	Serial string

	// Hostname is the mDNS hostname (e.g., "Android.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the dynamically assigned adb TLS port
	Port int

	// Metadata contains the TXT record data
	Metadata map[string]string

	DiscoveredAt time.Time
}

// Address returns the host:port the adb server should connect to.
func (e *Endpoint) Address() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// String returns a human-readable description of the endpoint
func (e *Endpoint) String() string {
	name := e.Serial
	if name == "" {
		name = e.Instance
	}
	return fmt.Sprintf("Android device %s at %s", name, e.Address())
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (e *Endpoint) GetMetadata(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Package discovery finds Android devices that advertise wireless debugging
// over multicast DNS.
//
// A paired device with wireless debugging enabled announces the
// "_adb-tls-connect._tcp" service on a dynamically chosen port. The scanner
// browses for that service for a bounded window and returns one Endpoint per
// advertised address. Connecting the adb server to each endpoint (adb
// "host:connect") makes the device show up in the regular device list.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	endpoints, err := scanner.Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, ep := range endpoints {
//	    _ = adbClient.Connect(ctx, ep.Address())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
// - Pairing is not handled here; the device must already trust this host
package discovery

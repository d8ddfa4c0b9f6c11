// ABOUTME: mDNS service discovery package
// ABOUTME: Discover and advertise voice mixers on the local network
// Package discovery provides mDNS service discovery for voice mixers.
//
// Mixers advertise _resonate-mixer._tcp with their websocket path in the
// TXT record; clients browse for them before connecting.
//
// Example:
//
//	server, err := discovery.Discover(ctx, 3*time.Second)
//	if server != nil {
//	    fmt.Printf("Found: %s at %s\n", server.Name, server.Addr())
//	}
package discovery

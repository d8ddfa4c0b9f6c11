// ABOUTME: Build and product identity for the voice client
// ABOUTME: Reported to the mixer in the client/hello device info
package version

const (
	// Version is the client release
	Version = "0.3.0"
	// Product is the product name sent to mixers
	Product = "Resonate Voice"
	// Manufacturer identifies who built the client
	Manufacturer = "Resonate"
)

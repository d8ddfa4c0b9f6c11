// ABOUTME: JSON control message definitions for the mixer session
// ABOUTME: Handshake and goodbye messages wrapped in a typed envelope
package protocol

// Version is the session protocol version exchanged in the hello messages
const Version = 1

// Message types carried in the envelope
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeClientGoodbye = "client/goodbye"
	TypeServerGoodbye = "server/goodbye"
)

// Message is the top-level wrapper for all control messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to open a session
type ClientHello struct {
	ClientID   string      `json:"client_id"`
	SessionID  string      `json:"session_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
	// Format is the wire format the client sends and expects back
	Format AudioFormat `json:"format"`
	// EchoToServer tells the mixer the client will ask for its own audio back
	EchoToServer bool `json:"echo_to_server"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// AudioFormat describes the raw PCM wire format
type AudioFormat struct {
	Codec        string `json:"codec"`
	Channels     int    `json:"channels"`
	SampleRate   int    `json:"sample_rate"`
	BitDepth     int    `json:"bit_depth"`
	FrameSamples int    `json:"frame_samples"`
}

// ServerHello is the mixer's response to client/hello
type ServerHello struct {
	ServerID  string      `json:"server_id"`
	Name      string      `json:"name"`
	Version   int         `json:"version"`
	SessionID string      `json:"session_id"`
	Format    AudioFormat `json:"format"`
}

// ClientGoodbye is sent before a client disconnects
type ClientGoodbye struct {
	Reason string `json:"reason"`
}

// ServerGoodbye is sent before the mixer drops a client
type ServerGoodbye struct {
	Reason string `json:"reason"`
}

// ABOUTME: Mixer wire protocol package
// ABOUTME: Defines binary audio packets, control messages and the WebSocket client
// Package protocol implements the voice mixer wire protocol.
//
// Audio travels as binary websocket messages whose first two bytes are the
// packet type and layout version; all fields are little-endian. Control
// messages are JSON envelopes used for the session handshake.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "localhost:8930"})
//	err := client.Connect(ctx)
//	err = client.Send(protocol.SilentFrame{Sequence: 1, SampleCount: 256}.Encode())
package protocol

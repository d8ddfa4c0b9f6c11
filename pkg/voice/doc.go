// Package voice is the audio side of a voice chat client.
//
// A Client captures microphone audio, converts it to the 24kHz network
// format in fixed frames of 256 samples per channel, conditions it (input
// gain, injected test sources, noise gate) and sends one packet per frame
// to the mixer. Mixed audio coming back is sequenced by a jitter buffer,
// converted to the output device format, optionally reverberated and
// pulled by the output device through a Renderer.
//
// Devices are reached through a device.Provider so the client runs the
// same on PortAudio, oto or a test fake.
package voice

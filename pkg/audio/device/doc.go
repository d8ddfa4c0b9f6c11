// ABOUTME: Audio device package for capture and playback endpoints
// ABOUTME: Provides the Provider contract plus oto and PortAudio backends
// Package device abstracts the platform audio subsystem.
//
// A Provider enumerates named devices, answers format queries and opens
// callback-driven streams. Two backends are included:
//   - OtoProvider: render only, system default output
//   - PortAudioProvider: capture and render (build with -tags portaudio)
//
// Ring is the sample FIFO used between device callbacks and the rest of the
// pipeline, and Watcher polls device lists for hot-plug changes.
//
// Example:
//
//	p := device.NewOtoProvider(48000, 2)
//	dev, _ := p.DefaultDevice(device.ModeOutput)
//	stream, err := p.OpenOutput(dev, audio.NetworkFormat(2).WithSampleRate(48000), 0, reader)
//	err = stream.Start()
package device

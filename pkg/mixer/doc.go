// Package mixer implements a development loopback mixer.
//
// Each connected client hears only itself: microphone packets sent with
// echo come back as mixed audio, everything else comes back as silence.
// It is meant for exercising voice clients without a real mixing service.
package mixer

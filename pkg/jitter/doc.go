// Package jitter implements the receive-side jitter buffer for mixed audio.
//
// A Stream admits sequenced network frames, fills gaps from lost packets,
// drops late packets and excess frames, and converts every admitted frame to
// the output device format through a Processor. The output path pops device
// samples with best-effort semantics. In dynamic mode the desired depth grows
// after repeated starves and shrinks again after a quiet reduction window.
package jitter

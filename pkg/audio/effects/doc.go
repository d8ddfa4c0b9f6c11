// Package effects provides the capture-side sample processors: gain stages,
// synthetic source generators (sine tone, pink noise) and the noise gate.
//
// All processors work in place on interleaved signed 16-bit frames and are
// meant to be owned by a single capture path.
package effects

// Package reverb provides the reverb stage applied to local echo and to audio
// received from the mixer.
//
// Two provenances configure it: script options set by the user, and zone
// options signaled by the server environment. The zone wins while the server
// reports reverb. Switching provenance rebuilds both engines; parameter changes
// within a provenance retune them.
package reverb

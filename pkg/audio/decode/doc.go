// ABOUTME: Audio decoder package
// ABOUTME: Provides the Decoder interface, raw PCM decoding and MP3 clip loading
// Package decode turns encoded audio into 16-bit PCM frames.
//
// MP3 is used for sound clips played through local injectors and is decoded
// whole; the decoded bytes go through the PCM decoder.
//
// Example:
//
//	clip, err := decode.LoadMP3("connect.mp3")
//	network, err := clip.ToNetwork()
package decode

// ABOUTME: Audio resampling package built on go-audio-resampler
// ABOUTME: Converts audio between different sample rates and channel counts
// Package resample provides sample rate and channel count conversion for 16-bit PCM.
//
// Rate conversion runs through a streaming polyphase FIR engine from
// github.com/tphakala/go-audio-resampler. Each call returns exactly the
// requested number of frames; engine latency is absorbed by padding.
//
// A Context exists only for format pairs whose sample rates differ. When the
// rates match, Process performs channel conversion (or a plain copy) with a nil
// context.
//
// Example:
//
//	ctx, err := resample.ForFormats(deviceFormat, networkFormat)
//	if err != nil {
//	    return err
//	}
//	out := resample.Process(ctx, captured, deviceFormat, networkFormat)
package resample

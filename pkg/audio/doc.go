// Package audio provides audio input utilities.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - source: streaming chunk sources (raw PCM, WAV, RTP) with resampling
//
// Example usage:
//
//	import "github.com/lumora-health/breathsense/pkg/audio/source"
//
//	src, err := source.NewWAV(f, source.Config{})
//	for {
//	    chunk, err := src.ReadChunk()
//	    ...
//	}
package audio

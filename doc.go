// Package watermark embeds and extracts robust, inaudible watermarks in PCM
// audio. A 128-bit payload is spread over the signal spectrum so that it
// survives common distortions such as resampling, transcoding and cropping
// while remaining perceptually transparent.
//
// The package orchestrates the end-to-end flows: Add mixes a message into a
// WAV file, Get searches a file for watermarks and decodes every pattern it
// finds, and Cmp additionally scores the result against an expected message.
// All processing happens at a fixed internal rate of 44100 Hz; other input
// rates are converted on the way in and back out.
//
// An optional 128-bit key makes the spectral layout of the watermark
// unpredictable: without the key, embedded messages cannot be located or
// decoded.
package watermark

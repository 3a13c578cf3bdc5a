// Package wave loads and saves PCM WAV files as interleaved float32 samples.
package wave

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// Chunk size for streaming reads (samples per channel).
	// Larger buffers reduce I/O overhead and improve cache utilization.
	readChunkSize = 65536

	// Supported PCM sample formats
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	// Full-scale values per bit depth
	maxInt16 = 32767.0
	maxInt24 = 8388607.0
	maxInt32 = 2147483647.0

	wavAudioFormatPCM = 1
)

// ErrUnsupportedFormat indicates a WAV file with a bit depth this package
// cannot process.
var ErrUnsupportedFormat = errors.New("unsupported WAV format")

// Buffer holds decoded audio: interleaved float32 samples in nominal range
// [-1, 1] plus the stream attributes needed to write them back.
type Buffer struct {
	Samples  []float32
	Channels int
	Rate     int
	BitDepth int
}

// NumValues returns the total sample count across all channels.
func (b *Buffer) NumValues() int {
	return len(b.Samples)
}

// NumFrames returns the per-channel sample count.
func (b *Buffer) NumFrames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Seconds returns the duration in whole seconds.
func (b *Buffer) Seconds() int {
	if b.Rate == 0 || b.Channels == 0 {
		return 0
	}
	return b.NumFrames() / b.Rate
}

// maxValue returns the full-scale value for the given bit depth.
func maxValue(bitDepth int) (float64, error) {
	switch bitDepth {
	case bitsPerSample16:
		return maxInt16, nil
	case bitsPerSample24:
		return maxInt24, nil
	case bitsPerSample32:
		return maxInt32, nil
	default:
		return 0, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}
}

// Load reads a PCM WAV file into an interleaved float32 buffer.
func Load(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	format := decoder.Format()
	channels := format.NumChannels
	bitDepth := int(decoder.BitDepth)

	maxVal, err := maxValue(bitDepth)
	if err != nil {
		return nil, err
	}
	invMaxVal := float32(1.0 / maxVal)

	buf := &Buffer{
		Channels: channels,
		Rate:     format.SampleRate,
		BitDepth: bitDepth,
	}

	intBuffer := &audio.IntBuffer{
		Data:   make([]int, readChunkSize*channels),
		Format: format,
	}
	for {
		n, err := decoder.PCMBuffer(intBuffer)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read audio data: %w", err)
		}
		if n == 0 {
			break
		}
		// n counts sample values across all channels
		for _, v := range intBuffer.Data[:n] {
			buf.Samples = append(buf.Samples, float32(v)*invMaxVal)
		}
	}

	return buf, nil
}

// Save writes an interleaved float32 buffer as a PCM WAV file, clipping to
// [-1, 1] and scaling to the buffer's declared bit depth.
func Save(path string, buf *Buffer) (err error) {
	maxVal, err := maxValue(buf.BitDepth)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	encoder := wav.NewEncoder(f, buf.Rate, buf.BitDepth, buf.Channels, wavAudioFormatPCM)

	format := &audio.Format{NumChannels: buf.Channels, SampleRate: buf.Rate}
	chunk := readChunkSize * buf.Channels
	data := make([]int, 0, chunk)

	for start := 0; start < len(buf.Samples); start += chunk {
		end := min(start+chunk, len(buf.Samples))
		data = data[:0]
		for _, s := range buf.Samples[start:end] {
			v := float64(s)
			if v > 1.0 {
				v = 1.0
			} else if v < -1.0 {
				v = -1.0
			}
			data = append(data, int(v*maxVal))
		}
		if err := encoder.Write(&audio.IntBuffer{
			Data:           data,
			Format:         format,
			SourceBitDepth: buf.BitDepth,
		}); err != nil {
			return fmt.Errorf("failed to write audio data: %w", err)
		}
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}

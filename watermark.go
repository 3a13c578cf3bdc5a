package watermark

import (
	"fmt"
	"math"

	"github.com/tphakala/go-audio-watermark/internal/mark"
	"github.com/tphakala/go-audio-watermark/internal/resample"
	"github.com/tphakala/go-audio-watermark/internal/wave"
)

// ErrUnsupportedRate indicates a sample rate conversion neither resampler
// kernel can perform.
var ErrUnsupportedRate = resample.ErrUnsupportedRate

// minPeak is the floor of the peak search during volume normalization.
const minPeak = 1e-6

// syncMatchTolerance is the sample distance within which a sync hit counts
// as matching an expected block position.
const syncMatchTolerance = mark.FrameSize / 2

// AddResult reports the outcome of embedding a watermark.
type AddResult struct {
	// MessageBits is the full payload after cyclic extension.
	MessageBits []int

	// Seconds, SampleRate and Channels describe the input file.
	Seconds    int
	SampleRate int
	Channels   int

	// DataBlocks is the number of complete watermark blocks embedded.
	DataBlocks int

	// VolumeNorm is the rescale factor applied to avoid clipping (1.0 when
	// no rescaling was needed).
	VolumeNorm float64

	// SNR is the signal-to-watermark ratio in dB, when requested.
	SNR     float64
	HaveSNR bool
}

// Pattern is one decoded watermark message.
type Pattern struct {
	// Seconds is the time offset of the block in the file.
	Seconds int

	// Bits is the decoded payload.
	Bits []int

	// Quality is the sync quality of the block (averaged for combined
	// patterns).
	Quality float64

	// DecodeError estimates the code bit error rate seen by the decoder.
	DecodeError float64

	// Block is the block type label: "A", "B" or "AB".
	Block string

	// All marks the aggregate pattern decoded from every block found.
	All bool
}

// DecodeResult reports the outcome of a watermark search.
type DecodeResult struct {
	Patterns []Pattern

	// MatchCount of TotalCount patterns matched the expected message
	// (Cmp only).
	MatchCount int
	TotalCount int

	// SyncMatch counts the expected block positions that have a located
	// sync block within half a frame (Cmp only); SyncCount is the number of
	// sync blocks located.
	SyncMatch int
	SyncCount int
}

// Add embeds a message into a WAV file.
func Add(cfg Config, inPath, outPath, message string) (*AddResult, error) {
	bits, err := ParseMessage(message)
	if err != nil {
		return nil, err
	}
	bits, err = expandMessage(bits)
	if err != nil {
		return nil, err
	}

	orig, err := wave.Load(inPath)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", inPath, err)
	}

	result := &AddResult{
		MessageBits: bits,
		Seconds:     orig.Seconds(),
		SampleRate:  orig.Rate,
		Channels:    orig.Channels,
	}

	// convert to the mark rate, pad to whole frames
	inSignal := orig.Samples
	if orig.Rate != MarkSampleRate {
		inSignal, err = resample.Resample(orig.Samples, orig.Channels, orig.Rate, MarkSampleRate)
		if err != nil {
			return nil, err
		}
	}
	frameValues := orig.Channels * mark.FrameSize
	for len(inSignal)%frameValues != 0 {
		inSignal = append(inSignal, 0)
	}

	delta, dataBlocks := mark.EmbedDelta(cfg.params(), inSignal, orig.Channels, bits)
	result.DataBlocks = dataBlocks

	// convert the watermark back to the original rate
	if orig.Rate != MarkSampleRate {
		delta, err = resample.Resample(delta, orig.Channels, MarkSampleRate, orig.Rate)
		if err != nil {
			return nil, err
		}
	}
	// the padded processing buffer is longer than the input; never let the
	// watermark change the output length
	if len(delta) < len(orig.Samples) {
		delta = append(delta, make([]float32, len(orig.Samples)-len(delta))...)
	}
	delta = delta[:len(orig.Samples)]

	if cfg.ReportSNR {
		var deltaPower, signalPower float64
		for i, s := range orig.Samples {
			deltaPower += float64(delta[i]) * float64(delta[i])
			signalPower += float64(s) * float64(s)
		}
		deltaPower /= float64(len(orig.Samples))
		signalPower /= float64(len(orig.Samples))

		result.SNR = 10 * math.Log10(signalPower/deltaPower)
		result.HaveSNR = true
	}

	// Samples are normally in [-1, 1] already, but some sources are not
	// fully normalized; for volume normalization treat them as if they had
	// been clipped, the final clipping happens while saving.
	maxValue := minPeak
	for i, s := range orig.Samples {
		x := float64(s)
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		if v := math.Abs(x + float64(delta[i])); v > maxValue {
			maxValue = v
		}
	}

	// scale (samples + watermark) down if necessary to avoid clipping
	scale := math.Min(1.0/maxValue, 1.0)
	result.VolumeNorm = scale

	out := &wave.Buffer{
		Samples:  make([]float32, len(orig.Samples)),
		Channels: orig.Channels,
		Rate:     orig.Rate,
		BitDepth: orig.BitDepth,
	}
	for i, s := range orig.Samples {
		out.Samples[i] = float32((float64(s) + float64(delta[i])) * scale)
	}

	if err := wave.Save(outPath, out); err != nil {
		return nil, fmt.Errorf("error saving %s: %w", outPath, err)
	}
	return result, nil
}

// Get searches a WAV file for watermarks and decodes every pattern found.
func Get(cfg Config, inPath string) (*DecodeResult, error) {
	return decodeFile(cfg, inPath, nil)
}

// Cmp decodes like Get and scores the result against an expected message.
func Cmp(cfg Config, inPath, expected string) (*DecodeResult, error) {
	bits, err := ParseMessage(expected)
	if err != nil {
		return nil, err
	}
	return decodeFile(cfg, inPath, bits)
}

func decodeFile(cfg Config, inPath string, expected []int) (*DecodeResult, error) {
	buf, err := wave.Load(inPath)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", inPath, err)
	}

	samples := buf.Samples
	if buf.Rate != MarkSampleRate {
		samples, err = resample.Resample(buf.Samples, buf.Channels, buf.Rate, MarkSampleRate)
		if err != nil {
			return nil, err
		}
	}

	p := cfg.params()
	core := mark.Decode(p, samples, buf.Channels)

	result := &DecodeResult{
		TotalCount: len(core.Patterns),
		SyncCount:  len(core.SyncScores),
	}
	for _, pattern := range core.Patterns {
		seconds := pattern.Score.Index / MarkSampleRate
		if pattern.All {
			seconds = 0
		}
		result.Patterns = append(result.Patterns, Pattern{
			Seconds:     seconds,
			Bits:        pattern.Bits,
			Quality:     pattern.Score.Quality,
			DecodeError: pattern.DecodeError,
			Block:       pattern.Score.Type.String(),
			All:         pattern.All,
		})
		if expected != nil && matchesExpected(pattern.Bits, expected) {
			result.MatchCount++
		}
	}

	if expected != nil {
		// count sync markers at the block positions Add would have used
		blockStep := mark.NewLayout(p).BlockFrameCount() * mark.FrameSize
		expect0 := mark.FramesPadStart * mark.FrameSize
		expectEnd := core.FrameCount * mark.FrameSize

		for expectIndex := expect0; expectIndex+blockStep < expectEnd; expectIndex += blockStep {
			for _, score := range core.SyncScores {
				if abs(score.Index+cfg.TestCut-expectIndex) < syncMatchTolerance {
					result.SyncMatch++
					break
				}
			}
		}
	}
	return result, nil
}

// matchesExpected compares decoded bits against the expected message,
// repeating the expected bits cyclically when it is shorter.
func matchesExpected(bits, expected []int) bool {
	for i, b := range bits {
		if b != expected[i%len(expected)] {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// GenTest extracts a test excerpt long enough for three watermark blocks
// with a 128-bit message (2:45 of audio).
func GenTest(inPath, outPath string) error {
	const testSeconds = 165

	buf, err := wave.Load(inPath)
	if err != nil {
		return fmt.Errorf("error loading %s: %w", inPath, err)
	}

	numValues := testSeconds * buf.Channels * buf.Rate
	if len(buf.Samples) < numValues {
		return fmt.Errorf("input file %s too short", inPath)
	}

	out := &wave.Buffer{
		Samples:  buf.Samples[:numValues],
		Channels: buf.Channels,
		Rate:     buf.Rate,
		BitDepth: buf.BitDepth,
	}
	if err := wave.Save(outPath, out); err != nil {
		return fmt.Errorf("error saving %s: %w", outPath, err)
	}
	return nil
}

// CutStart drops the first start samples (per channel) of a file, for crop
// robustness tests.
func CutStart(inPath, outPath string, start int) error {
	buf, err := wave.Load(inPath)
	if err != nil {
		return fmt.Errorf("error loading %s: %w", inPath, err)
	}

	cut := min(start*buf.Channels, len(buf.Samples))
	out := &wave.Buffer{
		Samples:  buf.Samples[cut:],
		Channels: buf.Channels,
		Rate:     buf.Rate,
		BitDepth: buf.BitDepth,
	}
	if err := wave.Save(outPath, out); err != nil {
		return fmt.Errorf("error saving %s: %w", outPath, err)
	}
	return nil
}

// Package audio provides the PCM conversions, framing and playback
// scheduling used by the voice session.
//
// Everything on the wire is 16-bit signed little-endian mono PCM. Devices
// and the playback timeline work on normalized float32 samples in [-1, 1].
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// InputSampleRate is the microphone capture rate sent to the model.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of the model's spoken audio.
	OutputSampleRate = 24000
	// InputFrameSize is the number of samples per captured frame.
	InputFrameSize = 4096
	// BytesPerSample for 16-bit PCM.
	BytesPerSample = 2
	// Channels is always mono.
	Channels = 1
)

// MIMEType returns the media type tag for raw PCM at rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// FloatToPCM16 converts normalized samples to 16-bit little-endian PCM.
// Samples are scaled by 32768 and clamped to the int16 range.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := float64(s) * 32768
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat converts 16-bit little-endian PCM to normalized samples.
// A trailing odd byte is ignored.
func PCM16ToFloat(data []byte) []float32 {
	n := len(data) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// EncodeBase64 encodes raw bytes with standard base64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes a standard base64 payload.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return b, nil
}

// BytesToFloat32 reinterprets little-endian IEEE-754 bytes as samples.
func BytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// Float32ToBytes writes samples into dst as little-endian IEEE-754.
// It returns the number of samples written.
func Float32ToBytes(dst []byte, samples []float32) int {
	n := len(dst) / 4
	if len(samples) < n {
		n = len(samples)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(samples[i]))
	}
	return n
}

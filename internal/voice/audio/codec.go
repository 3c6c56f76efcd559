// Package audio converts telephony media frames to and from the audio
// encoding declared on the realtime session.
package audio

import (
	"encoding/base64"
	"fmt"

	"github.com/zaf/g711"
)

// Session audio formats. The same format is declared for session input and
// output; frames are never mixed across formats within one call.
const (
	FormatG711Ulaw = "g711_ulaw"
	FormatPCM16    = "pcm16"
)

// Telephony media streams carry mu-law at 8 kHz; the realtime pcm16 format
// runs at 24 kHz, so the pcm16 path resamples by a factor of 3.
const pcmResampleFactor = 3

// Codec translates between base64 mu-law wire frames on the caller leg and
// raw audio chunks in the session's declared format. Stateless and safe for
// concurrent use.
type Codec struct {
	format string
}

func New(format string) (*Codec, error) {
	if format != FormatG711Ulaw && format != FormatPCM16 {
		return nil, fmt.Errorf("unsupported audio format: %s", format)
	}
	return &Codec{format: format}, nil
}

// Format returns the session audio format the codec was built for.
func (c *Codec) Format() string {
	return c.format
}

// Decode converts a base64 caller media payload into a raw audio chunk in
// the session format. Malformed base64 is a decode error; the caller drops
// the frame.
func (c *Codec) Decode(wireFrame string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wireFrame)
	if err != nil {
		return nil, fmt.Errorf("failed to decode media payload: %w", err)
	}
	if c.format == FormatG711Ulaw {
		return raw, nil
	}
	pcm8k := g711.DecodeUlaw(raw)
	return upsamplePCM(pcm8k, pcmResampleFactor), nil
}

// Encode converts a raw audio chunk in the session format into a base64
// mu-law payload for the caller leg.
func (c *Codec) Encode(chunk []byte) string {
	if c.format == FormatG711Ulaw {
		return base64.StdEncoding.EncodeToString(chunk)
	}
	pcm8k := downsamplePCM(chunk, pcmResampleFactor)
	return base64.StdEncoding.EncodeToString(g711.EncodeUlaw(pcm8k))
}

// downsamplePCM decimates 16-bit little-endian PCM by taking every Nth sample.
func downsamplePCM(pcm []byte, factor int) []byte {
	samples := len(pcm) / 2
	downsampled := make([]byte, 0, (samples/factor+1)*2)

	for i := 0; i+1 < len(pcm); i += 2 * factor {
		downsampled = append(downsampled, pcm[i], pcm[i+1])
	}

	return downsampled
}

// upsamplePCM raises the sample rate of 16-bit little-endian PCM by linear
// interpolation between adjacent samples.
func upsamplePCM(pcm []byte, factor int) []byte {
	samples := len(pcm) / 2
	if samples == 0 {
		return nil
	}
	upsampled := make([]byte, samples*factor*2)

	for i := 0; i < samples; i++ {
		current := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		next := current
		if i+1 < samples {
			next = int16(pcm[(i+1)*2]) | int16(pcm[(i+1)*2+1])<<8
		}

		for j := 0; j < factor; j++ {
			interpolated := int16(int32(current) + (int32(next)-int32(current))*int32(j)/int32(factor))
			idx := (i*factor + j) * 2
			upsampled[idx] = byte(interpolated)
			upsampled[idx+1] = byte(interpolated >> 8)
		}
	}

	return upsampled
}

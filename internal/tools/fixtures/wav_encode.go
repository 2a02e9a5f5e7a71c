package fixtures

import (
	"bytes"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV wraps raw mono PCM16 samples in a minimal WAV container, the
// same go-audio/wav encoder used by the voice package's test fixtures.
func encodeWAV(pcm []int16, sampleRateHz int) ([]byte, error) {
	var buf bytes.Buffer
	enc := wav.NewEncoder(&buf, sampleRateHz, 16, 1, 1)

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRateHz},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

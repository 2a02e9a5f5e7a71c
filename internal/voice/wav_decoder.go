package voice

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

// WAVDecoder is the reference ContainerDecoder: it treats the accumulated
// container bytes as a single growing WAV file and decodes it wholesale on
// every call, which is exactly the "decode the accumulated buffer" behavior
// the spec describes for VAD segmentation. A production deployment speaking
// the browser's actual WEBM/Opus container would implement ContainerDecoder
// against a real Opus decoder instead; none is available in this module's
// dependency set, so tests and local wiring exercise the pipeline against
// WAV audio framed the same way.
type WAVDecoder struct{}

func (WAVDecoder) Decode(container []byte) ([]int16, error) {
	if len(container) == 0 {
		return nil, nil
	}
	dec := wav.NewDecoder(bytes.NewReader(container))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding WAV container: %w", err)
	}
	pcm := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = int16(v)
	}
	return pcm, nil
}

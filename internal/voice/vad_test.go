package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	pcm []int16
	err error
}

func (f *fakeDecoder) Decode(_ []byte) ([]int16, error) {
	return f.pcm, f.err
}

func loudSamples(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = 5000
	}
	return out
}

func quietSamples(n int) []int16 {
	return make([]int16, n)
}

func TestRecorderYieldsOnlyNewPCM(t *testing.T) {
	dec := &fakeDecoder{pcm: loudSamples(10)}
	r := NewRecorder(dec)

	shouldDecode := r.Append([]byte("a"))
	assert.False(t, shouldDecode)
	shouldDecode = r.Append([]byte("b"))
	require.True(t, shouldDecode)

	fresh, err := r.Decode()
	require.NoError(t, err)
	assert.Len(t, fresh, 10)

	dec.pcm = loudSamples(15)
	r.Append([]byte("c"))
	shouldDecode = r.Append([]byte("d"))
	require.True(t, shouldDecode)
	fresh, err = r.Decode()
	require.NoError(t, err)
	assert.Len(t, fresh, 5, "only the 5 newly decoded samples should be returned")
}

func TestVADSegmenterListeningToHearing(t *testing.T) {
	v := NewVADSegmenter()
	next, eos := v.Feed(StateListening, loudSamples(200))
	assert.Equal(t, StateHearing, next)
	assert.False(t, eos)
	assert.Len(t, v.Utterance(), 200)
}

func TestVADSegmenterListeningIgnoresSilence(t *testing.T) {
	v := NewVADSegmenter()
	next, eos := v.Feed(StateListening, quietSamples(200))
	assert.Empty(t, next)
	assert.False(t, eos)
}

func TestVADSegmenterDeclaresEndOfSpeech(t *testing.T) {
	v := NewVADSegmenter()
	v.Feed(StateListening, loudSamples(sampleRateHz)) // 1s of speech, now Hearing

	// Two consecutive silent windows, each long enough that the utterance
	// stays above the minimum duration.
	_, eos := v.Feed(StateHearing, quietSamples(1000))
	assert.False(t, eos)
	_, eos = v.Feed(StateHearing, quietSamples(1000))
	assert.True(t, eos)
}

func TestVADSegmenterEchoSkipPending(t *testing.T) {
	v := NewVADSegmenter()
	v.now = func() time.Time { return time.Unix(0, 0) }
	v.StartEchoCooldown()

	assert.True(t, v.InCooldown())

	v.now = func() time.Time { return time.Unix(0, 0).Add(EchoCooldown + time.Millisecond) }
	assert.False(t, v.InCooldown())

	// The first decode after cooldown is still discarded by the one-shot flag.
	next, eos := v.Feed(StateListening, loudSamples(200))
	assert.Empty(t, next)
	assert.False(t, eos)
	assert.Empty(t, v.Utterance())
}

func TestSplitSegments(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"single sentence", "Hello there.", []string{"Hello there."}},
		{"multiple sentences", "Hi! How are you? Good.", []string{"Hi!", "How are you?", "Good."}},
		{"no punctuation", "just a fragment with no terminator", []string{"just a fragment with no terminator"}},
		{"drops short fragment", "Hello there. K", []string{"Hello there."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, splitSegments(tc.in))
		})
	}
}

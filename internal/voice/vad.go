package voice

import (
	"math"
	"strings"
	"time"
)

// ContainerDecoder turns the accumulated container byte stream into the
// full decoded PCM so far. The engine only ever cares about the tail beyond
// what it already consumed (Recorder.lastDecodedLen) — the interface is
// kept this shallow so any real container codec can sit behind it without
// the recorder knowing about frame boundaries or codec state.
type ContainerDecoder interface {
	Decode(container []byte) (pcm []int16, err error)
}

// Recorder accumulates inbound container bytes and reports only the newly
// decoded PCM on each successful decode (spec's "last_decoded_samples").
type Recorder struct {
	decoder        ContainerDecoder
	container      []byte
	lastDecodedLen int
	frameCount     int
}

func NewRecorder(decoder ContainerDecoder) *Recorder {
	return &Recorder{decoder: decoder}
}

// Append adds one inbound binary audio frame (already stripped of its
// frameTag) and reports whether this frame completes a decode interval.
func (r *Recorder) Append(frame []byte) (shouldDecode bool) {
	r.container = append(r.container, frame...)
	r.frameCount++
	return r.frameCount%DecodeInterval == 0
}

// Decode runs the container decoder over everything accumulated so far and
// returns only the samples produced since the last successful decode.
func (r *Recorder) Decode() ([]int16, error) {
	full, err := r.decoder.Decode(r.container)
	if err != nil {
		return nil, err
	}
	if len(full) <= r.lastDecodedLen {
		return nil, nil
	}
	fresh := full[r.lastDecodedLen:]
	r.lastDecodedLen = len(full)
	return fresh, nil
}

// Reset drops all buffered container bytes and decode progress (mic_stop).
func (r *Recorder) Reset() {
	r.container = nil
	r.lastDecodedLen = 0
	r.frameCount = 0
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

func isSpeech(samples []int16) bool {
	return rms(samples) > SpeechRMSThreshold
}

// VADSegmenter tracks the Listening/Hearing utterance buffer and the echo
// suppression window, independent of the outer session state machine so it
// can be tested without a websocket.
type VADSegmenter struct {
	utterance         []int16
	consecutiveSilent int
	echoCooldownUntil time.Time
	echoSkipPending   bool
	now               func() time.Time
}

func NewVADSegmenter() *VADSegmenter {
	return &VADSegmenter{now: time.Now}
}

// InCooldown reports whether VAD decoding should be skipped entirely right
// now (the window following a Speaking->Listening transition).
func (v *VADSegmenter) InCooldown() bool {
	return v.now().Before(v.echoCooldownUntil)
}

// StartEchoCooldown begins the post-TTS cooldown and arms the one-shot
// discard-next-decode flag (the first post-cooldown decode still hears the
// tail of the agent's own voice through the speaker).
func (v *VADSegmenter) StartEchoCooldown() {
	v.echoCooldownUntil = v.now().Add(EchoCooldown)
	v.echoSkipPending = true
}

// Feed processes one decode's worth of fresh PCM against the current
// session state. next is empty when no transition should occur;
// endOfSpeech is true exactly when the pipeline should run.
func (v *VADSegmenter) Feed(state SessionState, samples []int16) (next SessionState, endOfSpeech bool) {
	if v.echoSkipPending {
		v.echoSkipPending = false
		return "", false
	}

	speech := isSpeech(samples)

	switch state {
	case StateListening:
		if !speech {
			return "", false
		}
		v.utterance = append(v.utterance[:0], samples...)
		v.consecutiveSilent = 0
		return StateHearing, false

	case StateHearing:
		v.utterance = append(v.utterance, samples...)
		if speech {
			v.consecutiveSilent = 0
			return "", false
		}
		v.consecutiveSilent++
		if v.consecutiveSilent >= SilenceCountForEOS && len(v.utterance) >= minUtteranceSamples() {
			return "", true
		}
		return "", false

	default:
		return "", false
	}
}

func (v *VADSegmenter) Utterance() []int16 {
	return v.utterance
}

// Reset clears the utterance buffer (after end-of-speech handling, or on
// mic_stop).
func (v *VADSegmenter) Reset() {
	v.utterance = nil
	v.consecutiveSilent = 0
}

// splitSegments breaks text into sentence-like chunks ending on '.', '!',
// or '?', dropping fragments shorter than 2 characters; text with no
// terminal punctuation at all comes back as a single segment.
func splitSegments(text string) []string {
	var segments []string
	var cur strings.Builder

	for _, r := range text {
		cur.WriteRune(r)
		switch r {
		case '.', '!', '?':
			if s := strings.TrimSpace(cur.String()); len(s) >= 2 {
				segments = append(segments, s)
			}
			cur.Reset()
		}
	}

	if rest := strings.TrimSpace(cur.String()); rest != "" {
		if len(segments) == 0 || len(rest) >= 2 {
			segments = append(segments, rest)
		}
	}
	return segments
}

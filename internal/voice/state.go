// Package voice implements the Voice Session Engine: a single long-lived
// duplex audio session layered over the same Tool Loop Engine the
// interactive path uses, driven by a small VAD-triggered state machine.
package voice

import "time"

// SessionState is the voice pipeline's phase. Transitions are driven
// exclusively by VAD segmentation, in-protocol controls, and pipeline
// completion — never by wall-clock alone.
type SessionState string

const (
	StateInit       SessionState = "init"
	StateListening  SessionState = "listening"
	StateHearing    SessionState = "hearing"
	StateProcessing SessionState = "processing"
	StateSpeaking   SessionState = "speaking"
)

const (
	// DecodeInterval: only every Nth inbound audio frame triggers a container
	// decode, trading latency for CPU.
	DecodeInterval = 2

	// SpeechRMSThreshold is the RMS level above which a decoded PCM window
	// counts as speech rather than silence.
	SpeechRMSThreshold = 200.0

	// SilenceCountForEOS is the number of consecutive silent decode windows
	// that declares end-of-speech, once the utterance has reached
	// minUtteranceSeconds.
	SilenceCountForEOS = 2

	// EchoCooldown is how long VAD decoding is suspended after a
	// Speaking->Listening transition, so the mic's pickup of the agent's own
	// TTS through the speaker never triggers a false start-of-speech.
	EchoCooldown = 1500 * time.Millisecond

	minUtteranceSeconds = 0.3
	sampleRateHz        = 16000

	// CompactionTimeout bounds the Session Compactor call the pipeline makes
	// before speaking; on timeout the full history is kept unmodified.
	CompactionTimeout = 15 * time.Second

	compactMaxMessages    = 20
	compactTokenThreshold = 6000
)

func minUtteranceSamples() int {
	return int(minUtteranceSeconds * sampleRateHz)
}

package voice

// frameTag is the 4-byte ASCII prefix every inbound binary audio frame
// carries; the first frame on an empty recorder buffer must start with it,
// later ones that don't are dropped as stale.
const frameTag = "WEBM"

func isAudioFrame(b []byte) bool {
	return len(b) >= len(frameTag) && string(b[:len(frameTag)]) == frameTag
}

func stripFrameTag(b []byte) []byte {
	return b[len(frameTag):]
}

// InboundType enumerates the JSON control messages the session accepts.
type InboundType string

const (
	InboundInit        InboundType = "init"
	InboundAudioFormat InboundType = "audio_format"
	InboundInterrupt   InboundType = "interrupt"
	InboundText        InboundType = "text"
	InboundMicStop     InboundType = "mic_stop"
	InboundPing        InboundType = "ping"
)

// InboundMessage is the envelope for every inbound JSON control frame.
type InboundMessage struct {
	Type   InboundType `json:"type"`
	Text   string      `json:"text,omitempty"`
	Format string      `json:"format,omitempty"`
}

// OutboundType enumerates the JSON control messages the session emits.
type OutboundType string

const (
	OutboundTranscript OutboundType = "transcript"
	OutboundChunk      OutboundType = "chunk"
	OutboundDone       OutboundType = "done"
	OutboundStatus     OutboundType = "status"
	OutboundTaskUpdate OutboundType = "task_update"
	OutboundError      OutboundType = "error"
	OutboundPong       OutboundType = "pong"
)

// OutboundMessage is the envelope for every outbound JSON control frame.
// Only the fields relevant to Type are populated.
type OutboundMessage struct {
	Type     OutboundType `json:"type"`
	Text     string       `json:"text,omitempty"`
	IsFinal  bool         `json:"is_final,omitempty"`
	FullText string       `json:"full_text,omitempty"`
	State    SessionState `json:"state,omitempty"`
	Tool     string       `json:"tool,omitempty"`
	Status   string       `json:"status,omitempty"`
	Summary  string       `json:"summary,omitempty"`
	Message  string       `json:"message,omitempty"`
}

func statusMessage(s SessionState) OutboundMessage {
	return OutboundMessage{Type: OutboundStatus, State: s}
}

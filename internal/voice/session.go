package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"
)

// outboundBuffer bounds the outbound channel so the status->chunk->pcm->done
// ordering the spec requires is enforced by a single writer goroutine
// draining one bounded FIFO channel, never by concurrent sends racing the
// socket or by a select across two channels (which Go picks among at random).
const outboundBuffer = 32

// outboundFrame is the union of everything that can cross into writeLoop: a
// JSON control message or a raw PCM16 chunk. Carrying both over one channel
// is what makes FIFO order into the socket match emission order.
type outboundFrame struct {
	json *OutboundMessage
	pcm  []int16
}

// Config wires a Session to its collaborators. LoopConfig.Client/Router,
// Tools, and Hooks are reused verbatim from the interactive path; the voice
// engine only supplies its own ApprovalDecider and system prompt filtering.
type Config struct {
	Conn        *websocket.Conn
	Decoder     ContainerDecoder
	Transcriber engine.Transcriber
	Synthesizer engine.Synthesizer
	Memory      engine.MemoryStore
	Embedder    engine.Embedder
	Loop        engine.LoopConfig
	Compactor   *engine.SessionCompactor
	Hooks       engine.Hooks
	SessionID   string
	ConvID      string
}

// Session is one voice pipeline instance bound to a single websocket
// connection. All mutable state is owned by the goroutine running Run;
// outbound frames cross into the writer goroutine only through out.
type Session struct {
	cfg      Config
	state    SessionState
	recorder *Recorder
	vad      *VADSegmenter

	history     []engine.ChatMessage
	interrupted bool

	out chan outboundFrame

	writerDone chan struct{}
	mu         sync.Mutex
}

// NewSession constructs a Session ready for Run.
func NewSession(cfg Config) *Session {
	return &Session{
		cfg:        cfg,
		state:      StateListening,
		recorder:   NewRecorder(cfg.Decoder),
		vad:        NewVADSegmenter(),
		out:        make(chan outboundFrame, outboundBuffer),
		writerDone: make(chan struct{}),
	}
}

// Run drives the session until the connection closes or ctx is cancelled.
// The single writer goroutine is what gives outbound frames their ordering
// guarantee; Run itself only ever enqueues onto out.
func (s *Session) Run(ctx context.Context) error {
	go s.writeLoop(ctx)
	defer close(s.writerDone)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgType, data, err := s.cfg.Conn.ReadMessage()
		if err != nil {
			return err
		}

		if msgType == websocket.BinaryMessage {
			s.handleAudioFrame(ctx, data)
			continue
		}

		var in InboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			s.emit(OutboundMessage{Type: OutboundError, Message: fmt.Sprintf("malformed control frame: %v", err)})
			continue
		}
		s.handleControl(ctx, in)
	}
}

// writeLoop is the session's single outbound writer, draining one FIFO
// channel so frames reach the socket in the exact order they were emitted —
// status->chunk->pcm->...->done (spec §5's single-bounded-channel ordering
// requirement).
func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.writerDone:
			return
		case frame, ok := <-s.out:
			if !ok {
				return
			}
			if frame.pcm != nil {
				_ = s.cfg.Conn.WriteMessage(websocket.BinaryMessage, pcmToBytes(frame.pcm))
			} else {
				_ = s.cfg.Conn.WriteJSON(*frame.json)
			}
		}
	}
}

// emit and emitPCM block until writeLoop can accept the frame (or the
// session is shutting down) rather than dropping under backpressure — a
// dropped chunk mid-response would silently lose audio.
func (s *Session) emit(msg OutboundMessage) {
	select {
	case s.out <- outboundFrame{json: &msg}:
	case <-s.writerDone:
	}
}

func (s *Session) emitPCM(pcm []int16) {
	select {
	case s.out <- outboundFrame{pcm: pcm}:
	case <-s.writerDone:
	}
}

func (s *Session) handleControl(ctx context.Context, in InboundMessage) {
	switch in.Type {
	case InboundPing:
		s.emit(OutboundMessage{Type: OutboundPong})

	case InboundInterrupt:
		s.mu.Lock()
		s.interrupted = true
		s.mu.Unlock()
		s.setState(StateListening)

	case InboundMicStop:
		s.recorder.Reset()
		s.vad.Reset()
		s.setState(StateListening)

	case InboundText:
		s.runPipeline(ctx, in.Text)

	case InboundAudioFormat, InboundInit:
		// Negotiation only; no state change required of the reference engine.
	}
}

func (s *Session) handleAudioFrame(ctx context.Context, data []byte) {
	if s.recorder == nil {
		return
	}
	if len(data) >= len(frameTag) && isAudioFrame(data) {
		data = stripFrameTag(data)
	} else if s.recorderEmpty() {
		return // first frame must carry the container magic header
	}

	if s.state != StateListening && s.state != StateHearing {
		return
	}
	if s.vad.InCooldown() {
		return
	}

	shouldDecode := s.recorder.Append(data)
	if !shouldDecode {
		return
	}
	fresh, err := s.recorder.Decode()
	if err != nil || len(fresh) == 0 {
		return
	}

	next, eos := s.vad.Feed(s.state, fresh)
	if next != "" {
		s.setState(next)
		s.emit(statusMessage(next))
	}
	if eos {
		s.setState(StateProcessing)
		s.emit(statusMessage(StateProcessing))
		s.runPipelineFromPCM(ctx, s.vad.Utterance())
		s.vad.Reset()
	}
}

func (s *Session) recorderEmpty() bool {
	return s.recorder.lastDecodedLen == 0 && s.recorder.frameCount == 0
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// runPipelineFromPCM runs steps 2+ of the end-of-speech pipeline starting
// from raw PCM (the STT entry point).
func (s *Session) runPipelineFromPCM(ctx context.Context, pcm []int16) {
	text, err := s.cfg.Transcriber.Transcribe(ctx, pcm, sampleRateHz)
	if err != nil {
		s.emit(OutboundMessage{Type: OutboundError, Message: fmt.Sprintf("transcription failed: %v", err)})
		s.setState(StateListening)
		return
	}
	s.emit(OutboundMessage{Type: OutboundTranscript, Text: text, IsFinal: true})
	s.runPipeline(ctx, text)
}

// runPipeline implements spec §4.8 steps 4-10, entered either from STT
// output or directly from a "text" control frame (step 5 entry point).
func (s *Session) runPipeline(ctx context.Context, text string) {
	s.mu.Lock()
	s.interrupted = false
	s.mu.Unlock()

	userMsg := engine.ChatMessage{Role: engine.RoleUser, Content: s.withMemoryContext(ctx, text)}
	s.history = append(s.history, userMsg)

	if s.cfg.Compactor != nil && s.cfg.Compactor.ShouldCompact(s.history, compactMaxMessages, compactTokenThreshold) {
		s.history = s.compactWithTimeout(ctx, s.history)
	}

	s.setState(StateSpeaking)
	s.emit(statusMessage(StateSpeaking))

	result, err := s.runToolLoop(ctx)
	if err != nil {
		s.emit(OutboundMessage{Type: OutboundError, Message: err.Error()})
		s.finishTurn("")
		return
	}
	s.history = append(s.history, result.Messages...)

	s.speakResponse(ctx, result.FinalResponse)
	s.finishTurn(result.FinalResponse)
}

func (s *Session) withMemoryContext(ctx context.Context, text string) string {
	if s.cfg.Memory == nil || s.cfg.Embedder == nil {
		return text
	}
	vec, err := s.cfg.Embedder.Embed(ctx, text)
	if err != nil {
		return text
	}
	records, err := s.cfg.Memory.SemanticSearch(ctx, vec, 3)
	if err != nil || len(records) == 0 {
		return text
	}
	prefix := "[Relevant memory]\n"
	for _, r := range records {
		if r.Summary != "" {
			prefix += "- " + r.Summary + "\n"
		}
	}
	return prefix + "\n" + text
}

func (s *Session) compactWithTimeout(ctx context.Context, history []engine.ChatMessage) []engine.ChatMessage {
	timeoutCtx, cancel := context.WithTimeout(ctx, CompactionTimeout)
	defer cancel()

	type compactResult struct {
		msgs []engine.ChatMessage
		err  error
	}
	done := make(chan compactResult, 1)
	go func() {
		msgs, err := s.cfg.Compactor.Compact(timeoutCtx, history, compactMaxMessages/2)
		done <- compactResult{msgs, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return history
		}
		return r.msgs
	case <-timeoutCtx.Done():
		return history
	}
}

// runToolLoop reuses the interactive Tool Loop Engine, stripping the
// session's own system messages first since the loop supplies its own.
func (s *Session) runToolLoop(ctx context.Context) (engine.ToolLoopResult, error) {
	cfg := s.cfg.Loop
	cfg.ToolContext.Approve = engine.AutoApprove{Threshold: engine.RiskCritical}

	// Copy rather than append in place: cfg.Hooks may share a backing array
	// with s.cfg.Loop.Hooks (reused across every turn), so appending directly
	// could race with the next turn's read of the same slice.
	hooks := make(engine.Hooks, 0, len(cfg.Hooks)+1)
	hooks = append(hooks, cfg.Hooks...)
	hooks = append(hooks, s.TaskUpdateHook())
	cfg.Hooks = hooks

	var messages []engine.ChatMessage
	for _, m := range s.history {
		if m.Role == engine.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}
	return engine.Run(ctx, cfg, messages)
}

func (s *Session) speakResponse(ctx context.Context, text string) {
	for _, segment := range splitSegments(text) {
		s.mu.Lock()
		interrupted := s.interrupted
		s.mu.Unlock()
		if interrupted {
			return
		}

		s.emit(OutboundMessage{Type: OutboundChunk, Text: segment})
		pcm, _, err := s.cfg.Synthesizer.Synthesize(ctx, segment)
		if err != nil {
			continue
		}
		s.emitPCM(pcm)
	}
}

func (s *Session) finishTurn(fullText string) {
	s.emit(OutboundMessage{Type: OutboundDone, FullText: fullText})
	s.setState(StateListening)
	s.emit(statusMessage(StateListening))
	s.vad.StartEchoCooldown()
}

func pcmToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// taskUpdateHook is an engine.Hook that forwards tool start/complete events
// as task_update outbound frames (spec §4.8 step 7).
type taskUpdateHook struct {
	engine.NopHook
	emit func(engine.ToolCall, string, string)
}

func (h taskUpdateHook) OnToolCall(_ context.Context, _ *engine.State, call engine.ToolCall) {
	h.emit(call, "started", "")
}

func (h taskUpdateHook) OnToolResult(_ context.Context, _ *engine.State, call engine.ToolCall, result engine.ToolResult, _ error) {
	h.emit(call, "completed", result.Message)
}

// TaskUpdateHook builds the hook above bound to this session's outbound
// channel.
func (s *Session) TaskUpdateHook() engine.Hook {
	return taskUpdateHook{emit: func(call engine.ToolCall, status, summary string) {
		s.emit(OutboundMessage{Type: OutboundTaskUpdate, Tool: call.Name, Status: status, Summary: summary})
	}}
}

package engine

import (
	"context"
	"time"
)

// ConversationRecord is the MemoryStore's unit of persistence (spec §3).
// The core only ever consumes and returns it through Save/Load.
type ConversationRecord struct {
	ID        string
	Title     string
	Messages  []ChatMessage
	Summary   string
	Embedding []float32
	CreatedAt time.Time
	UpdatedAt time.Time
	Tags      []string
}

// MemoryStoreStats is the return value of MemoryStore.Stats.
type MemoryStoreStats struct {
	RecordCount int
	TotalBytes  int64
}

// MemoryStore is the persistence collaborator (spec §1, §6): conversation
// DB, embeddings, and FTS are all consumed through this single interface.
// internal/memory ships a reference implementation; the core never imports
// it directly.
type MemoryStore interface {
	Save(ctx context.Context, record ConversationRecord) (ConversationRecord, error)
	Load(ctx context.Context, id string) (ConversationRecord, error)
	List(ctx context.Context, limit, offset int) ([]ConversationRecord, error)
	Search(ctx context.Context, query string, limit int) ([]ConversationRecord, error)
	SemanticSearch(ctx context.Context, queryEmbedding []float32, limit int) ([]ConversationRecord, error)
	Stats(ctx context.Context) (MemoryStoreStats, error)
}

// Embedder turns text into vectors for semantic search (spec §6 embedding
// provider). embed_batch is Embed called per item behind a cache the
// implementation owns.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Transcriber is the STT collaborator the Voice Session Engine calls on
// end-of-speech.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRateHz int) (string, error)
}

// Synthesizer is the TTS collaborator the Voice Session Engine calls per
// response segment.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (pcm []int16, sampleRateHz int, err error)
}

// RiskLevel orders tool-call risk for ApprovalDecider (spec §4.8 "auto-approve
// up to a risk threshold").
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// ApprovalDecider is the only piece of the approval subsystem the core
// consumes — never the UI that produces the decision.
type ApprovalDecider interface {
	Approve(ctx context.Context, call ToolCall, risk RiskLevel) (bool, error)
}

// AutoApprove approves any call at or below threshold and rejects anything
// above it; the Voice Session Engine wires this with threshold=RiskCritical
// because voice mode has no interactive approval channel (spec §4.8).
type AutoApprove struct {
	Threshold RiskLevel
}

func (a AutoApprove) Approve(_ context.Context, _ ToolCall, risk RiskLevel) (bool, error) {
	return risk <= a.Threshold, nil
}

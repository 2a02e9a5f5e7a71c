package fixtures

import (
	"bytes"
	"context"
	"fmt"
	"io"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"
)

// OpenAIEmbedder implements engine.Embedder against OpenAI's embeddings
// endpoint, the same client construction the LLMClient providers use.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder builds an embedder against baseURL (empty means the
// real OpenAI API) using model, defaulting to text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, baseURL string, model openai.EmbeddingModel) *OpenAIEmbedder {
	if model == "" {
		model = openai.SmallEmbedding3
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(config), model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response had no data")
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating batch embeddings: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// OpenAITranscriber implements engine.Transcriber against Whisper.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

// NewOpenAITranscriber builds a transcriber using model (defaulting to
// whisper-1).
func NewOpenAITranscriber(apiKey, baseURL, model string) *OpenAITranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAITranscriber{client: openai.NewClientWithConfig(config), model: model}
}

// Transcribe encodes pcm as a WAV container (Whisper needs a named audio
// file, not a raw sample slice) and submits it for transcription.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, pcm []int16, sampleRateHz int) (string, error) {
	wavBytes, err := encodeWAV(pcm, sampleRateHz)
	if err != nil {
		return "", fmt.Errorf("encoding audio for transcription: %w", err)
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		Reader:   bytes.NewReader(wavBytes),
		FilePath: "utterance.wav",
	})
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	return resp.Text, nil
}

// OpenAISynthesizer implements engine.Synthesizer against the TTS endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

// NewOpenAISynthesizer builds a synthesizer using model/voice, defaulting to
// tts-1 and the "alloy" voice.
func NewOpenAISynthesizer(apiKey, baseURL string, model openai.SpeechModel, voice openai.SpeechVoice) *OpenAISynthesizer {
	if model == "" {
		model = openai.TTSModel1
	}
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAISynthesizer{client: openai.NewClientWithConfig(config), model: model, voice: voice}
}

// Synthesize requests PCM16 output directly so the voice session can forward
// it without a decode step. The endpoint's raw PCM is 24kHz mono, which is
// the sample rate returned; it is not resampled to 16kHz.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]int16, int, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("synthesizing speech: %w", err)
	}
	defer resp.Close()

	raw, err := io.ReadAll(resp)
	if err != nil {
		return nil, 0, fmt.Errorf("reading synthesized audio: %w", err)
	}

	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
	}
	return pcm, 24000, nil
}

var _ engine.Embedder = (*OpenAIEmbedder)(nil)
var _ engine.Transcriber = (*OpenAITranscriber)(nil)
var _ engine.Synthesizer = (*OpenAISynthesizer)(nil)

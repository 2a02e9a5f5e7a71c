// Package engine: Recursive Compressor (spec §4.4). Collapses an
// over-budget body of text into a bounded summary via hierarchical
// chunk -> leaf-summarize -> compose, preserving factual content better
// than naive truncation because every interior node is itself a summary of
// summaries rather than a discard.

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultRecursionThreshold = 6000 // tokens
	DefaultMaxDepth           = 5
	composeBatchSize          = 5
	leafSummaryMaxTokens      = 500
)

// SummaryNode is one node in the compression hierarchy (spec §3). Leaf
// nodes carry ChunkIndex and no children; interior nodes carry no
// ChunkIndex and >=1 child, referenced by id string rather than pointer so
// the hierarchy can be owned by value without cyclic ownership.
type SummaryNode struct {
	ID         string
	ChunkIndex *int
	Summary    string
	TokenCount int
	Depth      int
	Children   []string // child node ids
}

// CompressionResult is the Recursive Compressor's output.
type CompressionResult struct {
	FinalSummary      string
	TotalChunks       int
	DepthReached      int
	OriginalTokens    int
	FinalTokens       int
	CompressionRatio  float64
	Hierarchy         []SummaryNode
}

// Summarize is the narrow LLM dependency the compressor needs: produce a
// bounded-length summary of text, given context about its position among
// sibling chunks.
type Summarize func(ctx context.Context, text string, chunkIndex, totalChunks int) (string, error)

// Compressor runs the recursion_threshold/max_depth algorithm from spec §4.4.
// It owns its node cache (by value, in Hierarchy) across a single Process
// call; nodes only outlive that call if the caller retains the returned
// slice (spec §3 "Ownership").
type Compressor struct {
	RecursionThreshold int
	MaxDepth           int
	Summarize          Summarize
}

func NewCompressor(summarize Summarize) *Compressor {
	return &Compressor{
		RecursionThreshold: DefaultRecursionThreshold,
		MaxDepth:           DefaultMaxDepth,
		Summarize:          summarize,
	}
}

// Process implements the five-step algorithm in spec §4.4.
func (c *Compressor) Process(ctx context.Context, text string) (CompressionResult, error) {
	originalTokens := EstimateTokens(text)

	if originalTokens <= c.RecursionThreshold {
		return CompressionResult{
			FinalSummary:     text,
			TotalChunks:      0,
			DepthReached:     0,
			OriginalTokens:   originalTokens,
			FinalTokens:      originalTokens,
			CompressionRatio: 1.0,
		}, nil
	}

	chunks := chunkText(text, c.RecursionThreshold)

	var hierarchy []SummaryNode
	leafIDs := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := c.Summarize(ctx, chunk, i, len(chunks))
		if err != nil {
			return CompressionResult{}, fmt.Errorf("leaf summarize chunk %d: %w", i, err)
		}
		summary = capTokens(summary, leafSummaryMaxTokens)

		idx := i
		node := SummaryNode{
			ID:         uuid.NewString(),
			ChunkIndex: &idx,
			Summary:    summary,
			TokenCount: EstimateTokens(summary),
			Depth:      0,
		}
		hierarchy = append(hierarchy, node)
		leafIDs = append(leafIDs, node.ID)
	}

	currentIDs := leafIDs
	depth := 0
	for len(currentIDs) > 1 && depth < c.MaxDepth {
		depth++
		var nextIDs []string
		for batchStart := 0; batchStart < len(currentIDs); batchStart += composeBatchSize {
			end := batchStart + composeBatchSize
			if end > len(currentIDs) {
				end = len(currentIDs)
			}
			batchIDs := currentIDs[batchStart:end]

			var batchText strings.Builder
			for _, id := range batchIDs {
				node := findNode(hierarchy, id)
				batchText.WriteString(node.Summary)
				batchText.WriteString("\n\n")
			}

			composed, err := c.Summarize(ctx, batchText.String(), batchStart/composeBatchSize, (len(currentIDs)+composeBatchSize-1)/composeBatchSize)
			if err != nil {
				return CompressionResult{}, fmt.Errorf("compose depth %d batch %d: %w", depth, batchStart, err)
			}
			composed = capTokens(composed, leafSummaryMaxTokens)

			node := SummaryNode{
				ID:         uuid.NewString(),
				Summary:    composed,
				TokenCount: EstimateTokens(composed),
				Depth:      depth,
				Children:   append([]string(nil), batchIDs...),
			}
			hierarchy = append(hierarchy, node)
			nextIDs = append(nextIDs, node.ID)
		}
		currentIDs = nextIDs
	}

	final := findNode(hierarchy, currentIDs[len(currentIDs)-1])
	// If max_depth hit with >1 remaining, compose the remainder into one.
	if len(currentIDs) > 1 {
		var tail strings.Builder
		for _, id := range currentIDs {
			tail.WriteString(findNode(hierarchy, id).Summary)
			tail.WriteString("\n\n")
		}
		composed, err := c.Summarize(ctx, tail.String(), 0, 1)
		if err != nil {
			return CompressionResult{}, fmt.Errorf("final compose: %w", err)
		}
		node := SummaryNode{
			ID:         uuid.NewString(),
			Summary:    composed,
			TokenCount: EstimateTokens(composed),
			Depth:      depth + 1,
			Children:   append([]string(nil), currentIDs...),
		}
		hierarchy = append(hierarchy, node)
		final = node
		depth++
	}

	finalTokens := EstimateTokens(final.Summary)
	ratio := 1.0
	if finalTokens > 0 {
		ratio = float64(originalTokens) / float64(finalTokens)
	}

	return CompressionResult{
		FinalSummary:     final.Summary,
		TotalChunks:      len(chunks),
		DepthReached:     depth,
		OriginalTokens:   originalTokens,
		FinalTokens:      finalTokens,
		CompressionRatio: ratio,
		Hierarchy:        hierarchy,
	}, nil
}

func findNode(hierarchy []SummaryNode, id string) SummaryNode {
	for _, n := range hierarchy {
		if n.ID == id {
			return n
		}
	}
	return SummaryNode{}
}

func capTokens(s string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}

// chunkText splits text into windows of chunkSizeTokens*4 chars, preferring
// to cut at a paragraph boundary, falling back to sentence-ending
// punctuation, and finally to a hard window cut (spec §4.4 step 2).
func chunkText(text string, chunkSizeTokens int) []string {
	windowChars := chunkSizeTokens * 4
	if windowChars <= 0 {
		windowChars = DefaultRecursionThreshold * 4
	}

	var chunks []string
	remaining := text
	for len(remaining) > windowChars {
		window := remaining[:windowChars]

		cut := strings.LastIndex(window, "\n\n")
		if cut <= 0 {
			if idx := lastSentenceBoundary(window); idx > 0 {
				cut = idx
			}
		}
		if cut <= 0 {
			cut = windowChars
		}

		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if len(remaining) > 0 {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func lastSentenceBoundary(window string) int {
	best := -1
	for _, punct := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(window, punct); idx > best {
			best = idx + 1
		}
	}
	return best
}

package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func makeMessages(n int, bodyPerMsg string) []ChatMessage {
	msgs := make([]ChatMessage, 0, n)
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: bodyPerMsg})
	}
	return msgs
}

func TestShouldCompactRequiresBothThresholds(t *testing.T) {
	c := &SessionCompactor{}

	short := makeMessages(5, "hi")
	if c.ShouldCompact(short, 20, 6000) {
		t.Error("expected no compaction for a short conversation")
	}

	manyShort := makeMessages(25, "hi")
	if c.ShouldCompact(manyShort, 20, 6000) {
		t.Error("expected no compaction when message count exceeds the cap but tokens stay low")
	}

	manyLong := makeMessages(25, strings.Repeat("word ", 2000))
	if !c.ShouldCompact(manyLong, 20, 6000) {
		t.Error("expected compaction once both message count and token thresholds are exceeded")
	}
}

func TestCompactPreservesSystemMessageAndRecentTail(t *testing.T) {
	c := &SessionCompactor{}
	system := ChatMessage{Role: RoleSystem, Content: "you are an assistant"}
	messages := append([]ChatMessage{system}, makeMessages(10, "some content about src/main.go")...)

	out, err := c.Compact(context.Background(), messages, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out[0].Role != RoleSystem || out[0].Content != system.Content {
		t.Fatalf("expected system message preserved first, got %+v", out[0])
	}
	if out[1].Role != RoleSystem || !strings.Contains(out[1].Content, "Compacted") {
		t.Fatalf("expected a synthetic compaction summary message second, got %+v", out[1])
	}
	if len(out) != 2+3 {
		t.Fatalf("expected system + summary + 3 kept recent messages, got %d messages", len(out))
	}
}

func TestCompactNoOpWhenUnderKeepRecent(t *testing.T) {
	c := &SessionCompactor{}
	messages := makeMessages(2, "short")
	out, err := c.Compact(context.Background(), messages, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(messages) {
		t.Errorf("expected compact to be a no-op when len(rest) <= keepRecent, got %d messages", len(out))
	}
}

func TestCompactFallsBackToManualSummaryOnSummarizerError(t *testing.T) {
	c := &SessionCompactor{Summarizer: func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("summarizer unavailable")
	}}
	messages := makeMessages(10, "refer to src/main.go please")
	out, err := c.Compact(context.Background(), messages, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out[0].Content, "Conversation Summary") {
		t.Errorf("expected manual summary fallback, got %+v", out[0])
	}
}

func TestCompactWithFallbackEscalatesToSessionReset(t *testing.T) {
	c := &SessionCompactor{}
	huge := makeMessages(100, strings.Repeat("word ", 5000))

	out, strategy, err := c.CompactWithFallback(context.Background(), huge, 3, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategy != StrategySessionReset {
		t.Errorf("expected escalation all the way to session_reset for an impossible target, got %q", strategy)
	}
	for _, m := range out {
		if m.Role != RoleSystem && m.Role != RoleUser {
			t.Errorf("expected only system/user messages to survive a session reset, found role %q", m.Role)
		}
	}
}

func TestCompactWithFallbackNoOpWhenAlreadyUnderTarget(t *testing.T) {
	c := &SessionCompactor{}
	small := makeMessages(3, "hi")
	out, strategy, err := c.CompactWithFallback(context.Background(), small, 3, 100000, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategy != "" {
		t.Errorf("expected no strategy applied when already under target, got %q", strategy)
	}
	if len(out) != len(small) {
		t.Errorf("expected messages unchanged, got %d vs %d", len(out), len(small))
	}
}

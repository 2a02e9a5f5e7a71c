// Package engine: Loop-Pattern Detector (spec §4.7.1). A small, explainable
// detector over a bounded sliding window that catches models degrading into
// repetitive tool spam or fruitless polling, without forbidding legitimate
// repetition (observation tools get a higher threshold).

package engine

import (
	"fmt"
	"hash/fnv"
	"strings"
)

const (
	loopWindowSize           = 10
	genericRepeatWindow      = 6
	genericRepeatThreshold   = 3
	observationRepeatThreshold = 5
	pingPongWindow           = 4
	pollNoProgressWindow     = 6
	pollNoProgressThreshold  = 3
)

type resultHashEntry struct {
	signature string
	hash      uint64
}

// LoopDetector holds the two sliding windows spec §4.7.1 describes: recent
// call signatures, and (signature, result_hash) pairs.
type LoopDetector struct {
	window       []string
	resultHashes []resultHashEntry
	reg          ToolRegistry
}

func NewLoopDetector(reg ToolRegistry) *LoopDetector {
	return &LoopDetector{reg: reg}
}

func hashResultText(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}

// isPacingCall is the "wait:"-prefixed exception: pacing calls never enter
// either window.
func isPacingCall(signature string) bool {
	return strings.HasPrefix(signature, "wait:")
}

// Check records one tool call's outcome and returns a non-empty description
// if a loop pattern fires. It must be called once per tool call, in order.
func (d *LoopDetector) Check(signature, resultText string) string {
	if isPacingCall(signature) {
		return ""
	}

	d.window = append(d.window, signature)
	if len(d.window) > loopWindowSize {
		d.window = d.window[len(d.window)-loopWindowSize:]
	}

	d.resultHashes = append(d.resultHashes, resultHashEntry{signature: signature, hash: hashResultText(resultText)})
	if len(d.resultHashes) > loopWindowSize {
		d.resultHashes = d.resultHashes[len(d.resultHashes)-loopWindowSize:]
	}

	if desc := d.detectGenericRepeat(signature); desc != "" {
		return desc
	}
	if desc := d.detectPingPong(); desc != "" {
		return desc
	}
	if desc := d.detectPollNoProgress(); desc != "" {
		return desc
	}
	return ""
}

func toolNameFromSignature(signature string) string {
	if idx := strings.Index(signature, ":"); idx >= 0 {
		return signature[:idx]
	}
	return signature
}

func (d *LoopDetector) detectGenericRepeat(latest string) string {
	recent := lastN(d.window, genericRepeatWindow)

	threshold := genericRepeatThreshold
	if isObservationTool(d.reg, toolNameFromSignature(latest)) {
		threshold = observationRepeatThreshold
	}

	count := 0
	for _, sig := range recent {
		if sig == latest {
			count++
		}
	}
	if count >= threshold {
		return fmt.Sprintf("generic_repeat: %q appeared %d times in the last %d calls", latest, count, len(recent))
	}
	return ""
}

func (d *LoopDetector) detectPingPong() string {
	recent := lastN(d.window, pingPongWindow)
	if len(recent) < pingPongWindow {
		return ""
	}
	a, b, a2, b2 := recent[0], recent[1], recent[2], recent[3]
	if a != b && a == a2 && b == b2 {
		return fmt.Sprintf("ping_pong: alternating %q/%q", a, b)
	}
	return ""
}

func (d *LoopDetector) detectPollNoProgress() string {
	recent := lastNHashes(d.resultHashes, pollNoProgressWindow)

	counts := make(map[resultHashEntry]int)
	for _, e := range recent {
		counts[e]++
	}
	for e, count := range counts {
		if count >= pollNoProgressThreshold {
			return fmt.Sprintf("poll_no_progress: %q returned an identical result %d times in the last %d calls", e.signature, count, len(recent))
		}
	}
	return ""
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func lastNHashes(s []resultHashEntry, n int) []resultHashEntry {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
